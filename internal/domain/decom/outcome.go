package decom

import "time"

// OutcomeStatus represents the result class of one phase attempt against one
// target. Skips and cancellations are deliberately distinct from failures:
// a skipped target was never acted on, and a cancelled target was never
// dispatched.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the phase action completed against the target.
	OutcomeSuccess OutcomeStatus = "SUCCESS"

	// OutcomeFailed indicates the phase action ran and failed.
	OutcomeFailed OutcomeStatus = "FAILED"

	// OutcomeSkipped indicates a gate or precondition excused the target
	// without running the action. Skipping is not a failure.
	OutcomeSkipped OutcomeStatus = "SKIPPED"

	// OutcomeCancelled indicates the target was never dispatched because the
	// phase was cancelled while it was still queued.
	OutcomeCancelled OutcomeStatus = "CANCELLED"
)

// String returns the string representation of the OutcomeStatus.
func (s OutcomeStatus) String() string { return string(s) }

// Failed reports whether the status represents an actual failure, as opposed
// to a skip or cancellation.
func (s OutcomeStatus) Failed() bool { return s == OutcomeFailed }

// PhaseOutcome records the result of one phase attempt against one target.
// Outcomes are append-only on the target: they are never overwritten, which
// preserves a full audit trail within the run.
type PhaseOutcome struct {
	phase     Phase
	status    OutcomeStatus
	message   string
	timestamp time.Time
}

// NewPhaseOutcome creates a PhaseOutcome for the given phase and status.
func NewPhaseOutcome(phase Phase, status OutcomeStatus, message string, at time.Time) PhaseOutcome {
	return PhaseOutcome{phase: phase, status: status, message: message, timestamp: at}
}

// Phase returns the phase this outcome belongs to.
func (o PhaseOutcome) Phase() Phase { return o.phase }

// Status returns the result class of the attempt.
func (o PhaseOutcome) Status() OutcomeStatus { return o.status }

// Message returns the human-readable detail for the attempt.
func (o PhaseOutcome) Message() string { return o.message }

// Timestamp returns when the outcome was recorded.
func (o PhaseOutcome) Timestamp() time.Time { return o.timestamp }
