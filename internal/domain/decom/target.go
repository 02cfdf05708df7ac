package decom

import (
	"errors"
	"fmt"
	"strings"
)

// DirectoryLookupState tracks the result of the directory service lookup for
// a target.
type DirectoryLookupState string

const (
	// DirectoryUnknown indicates discovery has not run yet.
	DirectoryUnknown DirectoryLookupState = "UNKNOWN"

	// DirectoryFound indicates the directory entry exists.
	DirectoryFound DirectoryLookupState = "FOUND"

	// DirectoryNotFound indicates the directory entry is absent.
	DirectoryNotFound DirectoryLookupState = "NOT_FOUND"

	// DirectoryError indicates the lookup itself failed, for example because
	// the directory service was unreachable.
	DirectoryError DirectoryLookupState = "ERROR"
)

// String returns the string representation of the DirectoryLookupState.
func (s DirectoryLookupState) String() string { return string(s) }

// BackendRef is an opaque handle to the hypervisor manager instance that owns
// a virtual target, together with the manager-specific VM reference. It is
// owned by the target's record rather than a separate lookup structure so
// re-discovery can never leave a dangling mapping behind.
type BackendRef struct {
	manager string
	vmRef   string
}

// NewBackendRef creates a BackendRef for the named hypervisor manager
// instance and its VM handle.
func NewBackendRef(manager, vmRef string) BackendRef {
	return BackendRef{manager: manager, vmRef: vmRef}
}

// Manager returns the configured name of the owning hypervisor manager.
func (r BackendRef) Manager() string { return r.manager }

// VMRef returns the manager-specific VM handle.
func (r BackendRef) VMRef() string { return r.vmRef }

// OverallStatus is the derived, human-facing summary label for a target,
// recomputed after each phase from the latest outcome.
type OverallStatus string

const (
	// StatusPending indicates discovery has not completed for the target.
	StatusPending OverallStatus = "PENDING"

	// StatusReady indicates the target is discovered and eligible for
	// phase actions.
	StatusReady OverallStatus = "READY"

	// StatusNotFound indicates neither directory nor backend discovery
	// located the target; it cannot be decommissioned.
	StatusNotFound OverallStatus = "NOT_FOUND"

	// StatusStopped indicates the most recent phase powered the target off.
	StatusStopped OverallStatus = "STOPPED"

	// StatusCleaned indicates the most recent phase was a successful cleanup.
	StatusCleaned OverallStatus = "CLEANED"

	// StatusDeleted indicates the backend deletion completed.
	StatusDeleted OverallStatus = "DELETED"

	// StatusFailed indicates the most recent phase attempt failed.
	StatusFailed OverallStatus = "FAILED"

	// StatusSkipped indicates the most recent phase attempt was excused by a
	// gate or precondition.
	StatusSkipped OverallStatus = "SKIPPED"

	// StatusCancelled indicates the most recent phase was cancelled before
	// the target was dispatched.
	StatusCancelled OverallStatus = "CANCELLED"
)

// ErrPhysicalBackendRef is returned when discovery attempts to attach a
// hypervisor backend to a physical target. A physical target's BackendRef is
// always absent; this is a hard invariant, not a UI convention.
var ErrPhysicalBackendRef = errors.New("physical target cannot have a backend ref")

// TargetState is the per-target record for one batch run: identity,
// classification, discovery results, and the outcome of each phase executed
// so far. It is mutated only by the orchestrator between phases; workers
// never write to it concurrently.
type TargetState struct {
	name           string
	classification Classification
	directory      DirectoryLookupState
	directoryDN    string
	backend        *BackendRef
	eligible       bool
	outcomes       []PhaseOutcome
	status         OverallStatus
}

// NewTargetState creates a TargetState for the named machine. The
// classification is fixed for the whole run.
func NewTargetState(name string, classification Classification) *TargetState {
	return &TargetState{
		name:           name,
		classification: classification,
		directory:      DirectoryUnknown,
		status:         StatusPending,
	}
}

// Name returns the target's hostname as supplied by the operator.
func (t *TargetState) Name() string { return t.name }

// Key returns the case-folded identity used for uniqueness and outcome
// aggregation. Target identity is case-insensitive.
func (t *TargetState) Key() string { return strings.ToLower(t.name) }

// Classification returns the target's physical/virtual classification.
func (t *TargetState) Classification() Classification { return t.classification }

// Directory returns the state of the directory service lookup.
func (t *TargetState) Directory() DirectoryLookupState { return t.directory }

// DirectoryDN returns the distinguished name of the directory entry when the
// lookup found one.
func (t *TargetState) DirectoryDN() string { return t.directoryDN }

// Backend returns the owning hypervisor backend ref, or nil when the target
// is physical or was not found on any backend.
func (t *TargetState) Backend() *BackendRef {
	if t.backend == nil {
		return nil
	}
	ref := *t.backend
	return &ref
}

// Eligible reports whether the target is currently permitted to receive
// further phase actions.
func (t *TargetState) Eligible() bool { return t.eligible }

// Outcomes returns a copy of the append-only phase outcome history, in
// attempt order.
func (t *TargetState) Outcomes() []PhaseOutcome {
	out := make([]PhaseOutcome, len(t.outcomes))
	copy(out, t.outcomes)
	return out
}

// OverallStatus returns the derived summary label for the target.
func (t *TargetState) OverallStatus() OverallStatus { return t.status }

// SetDiscovered applies discovery results to the target. It returns
// ErrPhysicalBackendRef if a backend ref is offered for a physical target.
// A target is eligible for subsequent phases when either lookup succeeded.
func (t *TargetState) SetDiscovered(directory DirectoryLookupState, directoryDN string, backend *BackendRef) error {
	if backend != nil && t.classification == ClassificationPhysical {
		return fmt.Errorf("%w: %s", ErrPhysicalBackendRef, t.name)
	}

	t.directory = directory
	t.directoryDN = directoryDN
	if backend != nil {
		ref := *backend
		t.backend = &ref
	} else {
		t.backend = nil
	}

	t.eligible = directory == DirectoryFound || t.backend != nil
	if t.eligible {
		t.status = StatusReady
	} else {
		t.status = StatusNotFound
	}
	return nil
}

// ResetDiscovery clears the discovery fields ahead of a re-discovery run.
// Prior phase outcome history is preserved; discovery is idempotent and
// restartable.
func (t *TargetState) ResetDiscovery() {
	t.directory = DirectoryUnknown
	t.directoryDN = ""
	t.backend = nil
	t.eligible = false
	t.status = StatusPending
}

// RecordOutcome appends a phase outcome to the target's history and
// recomputes the derived status and eligibility. Outcomes are never
// overwritten. A successful backend deletion leaves nothing to act on, so it
// ends the target's eligibility; other failures keep the target eligible
// because re-invoking the same phase is the designed recovery path.
func (t *TargetState) RecordOutcome(outcome PhaseOutcome) {
	t.outcomes = append(t.outcomes, outcome)
	t.status = t.statusForOutcome(outcome)

	if outcome.Phase() == PhaseDeleteVM && outcome.Status() == OutcomeSuccess {
		t.eligible = false
	}
}

// LastOutcome returns the most recent phase outcome, if any.
func (t *TargetState) LastOutcome() (PhaseOutcome, bool) {
	if len(t.outcomes) == 0 {
		return PhaseOutcome{}, false
	}
	return t.outcomes[len(t.outcomes)-1], true
}

func (t *TargetState) statusForOutcome(outcome PhaseOutcome) OverallStatus {
	switch outcome.Status() {
	case OutcomeFailed:
		return StatusFailed
	case OutcomeSkipped:
		return StatusSkipped
	case OutcomeCancelled:
		return StatusCancelled
	}

	switch {
	case outcome.Phase() == PhaseStop:
		return StatusStopped
	case outcome.Phase() == PhaseDeleteVM:
		return StatusDeleted
	case outcome.Phase().IsClean():
		return StatusCleaned
	default:
		// A discovery probe that ran cleanly but found the target nowhere
		// still leaves it undecommissionable; Ready is reserved for targets
		// discovery actually located.
		if !t.eligible {
			return StatusNotFound
		}
		return StatusReady
	}
}
