package decom

import (
	"time"

	"github.com/google/uuid"
)

// PhaseTally counts outcomes by status across one or more invocations of a
// phase.
type PhaseTally struct {
	Phase     Phase
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled int
}

// Total returns the number of outcomes counted for the phase.
func (t PhaseTally) Total() int {
	return t.Succeeded + t.Failed + t.Skipped + t.Cancelled
}

// TargetResult is the per-target rollup row in a batch summary.
type TargetResult struct {
	Name     string
	Status   OverallStatus
	Eligible bool
	Outcomes []PhaseOutcome
}

// BatchSummary aggregates per-target, per-phase outcomes for one batch run.
// It is what the reporting and notification collaborators consume.
type BatchSummary struct {
	BatchID     uuid.UUID
	Operator    string
	StartedAt   time.Time
	GeneratedAt time.Time
	Phases      []PhaseTally
	Targets     []TargetResult
}

// FailureCount returns the number of failed outcomes across all phases.
func (s BatchSummary) FailureCount() int {
	n := 0
	for _, tally := range s.Phases {
		n += tally.Failed
	}
	return n
}

// HasFailures reports whether any phase outcome in the run failed.
func (s BatchSummary) HasFailures() bool { return s.FailureCount() > 0 }
