package decom

import (
	"time"

	"github.com/google/uuid"

	"github.com/opsforge/mothball/internal/domain/events"
)

// Event types emitted over a batch run:
const (
	EventTypePhaseStarted   events.EventType = "PhaseStarted"
	EventTypePhaseCancelled events.EventType = "PhaseCancelled"
	EventTypeTargetOutcome  events.EventType = "TargetOutcome"
	EventTypeBatchSummary   events.EventType = "BatchSummary"
)

// PhaseStartedEvent indicates a phase began dispatching eligible targets.
type PhaseStartedEvent struct {
	occurredAt  time.Time
	BatchID     uuid.UUID
	Operator    string
	Phase       Phase
	TargetCount int
}

func NewPhaseStartedEvent(batchID uuid.UUID, operator string, phase Phase, targetCount int) PhaseStartedEvent {
	return PhaseStartedEvent{
		occurredAt:  time.Now(),
		BatchID:     batchID,
		Operator:    operator,
		Phase:       phase,
		TargetCount: targetCount,
	}
}

func (e PhaseStartedEvent) EventType() events.EventType { return EventTypePhaseStarted }
func (e PhaseStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// PhaseCancelledEvent indicates a batch-level safety gate denied a phase
// before any target was dispatched. No target state was mutated.
type PhaseCancelledEvent struct {
	occurredAt time.Time
	BatchID    uuid.UUID
	Operator   string
	Phase      Phase
	Reason     string
}

func NewPhaseCancelledEvent(batchID uuid.UUID, operator string, phase Phase, reason string) PhaseCancelledEvent {
	return PhaseCancelledEvent{
		occurredAt: time.Now(),
		BatchID:    batchID,
		Operator:   operator,
		Phase:      phase,
		Reason:     reason,
	}
}

func (e PhaseCancelledEvent) EventType() events.EventType { return EventTypePhaseCancelled }
func (e PhaseCancelledEvent) OccurredAt() time.Time       { return e.occurredAt }

// TargetOutcomeEvent records one phase outcome for one target. This is the
// unit the audit sink persists.
type TargetOutcomeEvent struct {
	occurredAt time.Time
	BatchID    uuid.UUID
	Operator   string
	Target     string
	Outcome    PhaseOutcome
}

func NewTargetOutcomeEvent(batchID uuid.UUID, operator, target string, outcome PhaseOutcome) TargetOutcomeEvent {
	return TargetOutcomeEvent{
		occurredAt: time.Now(),
		BatchID:    batchID,
		Operator:   operator,
		Target:     target,
		Outcome:    outcome,
	}
}

func (e TargetOutcomeEvent) EventType() events.EventType { return EventTypeTargetOutcome }
func (e TargetOutcomeEvent) OccurredAt() time.Time       { return e.occurredAt }

// BatchSummaryEvent carries the aggregated per-phase result counts for a
// completed phase invocation.
type BatchSummaryEvent struct {
	occurredAt time.Time
	BatchID    uuid.UUID
	Operator   string
	Summary    BatchSummary
}

func NewBatchSummaryEvent(batchID uuid.UUID, operator string, summary BatchSummary) BatchSummaryEvent {
	return BatchSummaryEvent{
		occurredAt: time.Now(),
		BatchID:    batchID,
		Operator:   operator,
		Summary:    summary,
	}
}

func (e BatchSummaryEvent) EventType() events.EventType { return EventTypeBatchSummary }
func (e BatchSummaryEvent) OccurredAt() time.Time       { return e.occurredAt }
