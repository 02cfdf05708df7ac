// Package audit persists domain events as an append-only JSON Lines trail.
// Every destructive action taken against an external system must leave a
// line here attributing it to an operator.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/internal/domain/events"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// Entry is one audit trail line. The shape is stable: downstream log
// shippers parse these fields by name.
type Entry struct {
	Time    time.Time `json:"time"`
	User    string    `json:"user"`
	Action  string    `json:"action"`
	Target  string    `json:"target,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Details string    `json:"details,omitempty"`
}

// Recorder writes domain events to a JSONL sink. It implements
// events.DomainEventPublisher so the aggregator needs no knowledge of the
// persistence format. Writes are serialized; the recorder is safe for
// concurrent publishers.
type Recorder struct {
	mu   sync.Mutex
	sink io.Writer
	enc  *json.Encoder
	tail []Entry

	tailLimit int
	logger    *logger.Logger
}

const defaultTailLimit = 256

// NewRecorder creates a Recorder appending to the given sink. The recorder
// keeps a bounded in-memory tail of recent entries for end-of-run display.
func NewRecorder(sink io.Writer, log *logger.Logger) *Recorder {
	return &Recorder{
		sink:      sink,
		enc:       json.NewEncoder(sink),
		tailLimit: defaultTailLimit,
		logger:    log.With("component", "audit_recorder"),
	}
}

// PublishDomainEvent renders the event as an audit entry and appends it to
// the trail.
func (r *Recorder) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}

	entry := r.toEntry(event, params)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.Encode(entry); err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}

	r.tail = append(r.tail, entry)
	if len(r.tail) > r.tailLimit {
		r.tail = r.tail[len(r.tail)-r.tailLimit:]
	}
	return nil
}

// Tail returns a copy of the most recent audit entries, oldest first.
func (r *Recorder) Tail() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.tail))
	copy(out, r.tail)
	return out
}

// toEntry flattens a typed domain event into the stable audit line shape.
// Unknown payload types still produce a line; the trail must never drop an
// event because a new type was added upstream.
func (r *Recorder) toEntry(event events.DomainEvent, params events.PublishParams) Entry {
	entry := Entry{
		Time:   event.Timestamp,
		Action: string(event.Type),
		Target: params.Key,
	}

	switch payload := event.Payload.(type) {
	case domain.PhaseStartedEvent:
		entry.User = payload.Operator
		entry.Details = fmt.Sprintf("phase %s dispatching %d targets", payload.Phase, payload.TargetCount)
	case domain.PhaseCancelledEvent:
		entry.User = payload.Operator
		entry.Outcome = "CANCELLED"
		entry.Details = payload.Reason
	case domain.TargetOutcomeEvent:
		entry.User = payload.Operator
		entry.Target = payload.Target
		entry.Outcome = string(payload.Outcome.Status())
		entry.Details = fmt.Sprintf("%s: %s", payload.Outcome.Phase(), payload.Outcome.Message())
	case domain.BatchSummaryEvent:
		entry.User = payload.Operator
		entry.Outcome = summaryOutcome(payload.Summary)
		entry.Details = fmt.Sprintf("%d targets, %d failures", len(payload.Summary.Targets), payload.Summary.FailureCount())
	default:
		entry.Details = fmt.Sprintf("%v", event.Payload)
	}

	return entry
}

func summaryOutcome(summary domain.BatchSummary) string {
	if summary.HasFailures() {
		return "FAILED"
	}
	return "SUCCESS"
}
