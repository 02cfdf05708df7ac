package decom

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/internal/domain/events"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// ResultAggregator turns per-target phase outcomes into published domain
// events and batch-level summaries. Publish failures are logged and do not
// affect phase execution; the authoritative record is the target state
// itself.
type ResultAggregator struct {
	publisher events.DomainEventPublisher
	clock     domain.TimeProvider

	logger *logger.Logger
	tracer trace.Tracer
}

// NewResultAggregator creates a ResultAggregator publishing through the given
// event publisher.
func NewResultAggregator(
	publisher events.DomainEventPublisher,
	clock domain.TimeProvider,
	log *logger.Logger,
	tracer trace.Tracer,
) *ResultAggregator {
	if clock == nil {
		clock = domain.DefaultTimeProvider()
	}
	return &ResultAggregator{
		publisher: publisher,
		clock:     clock,
		logger:    log.With("component", "result_aggregator"),
		tracer:    tracer,
	}
}

// PhaseStarted announces that a phase began dispatching the given number of
// eligible targets.
func (a *ResultAggregator) PhaseStarted(ctx context.Context, batch *domain.BatchRun, phase domain.Phase, targetCount int) {
	evt := domain.NewPhaseStartedEvent(batch.ID(), batch.Operator(), phase, targetCount)
	a.publish(ctx, evt.EventType(), evt, events.WithKey(batch.ID().String()))
}

// PhaseCancelled announces that a batch-level gate denied a phase before any
// target was dispatched.
func (a *ResultAggregator) PhaseCancelled(ctx context.Context, batch *domain.BatchRun, phase domain.Phase, reason string) {
	evt := domain.NewPhaseCancelledEvent(batch.ID(), batch.Operator(), phase, reason)
	a.publish(ctx, evt.EventType(), evt, events.WithKey(batch.ID().String()))
}

// TargetOutcome publishes one per-target phase outcome, keyed by the target
// name so one machine's audit trail can be replayed in order.
func (a *ResultAggregator) TargetOutcome(ctx context.Context, batch *domain.BatchRun, target *domain.TargetState, outcome domain.PhaseOutcome) {
	evt := domain.NewTargetOutcomeEvent(batch.ID(), batch.Operator(), target.Name(), outcome)
	a.publish(ctx, evt.EventType(), evt, events.WithKey(target.Key()))
}

// Summary builds the batch rollup from the current target states: one tally
// row per phase that produced at least one outcome, in canonical phase order,
// and one result row per target in batch order.
func (a *ResultAggregator) Summary(batch *domain.BatchRun) domain.BatchSummary {
	tallies := make(map[domain.Phase]*domain.PhaseTally)

	targets := batch.Targets()
	results := make([]domain.TargetResult, 0, len(targets))
	for _, target := range targets {
		outcomes := target.Outcomes()
		for _, outcome := range outcomes {
			tally, ok := tallies[outcome.Phase()]
			if !ok {
				tally = &domain.PhaseTally{Phase: outcome.Phase()}
				tallies[outcome.Phase()] = tally
			}
			switch outcome.Status() {
			case domain.OutcomeSuccess:
				tally.Succeeded++
			case domain.OutcomeFailed:
				tally.Failed++
			case domain.OutcomeSkipped:
				tally.Skipped++
			case domain.OutcomeCancelled:
				tally.Cancelled++
			}
		}
		results = append(results, domain.TargetResult{
			Name:     target.Name(),
			Status:   target.OverallStatus(),
			Eligible: target.Eligible(),
			Outcomes: outcomes,
		})
	}

	phases := make([]domain.PhaseTally, 0, len(tallies))
	for _, phase := range domain.AllPhases() {
		if tally, ok := tallies[phase]; ok {
			phases = append(phases, *tally)
		}
	}

	return domain.BatchSummary{
		BatchID:     batch.ID(),
		Operator:    batch.Operator(),
		StartedAt:   batch.Timeline().StartedAt(),
		GeneratedAt: a.clock.Now(),
		Phases:      phases,
		Targets:     results,
	}
}

// PublishSummary publishes the batch rollup as a single event.
func (a *ResultAggregator) PublishSummary(ctx context.Context, batch *domain.BatchRun) domain.BatchSummary {
	summary := a.Summary(batch)
	evt := domain.NewBatchSummaryEvent(batch.ID(), batch.Operator(), summary)
	a.publish(ctx, evt.EventType(), evt, events.WithKey(batch.ID().String()))
	return summary
}

func (a *ResultAggregator) publish(ctx context.Context, typ events.EventType, payload any, opts ...events.PublishOption) {
	ctx, span := a.tracer.Start(ctx, "result_aggregator.publish",
		trace.WithAttributes(attribute.String("event_type", string(typ))))
	defer span.End()

	evt := events.DomainEvent{
		Type:      typ,
		Timestamp: a.clock.Now(),
		Payload:   payload,
	}
	if err := a.publisher.PublishDomainEvent(ctx, evt, opts...); err != nil {
		span.RecordError(err)
		a.logger.Error(ctx, "failed to publish domain event", "event_type", string(typ), "err", err)
	}
}
