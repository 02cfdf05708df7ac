// Package eventfanout forwards domain events to every registered sink.
// It lets one orchestration run feed the audit trail and any number of
// additional consumers (operator console, test collectors) without the
// publisher knowing about them.
package eventfanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsforge/mothball/internal/domain/events"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// Fanout implements events.DomainEventPublisher by forwarding each event to
// every registered sink. Sinks are invoked in registration order; a failing
// sink does not stop delivery to the remaining ones.
type Fanout struct {
	mu     sync.RWMutex
	sinks  []events.DomainEventPublisher
	tracer trace.Tracer
	logger *logger.Logger
}

// New constructs a Fanout with the provided sinks. Additional sinks can be
// registered later with Register.
func New(log *logger.Logger, tracer trace.Tracer, sinks ...events.DomainEventPublisher) *Fanout {
	return &Fanout{
		sinks:  sinks,
		tracer: tracer,
		logger: log.With("component", "event_fanout"),
	}
}

// Register adds a sink. Safe to call concurrently with publishing.
func (f *Fanout) Register(sink events.DomainEventPublisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

// PublishDomainEvent forwards the event to every sink and joins their errors.
// Every sink sees the event even when an earlier one fails; an audit entry
// must not be lost because a console sink misbehaved.
func (f *Fanout) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	ctx, span := f.tracer.Start(ctx, "event_fanout.publish",
		trace.WithAttributes(attribute.String("event_type", string(event.Type))))
	defer span.End()

	f.mu.RLock()
	sinks := make([]events.DomainEventPublisher, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink.PublishDomainEvent(ctx, event, opts...); err != nil {
			f.logger.Error(ctx, "event sink failed",
				"event_type", event.Type, "sink_type", fmt.Sprintf("%T", sink), "error", err)
			errs = append(errs, fmt.Errorf("sink %T: %w", sink, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "one or more sinks failed")
		return err
	}

	span.AddEvent("event_fanned_out", trace.WithAttributes(attribute.Int("sink_count", len(sinks))))
	return nil
}
