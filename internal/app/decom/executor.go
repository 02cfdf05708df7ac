package decom

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// ProgressFn receives incremental completion counts while a phase drains.
// It is advisory: correctness does not depend on anyone consuming it.
type ProgressFn func(completed, total int)

// PhaseExecutor fans one phase's action out across all eligible targets with
// bounded parallelism and collects every outcome. One target's failure,
// panic, or timeout never cancels, delays indefinitely, or corrupts the
// outcome of any sibling.
type PhaseExecutor struct {
	concurrency int
	limiter     *common.RateLimiter
	clock       domain.TimeProvider

	logger  *logger.Logger
	metrics DecomMetrics
	tracer  trace.Tracer
}

// NewPhaseExecutor creates a PhaseExecutor with the given worker pool size.
// The limiter is optional; when present every collaborator dispatch waits on
// it first. Unbounded parallelism is rejected: concurrency is clamped to at
// least one worker.
func NewPhaseExecutor(
	concurrency int,
	limiter *common.RateLimiter,
	clock domain.TimeProvider,
	log *logger.Logger,
	metrics DecomMetrics,
	tracer trace.Tracer,
) *PhaseExecutor {
	if concurrency < 1 {
		concurrency = 1
	}
	if clock == nil {
		clock = domain.DefaultTimeProvider()
	}
	return &PhaseExecutor{
		concurrency: concurrency,
		limiter:     limiter,
		clock:       clock,
		logger:      log.With("component", "phase_executor", "num_workers", concurrency),
		metrics:     metrics,
		tracer:      tracer,
	}
}

type targetOutcome struct {
	key     string
	outcome domain.PhaseOutcome
}

// Run executes the action against every target and returns one outcome per
// target, keyed by the target's case-folded name. The call returns only
// when every dispatched unit has reported; no outcome is ever silently
// dropped.
//
// Cancellation is cooperative: once ctx is done no new targets are
// dispatched and the remainder are marked Cancelled, but targets already
// handed to a worker run to completion so external systems are never left
// half-mutated by a forced kill.
func (e *PhaseExecutor) Run(
	ctx context.Context,
	action PhaseAction,
	targets []*domain.TargetState,
	onProgress ProgressFn,
) map[string]domain.PhaseOutcome {
	phase := action.Phase()

	ctx, span := e.tracer.Start(ctx, "phase_executor.run",
		trace.WithAttributes(
			attribute.String("phase", phase.String()),
			attribute.Int("target_count", len(targets)),
			attribute.Int("num_workers", e.concurrency),
		))
	defer span.End()

	total := len(targets)
	results := make(chan targetOutcome, total)
	work := make(chan *domain.TargetState)

	// Dispatched work must survive phase cancellation, so workers execute
	// against a context detached from ctx's cancel signal. Per-call
	// timeouts inside the actions still bound each collaborator call.
	execCtx := context.WithoutCancel(ctx)

	e.metrics.SetActiveWorkers(ctx, e.concurrency)
	defer e.metrics.SetActiveWorkers(ctx, 0)

	var wg sync.WaitGroup
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range work {
				results <- targetOutcome{
					key:     target.Key(),
					outcome: e.execute(ctx, execCtx, action, target),
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, target := range targets {
			// Once cancellation lands, everything still queued is marked
			// cancelled without racing the workers for the send.
			if ctx.Err() != nil {
				results <- e.cancelledOutcome(phase, target)
				continue
			}
			select {
			case <-ctx.Done():
				results <- e.cancelledOutcome(phase, target)
			case work <- target:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make(map[string]domain.PhaseOutcome, total)
	completed := 0
	for r := range results {
		outcomes[r.key] = r.outcome
		completed++

		e.metrics.IncTargetOutcome(ctx, phase, r.outcome.Status())
		if onProgress != nil {
			onProgress(completed, total)
		}
	}

	span.AddEvent("phase_drained", trace.WithAttributes(
		attribute.Int("outcomes", len(outcomes)),
	))

	return outcomes
}

func (e *PhaseExecutor) cancelledOutcome(phase domain.Phase, target *domain.TargetState) targetOutcome {
	return targetOutcome{
		key: target.Key(),
		outcome: domain.NewPhaseOutcome(
			phase, domain.OutcomeCancelled, "phase cancelled before dispatch", e.clock.Now()),
	}
}

// execute runs one action invocation, converting panics and limiter
// cancellations into structured outcomes. The limiter waits on the
// cancellable phase context: a worker parked on it has not touched the
// target yet, so cancelling there is safe. Only the collaborator call runs
// detached.
func (e *PhaseExecutor) execute(waitCtx, execCtx context.Context, action PhaseAction, target *domain.TargetState) (outcome domain.PhaseOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(execCtx, "phase action panicked",
				"phase", action.Phase().String(), "target", target.Name(), "panic", fmt.Sprintf("%v", r))
			outcome = domain.NewPhaseOutcome(
				action.Phase(), domain.OutcomeFailed, fmt.Sprintf("internal error: %v", r), e.clock.Now())
		}
	}()

	if e.limiter != nil {
		if err := e.limiter.Wait(waitCtx); err != nil {
			return domain.NewPhaseOutcome(
				action.Phase(), domain.OutcomeCancelled, "cancelled while rate limited", e.clock.Now())
		}
	}

	return action.Execute(execCtx, target)
}
