package decom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// ErrConfirmationDenied is returned when the operator's confirmation token
// does not authorize the requested phase. No target state was mutated.
var ErrConfirmationDenied = errors.New("confirmation denied")

// ErrUnknownPhaseAction is returned when a phase has no registered action.
var ErrUnknownPhaseAction = errors.New("no action registered for phase")

// Orchestrator drives one batch run through its phases. All phase entry
// points serialize on an internal mutex: phases are strictly sequential by
// design, and target state is only ever merged between phases on the
// orchestrator's goroutine. Parallelism lives inside the executor, across
// targets within one phase.
type Orchestrator struct {
	mu    sync.Mutex
	batch *domain.BatchRun

	probe      *DiscoveryProbe
	gate       *SafetyGate
	executor   *PhaseExecutor
	aggregator *ResultAggregator
	actions    map[domain.Phase]PhaseAction
	clock      domain.TimeProvider

	logger  *logger.Logger
	metrics DecomMetrics
	tracer  trace.Tracer
}

// NewOrchestrator assembles the orchestrator for one batch run. The actions
// map must contain an entry for every phase the caller intends to trigger.
func NewOrchestrator(
	batch *domain.BatchRun,
	probe *DiscoveryProbe,
	gate *SafetyGate,
	executor *PhaseExecutor,
	aggregator *ResultAggregator,
	actions map[domain.Phase]PhaseAction,
	clock domain.TimeProvider,
	log *logger.Logger,
	metrics DecomMetrics,
	tracer trace.Tracer,
) *Orchestrator {
	if clock == nil {
		clock = domain.DefaultTimeProvider()
	}
	return &Orchestrator{
		batch:      batch,
		probe:      probe,
		gate:       gate,
		executor:   executor,
		aggregator: aggregator,
		actions:    actions,
		clock:      clock,
		logger:     log.With("component", "orchestrator", "batch_id", batch.ID().String()),
		metrics:    metrics,
		tracer:     tracer,
	}
}

// Batch returns the underlying batch run.
func (o *Orchestrator) Batch() *domain.BatchRun { return o.batch }

// Discover classifies every target in the batch and locates its owning
// backend. It is read-only against the external systems and safe to re-run;
// each run starts from a clean discovery slate while preserving prior phase
// outcome history. The batch is Ready afterwards iff at least one target was
// found somewhere.
func (o *Orchestrator) Discover(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "orchestrator.discover",
		trace.WithAttributes(attribute.String("batch_id", o.batch.ID().String())))
	defer span.End()

	if err := o.batch.SetState(domain.BatchStateDiscovering); err != nil {
		span.SetStatus(codes.Error, "invalid state for discovery")
		span.RecordError(err)
		return err
	}

	targets := o.batch.Targets()
	for _, target := range targets {
		target.ResetDiscovery()
	}

	o.metrics.IncPhaseStarted(ctx, domain.PhaseDiscover)
	o.metrics.ObserveBatchSize(ctx, len(targets))
	o.aggregator.PhaseStarted(ctx, o.batch, domain.PhaseDiscover, len(targets))
	o.logger.Info(ctx, "discovery started", "target_count", len(targets))

	phaseStart := o.clock.Now()
	action := newDiscoverAction(o.probe, o.clock, len(targets))
	outcomes := o.executor.Run(ctx, action, targets, nil)
	o.metrics.ObservePhaseDuration(ctx, domain.PhaseDiscover, o.clock.Now().Sub(phaseStart))

	for _, target := range targets {
		outcome, ok := outcomes[target.Key()]
		if !ok {
			// The executor guarantees one outcome per dispatched target;
			// a miss here is a programming error worth failing loudly on.
			outcome = domain.NewPhaseOutcome(
				domain.PhaseDiscover, domain.OutcomeFailed, "no outcome reported", o.clock.Now())
		}

		if result, found := action.result(target.Key()); found {
			if err := target.SetDiscovered(result.Directory, result.DirectoryDN, result.Backend); err != nil {
				o.logger.Error(ctx, "discovery merge rejected", "target", target.Name(), "err", err)
				outcome = domain.NewPhaseOutcome(
					domain.PhaseDiscover, domain.OutcomeFailed, err.Error(), o.clock.Now())
			}
		}

		target.RecordOutcome(outcome)
		o.aggregator.TargetOutcome(ctx, o.batch, target, outcome)
	}

	next := domain.BatchStateIdle
	if o.batch.HasDiscoveredTarget() {
		next = domain.BatchStateReady
	}
	if err := o.batch.SetState(next); err != nil {
		return err
	}

	o.logger.Info(ctx, "discovery complete",
		"eligible", len(o.batch.EligibleTargets()), "state", o.batch.State().String())
	span.AddEvent("discovery_complete", trace.WithAttributes(
		attribute.Int("eligible", len(o.batch.EligibleTargets()))))

	return nil
}

// Stop powers off every eligible target. No confirmation token is required:
// stopping is reversible.
func (o *Orchestrator) Stop(ctx context.Context) error {
	return o.RunPhase(ctx, domain.PhaseStop, "")
}

// Clean runs the four cleanup phases in their fixed order. Each phase is
// gated by the same cleanup confirmation token and drains completely before
// the next begins.
func (o *Orchestrator) Clean(ctx context.Context, confirmation string) error {
	for _, phase := range domain.CleanPhases() {
		if err := o.RunPhase(ctx, phase, confirmation); err != nil {
			return err
		}
	}
	return nil
}

// Delete issues the irreversible backend deletion for every eligible virtual
// target. Physical targets are never dispatched.
func (o *Orchestrator) Delete(ctx context.Context, confirmation string) error {
	return o.RunPhase(ctx, domain.PhaseDeleteVM, confirmation)
}

// RunPhase executes one phase against the batch's eligible targets. The
// protocol is fixed: transition to the running state, evaluate the batch
// confirmation gate, narrow the eligible set through per-target gates, fan
// out through the executor, merge every outcome back, and return to Ready.
// A gate denial cancels the phase before any target is touched.
func (o *Orchestrator) RunPhase(ctx context.Context, phase domain.Phase, confirmation string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "orchestrator.run_phase",
		trace.WithAttributes(
			attribute.String("batch_id", o.batch.ID().String()),
			attribute.String("phase", phase.String()),
		))
	defer span.End()

	if phase == domain.PhaseDiscover {
		return errors.New("discovery has a dedicated entry point")
	}

	action, ok := o.actions[phase]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhaseAction, phase)
	}

	if err := o.batch.SetState(domain.RunningState(phase)); err != nil {
		span.SetStatus(codes.Error, "phase refused")
		span.RecordError(err)
		return err
	}

	if decision := o.gate.BatchConfirmation(phase, confirmation); !decision.Allowed {
		o.metrics.IncPhaseCancelled(ctx, phase)
		o.aggregator.PhaseCancelled(ctx, o.batch, phase, decision.Reason)
		o.logger.Warn(ctx, "phase denied by confirmation gate",
			"phase", phase.String(), "reason", decision.Reason)
		span.AddEvent("phase_cancelled", trace.WithAttributes(
			attribute.String("reason", decision.Reason)))

		if err := o.batch.SetState(domain.BatchStateReady); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrConfirmationDenied, decision.Reason)
	}

	dispatch := o.selectTargets(ctx, phase)

	o.metrics.IncPhaseStarted(ctx, phase)
	o.aggregator.PhaseStarted(ctx, o.batch, phase, len(dispatch))
	o.logger.Info(ctx, "phase started", "phase", phase.String(), "target_count", len(dispatch))

	phaseStart := o.clock.Now()
	outcomes := o.executor.Run(ctx, action, dispatch, func(completed, total int) {
		o.logger.Debug(ctx, "phase progress",
			"phase", phase.String(), "completed", completed, "total", total)
	})
	o.metrics.ObservePhaseDuration(ctx, phase, o.clock.Now().Sub(phaseStart))

	failures := 0
	for _, target := range dispatch {
		outcome, ok := outcomes[target.Key()]
		if !ok {
			outcome = domain.NewPhaseOutcome(phase, domain.OutcomeFailed, "no outcome reported", o.clock.Now())
		}
		if outcome.Status().Failed() {
			failures++
		}
		target.RecordOutcome(outcome)
		o.aggregator.TargetOutcome(ctx, o.batch, target, outcome)
	}

	if err := o.batch.SetState(domain.BatchStateReady); err != nil {
		return err
	}

	o.logger.Info(ctx, "phase complete",
		"phase", phase.String(), "dispatched", len(dispatch), "failures", failures)
	span.AddEvent("phase_complete", trace.WithAttributes(
		attribute.Int("dispatched", len(dispatch)),
		attribute.Int("failures", failures),
	))

	return nil
}

// selectTargets narrows the eligible set through the per-target gates for
// the phase. Deletion silently excludes physical targets; they are out of
// the phase's universe, not skipped within it. Cleanup excuses targets that
// still answer a liveness probe, recording a skip so the roster shows why
// nothing was removed.
func (o *Orchestrator) selectTargets(ctx context.Context, phase domain.Phase) []*domain.TargetState {
	eligible := o.batch.EligibleTargets()

	var dispatch []*domain.TargetState
	for _, target := range eligible {
		if decision := o.gate.PhysicalProtection(target, phase); !decision.Allowed {
			o.logger.Info(ctx, "target excluded from deletion",
				"target", target.Name(), "reason", decision.Reason)
			continue
		}

		if phase.IsClean() {
			if decision := o.gate.LivenessGate(ctx, target); !decision.Allowed {
				outcome := domain.NewPhaseOutcome(phase, domain.OutcomeSkipped, decision.Reason, o.clock.Now())
				target.RecordOutcome(outcome)
				o.metrics.IncTargetOutcome(ctx, phase, domain.OutcomeSkipped)
				o.aggregator.TargetOutcome(ctx, o.batch, target, outcome)
				continue
			}
		}

		dispatch = append(dispatch, target)
	}
	return dispatch
}

// Summary builds and publishes the batch rollup.
func (o *Orchestrator) Summary(ctx context.Context) domain.BatchSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.aggregator.PublishSummary(ctx, o.batch)
}

// discoverAction adapts the read-only discovery probe to the executor's
// action shape. Probe results are parked per target and merged into the
// batch after the pool drains, so target state is never written from worker
// goroutines.
type discoverAction struct {
	probe *DiscoveryProbe
	clock domain.TimeProvider

	mu      sync.Mutex
	results map[string]DiscoveryResult
}

func newDiscoverAction(probe *DiscoveryProbe, clock domain.TimeProvider, capacity int) *discoverAction {
	return &discoverAction{
		probe:   probe,
		clock:   clock,
		results: make(map[string]DiscoveryResult, capacity),
	}
}

func (a *discoverAction) Phase() domain.Phase { return domain.PhaseDiscover }

func (a *discoverAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	result := a.probe.Discover(ctx, target.Name(), target.Classification())

	a.mu.Lock()
	a.results[target.Key()] = result
	a.mu.Unlock()

	if len(result.Errors) > 0 {
		return domain.NewPhaseOutcome(
			domain.PhaseDiscover, domain.OutcomeFailed, strings.Join(result.Errors, "; "), a.clock.Now())
	}
	return domain.NewPhaseOutcome(
		domain.PhaseDiscover, domain.OutcomeSuccess, describeDiscovery(result), a.clock.Now())
}

func (a *discoverAction) result(key string) (DiscoveryResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[key]
	return r, ok
}

func describeDiscovery(result DiscoveryResult) string {
	var parts []string
	switch result.Directory {
	case domain.DirectoryFound:
		parts = append(parts, "directory entry found")
	case domain.DirectoryNotFound:
		parts = append(parts, "no directory entry")
	}
	if result.Backend != nil {
		parts = append(parts, fmt.Sprintf("vm on %s", result.Backend.Manager()))
	} else {
		parts = append(parts, "no backend vm")
	}
	return strings.Join(parts, ", ")
}
