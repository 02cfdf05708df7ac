package decom

import (
	"context"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// StopAction powers a target down: a backend power-off call for virtual
// machines, a remote OS shutdown for physical hosts.
type StopAction struct {
	backends   BackendSet
	shutdowner domain.RemoteShutdowner
	timeout    time.Duration
	out        outcomes
	logger     *logger.Logger
}

// NewStopAction creates the stop phase action.
func NewStopAction(
	backends BackendSet,
	shutdowner domain.RemoteShutdowner,
	timeout time.Duration,
	clock domain.TimeProvider,
	log *logger.Logger,
) *StopAction {
	return &StopAction{
		backends:   backends,
		shutdowner: shutdowner,
		timeout:    timeout,
		out:        outcomes{phase: domain.PhaseStop, clock: clock},
		logger:     log.With("component", "stop_action"),
	}
}

// Phase implements PhaseAction.
func (a *StopAction) Phase() domain.Phase { return domain.PhaseStop }

// Execute powers the target off. A virtual target without a backend ref is
// a skip, not an error: the machine simply is not mapped to any backend.
func (a *StopAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	if target.Classification() == domain.ClassificationPhysical {
		callCtx, cancel := callTimeout(ctx, a.timeout)
		defer cancel()

		if err := a.shutdowner.Shutdown(callCtx, target.Name()); err != nil {
			return a.out.failure(describeErr("remote shutdown", err))
		}
		return a.out.success("shutdown issued")
	}

	ref := target.Backend()
	if ref == nil {
		return a.out.skip("not mapped to backend")
	}

	backend, err := a.backends.Resolve(ref)
	if err != nil {
		return a.out.failure(describeErr("backend resolve", err))
	}

	callCtx, cancel := callTimeout(ctx, a.timeout)
	defer cancel()

	if err := backend.PowerOff(callCtx, ref.VMRef()); err != nil {
		return a.out.failure(describeErr("power off", err))
	}

	a.logger.Info(ctx, "powered off", "target", target.Name(), "backend", ref.Manager())
	return a.out.success("powered off")
}
