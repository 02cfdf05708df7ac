package decom

import (
	"context"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// DeleteVMAction issues the irreversible backend deletion for a virtual
// target. It carries its own physical-hardware guard independent of the
// safety gate: even if the gate were bypassed, a physical target must never
// reach the hypervisor deletion call.
type DeleteVMAction struct {
	backends BackendSet
	timeout  time.Duration
	out      outcomes
	logger   *logger.Logger
}

// NewDeleteVMAction creates the deletion phase action.
func NewDeleteVMAction(
	backends BackendSet,
	timeout time.Duration,
	clock domain.TimeProvider,
	log *logger.Logger,
) *DeleteVMAction {
	return &DeleteVMAction{
		backends: backends,
		timeout:  timeout,
		out:      outcomes{phase: domain.PhaseDeleteVM, clock: clock},
		logger:   log.With("component", "delete_vm_action"),
	}
}

// Phase implements PhaseAction.
func (a *DeleteVMAction) Phase() domain.Phase { return domain.PhaseDeleteVM }

// Execute deletes the VM from its owning backend.
func (a *DeleteVMAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	if target.Classification() == domain.ClassificationPhysical {
		// The orchestrator and safety gate should have filtered this target
		// out already. Refusing here keeps the guarantee even when they are
		// bypassed.
		a.logger.Error(ctx, "deletion attempted against physical hardware",
			"target", target.Name())
		return a.out.failure("policy violation: target is physical hardware")
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

	if err := backend.Delete(callCtx, ref.VMRef()); err != nil {
		return a.out.failure(describeErr("vm delete", err))
	}

	a.logger.Info(ctx, "vm deleted", "target", target.Name(), "backend", ref.Manager())
	return a.out.success("vm deleted")
}
