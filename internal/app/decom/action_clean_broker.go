package decom

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// CleanBrokerAction removes the target's virtual desktop broker machine
// object: maintenance mode first, then every delivery group and catalog
// association, then the machine object itself. Association and catalog
// removals are attempted independently; their failures are reported but do
// not block the final deletion attempt, whose result determines overall
// success.
type CleanBrokerAction struct {
	broker  domain.DesktopBrokerService
	optedIn bool
	timeout time.Duration
	out     outcomes
	logger  *logger.Logger
}

// NewCleanBrokerAction creates the broker cleanup action. The action runs
// only when the operator opted in; otherwise every target is excused.
func NewCleanBrokerAction(
	broker domain.DesktopBrokerService,
	optedIn bool,
	timeout time.Duration,
	clock domain.TimeProvider,
	log *logger.Logger,
) *CleanBrokerAction {
	return &CleanBrokerAction{
		broker:  broker,
		optedIn: optedIn,
		timeout: timeout,
		out:     outcomes{phase: domain.PhaseCleanBroker, clock: clock},
		logger:  log.With("component", "clean_broker_action"),
	}
}

// Phase implements PhaseAction.
func (a *CleanBrokerAction) Phase() domain.Phase { return domain.PhaseCleanBroker }

// Execute runs the broker cleanup sub-steps against the target.
func (a *CleanBrokerAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	if !a.optedIn {
		return a.out.skip("broker cleanup not requested")
	}
	if target.Classification() != domain.ClassificationVirtual {
		return a.out.skip("not a virtual target")
	}

	findCtx, cancelFind := callTimeout(ctx, a.timeout)
	machine, err := a.broker.FindMachine(findCtx, target.Name())
	cancelFind()
	if err != nil {
		return a.out.failure(describeErr("broker lookup", err))
	}
	if machine == nil {
		return a.out.success("already clean: no broker machine object")
	}

	var subErrors []string

	// Put the machine into maintenance mode unless it is already there or
	// already powered off.
	if !machine.InMaintenance && !machine.PoweredOff {
		if err := a.call(ctx, func(c context.Context) error {
			return a.broker.SetMaintenanceMode(c, machine.Ref, true)
		}); err != nil {
			subErrors = append(subErrors, describeErr("maintenance mode", err))
		}
	}

	groups := machine.DeliveryGroups
	if groups == nil {
		listed, err := a.listGroups(ctx, machine.Ref)
		if err != nil {
			subErrors = append(subErrors, describeErr("list delivery groups", err))
		}
		groups = listed
	}

	// Association removals are independent: one group failing does not stop
	// the others, and none of them stop the catalog removal or the final
	// deletion.
	for _, group := range groups {
		group := group
		if err := a.call(ctx, func(c context.Context) error {
			return a.broker.RemoveFromGroup(c, machine.Ref, group)
		}); err != nil {
			subErrors = append(subErrors, describeErr(fmt.Sprintf("remove from group %s", group), err))
		}
	}

	if machine.Catalog != "" {
		if err := a.call(ctx, func(c context.Context) error {
			return a.broker.RemoveFromCatalog(c, machine.Ref, machine.Catalog)
		}); err != nil {
			subErrors = append(subErrors, describeErr(fmt.Sprintf("remove from catalog %s", machine.Catalog), err))
		}
	}

	// The machine object deletion decides overall success.
	if err := a.call(ctx, func(c context.Context) error {
		return a.broker.DeleteMachine(c, machine.Ref)
	}); err != nil {
		msg := describeErr("delete machine object", err)
		if len(subErrors) > 0 {
			msg = msg + "; " + strings.Join(subErrors, "; ")
		}
		return a.out.failure(msg)
	}

	a.logger.Info(ctx, "broker machine object removed", "target", target.Name(), "sub_errors", len(subErrors))

	if len(subErrors) > 0 {
		return a.out.success("machine object deleted; sub-steps failed: " + strings.Join(subErrors, "; "))
	}
	return a.out.success("machine object deleted")
}

func (a *CleanBrokerAction) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := callTimeout(ctx, a.timeout)
	defer cancel()
	return fn(callCtx)
}

func (a *CleanBrokerAction) listGroups(ctx context.Context, machineRef string) ([]string, error) {
	callCtx, cancel := callTimeout(ctx, a.timeout)
	defer cancel()
	return a.broker.ListDeliveryGroups(callCtx, machineRef)
}
