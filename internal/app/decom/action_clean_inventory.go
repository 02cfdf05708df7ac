package decom

import (
	"context"
	"time"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

// CleanInventoryAction removes the target from the configuration management
// inventory. Not-found is success, same as the directory cleanup.
type CleanInventoryAction struct {
	inventory domain.InventorySystem
	timeout   time.Duration
	out       outcomes
	logger    *logger.Logger
}

// NewCleanInventoryAction creates the inventory cleanup action.
func NewCleanInventoryAction(
	inventory domain.InventorySystem,
	timeout time.Duration,
	clock domain.TimeProvider,
	log *logger.Logger,
) *CleanInventoryAction {
	return &CleanInventoryAction{
		inventory: inventory,
		timeout:   timeout,
		out:       outcomes{phase: domain.PhaseCleanInventory, clock: clock},
		logger:    log.With("component", "clean_inventory_action"),
	}
}

// Phase implements PhaseAction.
func (a *CleanInventoryAction) Phase() domain.Phase { return domain.PhaseCleanInventory }

// Execute removes the device record.
func (a *CleanInventoryAction) Execute(ctx context.Context, target *domain.TargetState) domain.PhaseOutcome {
	callCtx, cancel := callTimeout(ctx, a.timeout)
	defer cancel()

	removed, err := a.inventory.RemoveDevice(callCtx, target.Name())
	if err != nil {
		return a.out.failure(describeErr("inventory remove", err))
	}

	if !removed {
		return a.out.success("already clean: not in inventory")
	}

	a.logger.Info(ctx, "inventory record removed", "target", target.Name())
	return a.out.success("removed from inventory")
}
