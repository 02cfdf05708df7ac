package decom

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

func brokerAction(broker domain.DesktopBrokerService, optedIn bool) *CleanBrokerAction {
	return NewCleanBrokerAction(broker, optedIn, testTimeout, testClock(), logger.Noop())
}

func TestCleanBrokerAction_NotOptedInSkips(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	action := brokerAction(broker, false)

	outcome := action.Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

	assert.Equal(t, domain.OutcomeSkipped, outcome.Status())
	assert.Equal(t, "broker cleanup not requested", outcome.Message())
	broker.AssertNotCalled(t, "FindMachine", mock.Anything, mock.Anything)
}

func TestCleanBrokerAction_PhysicalSkips(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	action := brokerAction(broker, true)

	outcome := action.Execute(context.Background(), discoveredPhysical(t, "rack-07"))

	assert.Equal(t, domain.OutcomeSkipped, outcome.Status())
	broker.AssertNotCalled(t, "FindMachine", mock.Anything, mock.Anything)
}

func TestCleanBrokerAction_NoMachineObjectIsSuccess(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	broker.On("FindMachine", mock.Anything, "vdi-01").Return(nil, nil)

	outcome := brokerAction(broker, true).
		Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	assert.Equal(t, "already clean: no broker machine object", outcome.Message())
}

func TestCleanBrokerAction_FullCleanup(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	broker.On("FindMachine", mock.Anything, "vdi-01").Return(&domain.BrokerMachine{
		Ref:            "m-1",
		Catalog:        "win11",
		DeliveryGroups: []string{"grp-a", "grp-b"},
	}, nil)
	broker.On("SetMaintenanceMode", mock.Anything, "m-1", true).Return(nil)
	broker.On("RemoveFromGroup", mock.Anything, "m-1", "grp-a").Return(nil)
	broker.On("RemoveFromGroup", mock.Anything, "m-1", "grp-b").Return(nil)
	broker.On("RemoveFromCatalog", mock.Anything, "m-1", "win11").Return(nil)
	broker.On("DeleteMachine", mock.Anything, "m-1").Return(nil)

	outcome := brokerAction(broker, true).
		Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	assert.Equal(t, "machine object deleted", outcome.Message())
	broker.AssertExpectations(t)
	broker.AssertNotCalled(t, "ListDeliveryGroups", mock.Anything, mock.Anything)
}

func TestCleanBrokerAction_MaintenanceSkippedWhenAlreadyOffOrInMaintenance(t *testing.T) {
	t.Parallel()

	for _, machine := range []*domain.BrokerMachine{
		{Ref: "m-1", PoweredOff: true, DeliveryGroups: []string{}},
		{Ref: "m-1", InMaintenance: true, DeliveryGroups: []string{}},
	} {
		broker := new(mockBrokerService)
		broker.On("FindMachine", mock.Anything, "vdi-01").Return(machine, nil)
		broker.On("DeleteMachine", mock.Anything, "m-1").Return(nil)

		outcome := brokerAction(broker, true).
			Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

		assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
		broker.AssertNotCalled(t, "SetMaintenanceMode", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestCleanBrokerAction_ListsGroupsWhenNotInlined(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	broker.On("FindMachine", mock.Anything, "vdi-01").Return(&domain.BrokerMachine{
		Ref:        "m-1",
		PoweredOff: true,
	}, nil)
	broker.On("ListDeliveryGroups", mock.Anything, "m-1").Return([]string{"grp-a"}, nil)
	broker.On("RemoveFromGroup", mock.Anything, "m-1", "grp-a").Return(nil)
	broker.On("DeleteMachine", mock.Anything, "m-1").Return(nil)

	outcome := brokerAction(broker, true).
		Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	broker.AssertExpectations(t)
}

func TestCleanBrokerAction_SubStepFailuresDoNotFailTheDelete(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	broker.On("FindMachine", mock.Anything, "vdi-01").Return(&domain.BrokerMachine{
		Ref:            "m-1",
		Catalog:        "win11",
		DeliveryGroups: []string{"grp-a", "grp-b"},
	}, nil)
	broker.On("SetMaintenanceMode", mock.Anything, "m-1", true).Return(errors.New("maintenance refused"))
	broker.On("RemoveFromGroup", mock.Anything, "m-1", "grp-a").Return(errors.New("group busy"))
	broker.On("RemoveFromGroup", mock.Anything, "m-1", "grp-b").Return(nil)
	broker.On("RemoveFromCatalog", mock.Anything, "m-1", "win11").Return(nil)
	broker.On("DeleteMachine", mock.Anything, "m-1").Return(nil)

	outcome := brokerAction(broker, true).
		Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

	// One group failing does not stop the others, and the delete still
	// decides overall success.
	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	assert.Contains(t, outcome.Message(), "sub-steps failed")
	assert.Contains(t, outcome.Message(), "group busy")
	broker.AssertExpectations(t)
}

func TestCleanBrokerAction_DeleteFailureFailsThePhase(t *testing.T) {
	t.Parallel()

	broker := new(mockBrokerService)
	broker.On("FindMachine", mock.Anything, "vdi-01").Return(&domain.BrokerMachine{
		Ref:            "m-1",
		PoweredOff:     true,
		DeliveryGroups: []string{},
	}, nil)
	broker.On("DeleteMachine", mock.Anything, "m-1").Return(errors.New("object locked"))

	outcome := brokerAction(broker, true).
		Execute(context.Background(), discoveredVirtual(t, "vdi-01", "vcenter-1", "vm-1"))

	assert.Equal(t, domain.OutcomeFailed, outcome.Status())
	assert.Contains(t, outcome.Message(), "object locked")
}
