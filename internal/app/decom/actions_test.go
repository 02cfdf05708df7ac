package decom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/pkg/common/logger"
)

const testTimeout = 5 * time.Second

func TestStopAction_VirtualPowerOff(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	backend.On("PowerOff", mock.Anything, "vm-42").Return(nil)

	action := NewStopAction(
		NewBackendSet([]domain.HypervisorManager{backend}),
		&mockRemoteShutdowner{}, testTimeout, testClock(), logger.Noop())

	target := discoveredVirtual(t, "web-01", "vcenter-1", "vm-42")
	outcome := action.Execute(context.Background(), target)

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	assert.Equal(t, "powered off", outcome.Message())
	backend.AssertExpectations(t)
}

func TestStopAction_VirtualWithoutBackendSkips(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	action := NewStopAction(
		NewBackendSet([]domain.HypervisorManager{backend}),
		&mockRemoteShutdowner{}, testTimeout, testClock(), logger.Noop())

	target := domain.NewTargetState("web-01", domain.ClassificationVirtual)
	require.NoError(t, target.SetDiscovered(domain.DirectoryFound, "CN=web-01", nil))

	outcome := action.Execute(context.Background(), target)

	assert.Equal(t, domain.OutcomeSkipped, outcome.Status())
	backend.AssertNotCalled(t, "PowerOff", mock.Anything, mock.Anything)
}

func TestStopAction_PhysicalUsesRemoteShutdown(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	shutdowner := new(mockRemoteShutdowner)
	shutdowner.On("Shutdown", mock.Anything, "rack-07").Return(nil)

	action := NewStopAction(
		NewBackendSet([]domain.HypervisorManager{backend}),
		shutdowner, testTimeout, testClock(), logger.Noop())

	outcome := action.Execute(context.Background(), discoveredPhysical(t, "rack-07"))

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	shutdowner.AssertExpectations(t)
	backend.AssertNotCalled(t, "PowerOff", mock.Anything, mock.Anything)
}

func TestStopAction_PowerOffFailure(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	backend.On("PowerOff", mock.Anything, "vm-42").Return(errors.New("task stuck"))

	action := NewStopAction(
		NewBackendSet([]domain.HypervisorManager{backend}),
		&mockRemoteShutdowner{}, testTimeout, testClock(), logger.Noop())

	outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

	assert.Equal(t, domain.OutcomeFailed, outcome.Status())
	assert.Contains(t, outcome.Message(), "task stuck")
}

func TestCleanDirectoryAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		setup      func(*mockDirectoryService)
		wantStatus domain.OutcomeStatus
		wantMsg    string
	}{
		{
			name: "entry found and removed",
			setup: func(d *mockDirectoryService) {
				d.On("FindComputer", mock.Anything, "web-01", "OU=Servers").
					Return(domain.DirectoryEntry{Found: true, DistinguishedName: "CN=web-01,OU=Servers"}, nil)
				d.On("DeleteComputer", mock.Anything, "CN=web-01,OU=Servers").Return(nil)
			},
			wantStatus: domain.OutcomeSuccess,
			wantMsg:    "removed CN=web-01,OU=Servers",
		},
		{
			name: "already absent is success",
			setup: func(d *mockDirectoryService) {
				d.On("FindComputer", mock.Anything, "web-01", "OU=Servers").
					Return(domain.DirectoryEntry{}, nil)
			},
			wantStatus: domain.OutcomeSuccess,
			wantMsg:    "already clean: no directory entry",
		},
		{
			name: "lookup failure",
			setup: func(d *mockDirectoryService) {
				d.On("FindComputer", mock.Anything, "web-01", "OU=Servers").
					Return(domain.DirectoryEntry{}, errors.New("ldap unreachable"))
			},
			wantStatus: domain.OutcomeFailed,
		},
		{
			name: "delete failure",
			setup: func(d *mockDirectoryService) {
				d.On("FindComputer", mock.Anything, "web-01", "OU=Servers").
					Return(domain.DirectoryEntry{Found: true, DistinguishedName: "CN=web-01,OU=Servers"}, nil)
				d.On("DeleteComputer", mock.Anything, "CN=web-01,OU=Servers").
					Return(errors.New("insufficient rights"))
			},
			wantStatus: domain.OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			directory := new(mockDirectoryService)
			tt.setup(directory)

			action := NewCleanDirectoryAction(directory, "OU=Servers", testTimeout, testClock(), logger.Noop())
			outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

			assert.Equal(t, tt.wantStatus, outcome.Status())
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, outcome.Message())
			}
			directory.AssertExpectations(t)
		})
	}
}

func TestCleanInventoryAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		removed    bool
		err        error
		wantStatus domain.OutcomeStatus
		wantMsg    string
	}{
		{name: "removed", removed: true, wantStatus: domain.OutcomeSuccess, wantMsg: "removed from inventory"},
		{name: "already absent is success", removed: false, wantStatus: domain.OutcomeSuccess, wantMsg: "already clean: not in inventory"},
		{name: "remove failure", err: errors.New("api 500"), wantStatus: domain.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inventory := new(mockInventorySystem)
			inventory.On("RemoveDevice", mock.Anything, "web-01").Return(tt.removed, tt.err)

			action := NewCleanInventoryAction(inventory, testTimeout, testClock(), logger.Noop())
			outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

			assert.Equal(t, tt.wantStatus, outcome.Status())
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, outcome.Message())
			}
		})
	}
}

func TestCleanInventoryAction_SlowCallReportsTimeout(t *testing.T) {
	t.Parallel()

	// The collaborator honours cancellation but never answers on its own;
	// only the per-call deadline can end the call.
	inventory := new(mockInventorySystem)
	inventory.On("RemoveDevice", mock.Anything, "web-01").
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(false, context.DeadlineExceeded)

	action := NewCleanInventoryAction(inventory, 50*time.Millisecond, testClock(), logger.Noop())
	outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

	assert.Equal(t, domain.OutcomeFailed, outcome.Status())
	assert.Contains(t, outcome.Message(), "inventory remove timed out")
	inventory.AssertExpectations(t)
}

func TestCleanDNSAction_NoIdempotenceException(t *testing.T) {
	t.Parallel()

	dns := new(mockDNSService)
	dns.On("RemoveARecord", mock.Anything, "corp.example.net", "web-01").
		Return(errors.New("record not found"))

	action := NewCleanDNSAction(dns, "corp.example.net", testTimeout, testClock(), logger.Noop())
	outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

	// DNS removal deliberately reports absent records as failures.
	assert.Equal(t, domain.OutcomeFailed, outcome.Status())
	assert.Contains(t, outcome.Message(), "record not found")
}

func TestCleanDNSAction_Success(t *testing.T) {
	t.Parallel()

	dns := new(mockDNSService)
	dns.On("RemoveARecord", mock.Anything, "corp.example.net", "web-01").Return(nil)

	action := NewCleanDNSAction(dns, "corp.example.net", testTimeout, testClock(), logger.Noop())
	outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
}

func TestDeleteVMAction_Success(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	backend.On("Delete", mock.Anything, "vm-42").Return(nil)

	action := NewDeleteVMAction(
		NewBackendSet([]domain.HypervisorManager{backend}), testTimeout, testClock(), logger.Noop())

	outcome := action.Execute(context.Background(), discoveredVirtual(t, "web-01", "vcenter-1", "vm-42"))

	assert.Equal(t, domain.OutcomeSuccess, outcome.Status())
	backend.AssertExpectations(t)
}

func TestDeleteVMAction_PhysicalNeverReachesBackend(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	action := NewDeleteVMAction(
		NewBackendSet([]domain.HypervisorManager{backend}), testTimeout, testClock(), logger.Noop())

	outcome := action.Execute(context.Background(), discoveredPhysical(t, "rack-07"))

	assert.Equal(t, domain.OutcomeFailed, outcome.Status())
	assert.Contains(t, outcome.Message(), "policy violation")
	backend.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteVMAction_NoBackendRefSkips(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	action := NewDeleteVMAction(
		NewBackendSet([]domain.HypervisorManager{backend}), testTimeout, testClock(), logger.Noop())

	target := domain.NewTargetState("web-01", domain.ClassificationVirtual)
	require.NoError(t, target.SetDiscovered(domain.DirectoryFound, "CN=web-01", nil))

	outcome := action.Execute(context.Background(), target)

	assert.Equal(t, domain.OutcomeSkipped, outcome.Status())
	backend.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestBackendSet_Resolve(t *testing.T) {
	t.Parallel()

	backend := &mockHypervisorManager{name: "vcenter-1"}
	set := NewBackendSet([]domain.HypervisorManager{backend})

	ref := domain.NewBackendRef("vcenter-1", "vm-42")
	got, err := set.Resolve(&ref)
	require.NoError(t, err)
	assert.Equal(t, "vcenter-1", got.Name())

	unknown := domain.NewBackendRef("vcenter-9", "vm-42")
	_, err = set.Resolve(&unknown)
	assert.Error(t, err)

	_, err = set.Resolve(nil)
	assert.Error(t, err)
}
