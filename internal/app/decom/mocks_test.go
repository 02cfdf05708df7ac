package decom

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	domain "github.com/opsforge/mothball/internal/domain/decom"
	"github.com/opsforge/mothball/internal/domain/events"
)

// mockTimeProvider pins the clock for deterministic outcomes.
type mockTimeProvider struct{ currentTime time.Time }

func (m *mockTimeProvider) Now() time.Time { return m.currentTime }

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testClock() *mockTimeProvider { return &mockTimeProvider{currentTime: testTime} }

type mockDirectoryService struct{ mock.Mock }

func (m *mockDirectoryService) FindComputer(ctx context.Context, name, searchRoot string) (domain.DirectoryEntry, error) {
	args := m.Called(ctx, name, searchRoot)
	return args.Get(0).(domain.DirectoryEntry), args.Error(1)
}

func (m *mockDirectoryService) DeleteComputer(ctx context.Context, distinguishedName string) error {
	args := m.Called(ctx, distinguishedName)
	return args.Error(0)
}

type mockHypervisorManager struct {
	mock.Mock
	name string
}

func (m *mockHypervisorManager) Name() string { return m.name }

func (m *mockHypervisorManager) FindVM(ctx context.Context, name string) (domain.VMHandle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.VMHandle), args.Error(1)
}

func (m *mockHypervisorManager) PowerOff(ctx context.Context, vmRef string) error {
	args := m.Called(ctx, vmRef)
	return args.Error(0)
}

func (m *mockHypervisorManager) Delete(ctx context.Context, vmRef string) error {
	args := m.Called(ctx, vmRef)
	return args.Error(0)
}

type mockInventorySystem struct{ mock.Mock }

func (m *mockInventorySystem) RemoveDevice(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

type mockBrokerService struct{ mock.Mock }

func (m *mockBrokerService) FindMachine(ctx context.Context, name string) (*domain.BrokerMachine, error) {
	args := m.Called(ctx, name)
	if machine := args.Get(0); machine != nil {
		return machine.(*domain.BrokerMachine), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerService) SetMaintenanceMode(ctx context.Context, machineRef string, on bool) error {
	args := m.Called(ctx, machineRef, on)
	return args.Error(0)
}

func (m *mockBrokerService) ListDeliveryGroups(ctx context.Context, machineRef string) ([]string, error) {
	args := m.Called(ctx, machineRef)
	if groups := args.Get(0); groups != nil {
		return groups.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerService) RemoveFromGroup(ctx context.Context, machineRef, group string) error {
	args := m.Called(ctx, machineRef, group)
	return args.Error(0)
}

func (m *mockBrokerService) RemoveFromCatalog(ctx context.Context, machineRef, catalog string) error {
	args := m.Called(ctx, machineRef, catalog)
	return args.Error(0)
}

func (m *mockBrokerService) DeleteMachine(ctx context.Context, machineRef string) error {
	args := m.Called(ctx, machineRef)
	return args.Error(0)
}

type mockDNSService struct{ mock.Mock }

func (m *mockDNSService) RemoveARecord(ctx context.Context, zone, name string) error {
	args := m.Called(ctx, zone, name)
	return args.Error(0)
}

type mockLivenessChecker struct{ mock.Mock }

func (m *mockLivenessChecker) IsReachable(ctx context.Context, name string) bool {
	args := m.Called(ctx, name)
	return args.Bool(0)
}

type mockRemoteShutdowner struct{ mock.Mock }

func (m *mockRemoteShutdowner) Shutdown(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

// capturePublisher records published events in order.
type capturePublisher struct {
	published []events.DomainEvent
	err       error
}

func (p *capturePublisher) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *capturePublisher) byType(typ events.EventType) []events.DomainEvent {
	var out []events.DomainEvent
	for _, e := range p.published {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// discoveredVirtual builds an eligible virtual target mapped to a backend.
func discoveredVirtual(t *testing.T, name, manager, vmRef string) *domain.TargetState {
	target := domain.NewTargetState(name, domain.ClassificationVirtual)
	backend := domain.NewBackendRef(manager, vmRef)
	t.Helper()
	if err := target.SetDiscovered(domain.DirectoryFound, "CN="+name, &backend); err != nil {
		t.Fatalf("SetDiscovered: %v", err)
	}
	return target
}

// discoveredPhysical builds an eligible physical target.
func discoveredPhysical(t *testing.T, name string) *domain.TargetState {
	t.Helper()
	target := domain.NewTargetState(name, domain.ClassificationPhysical)
	if err := target.SetDiscovered(domain.DirectoryFound, "CN="+name, nil); err != nil {
		t.Fatalf("SetDiscovered: %v", err)
	}
	return target
}
