package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/opsforge/mothball/internal/domain/decom"
)

// brokerMachine is one seeded broker machine record.
type brokerMachine struct {
	ref           string
	catalog       string
	poweredOff    bool
	inMaintenance bool
	groups        []string
}

// Broker is an in-memory virtual desktop broker.
type Broker struct {
	mu       sync.Mutex
	machines map[string]*brokerMachine
	deleted  []string

	// ListGroupsEmpty makes FindMachine omit delivery group membership from
	// its result, forcing callers onto the ListDeliveryGroups path.
	ListGroupsEmpty bool

	// Per-operation injectable errors.
	FindErr          error
	MaintenanceErr   error
	ListGroupsErr    error
	RemoveGroupErr   error
	RemoveCatalogErr error
	DeleteErr        error
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{machines: make(map[string]*brokerMachine)}
}

// AddMachine seeds a broker machine object in the given catalog and delivery
// groups. The machine starts powered on and out of maintenance mode.
func (b *Broker) AddMachine(name, catalog string, groups ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.machines[key(name)] = &brokerMachine{
		ref:     fmt.Sprintf("broker-machine-%s", key(name)),
		catalog: catalog,
		groups:  append([]string(nil), groups...),
	}
}

// FindMachine implements decom.DesktopBrokerService.
func (b *Broker) FindMachine(ctx context.Context, name string) (*domain.BrokerMachine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FindErr != nil {
		return nil, b.FindErr
	}
	record, ok := b.machines[key(name)]
	if !ok {
		return nil, nil
	}

	machine := &domain.BrokerMachine{
		Ref:           record.ref,
		Catalog:       record.catalog,
		PoweredOff:    record.poweredOff,
		InMaintenance: record.inMaintenance,
	}
	if !b.ListGroupsEmpty {
		machine.DeliveryGroups = append([]string(nil), record.groups...)
	}
	return machine, nil
}

// SetMaintenanceMode implements decom.DesktopBrokerService.
func (b *Broker) SetMaintenanceMode(ctx context.Context, machineRef string, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.MaintenanceErr != nil {
		return b.MaintenanceErr
	}
	record := b.byRef(machineRef)
	if record == nil {
		return fmt.Errorf("no machine with ref %q", machineRef)
	}
	record.inMaintenance = on
	return nil
}

// ListDeliveryGroups implements decom.DesktopBrokerService.
func (b *Broker) ListDeliveryGroups(ctx context.Context, machineRef string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ListGroupsErr != nil {
		return nil, b.ListGroupsErr
	}
	record := b.byRef(machineRef)
	if record == nil {
		return nil, fmt.Errorf("no machine with ref %q", machineRef)
	}
	return append([]string(nil), record.groups...), nil
}

// RemoveFromGroup implements decom.DesktopBrokerService. Removing from a
// group the machine is not in succeeds.
func (b *Broker) RemoveFromGroup(ctx context.Context, machineRef, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.RemoveGroupErr != nil {
		return b.RemoveGroupErr
	}
	record := b.byRef(machineRef)
	if record == nil {
		return fmt.Errorf("no machine with ref %q", machineRef)
	}
	kept := record.groups[:0]
	for _, g := range record.groups {
		if g != group {
			kept = append(kept, g)
		}
	}
	record.groups = kept
	return nil
}

// RemoveFromCatalog implements decom.DesktopBrokerService.
func (b *Broker) RemoveFromCatalog(ctx context.Context, machineRef, catalog string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.RemoveCatalogErr != nil {
		return b.RemoveCatalogErr
	}
	record := b.byRef(machineRef)
	if record == nil {
		return fmt.Errorf("no machine with ref %q", machineRef)
	}
	record.catalog = ""
	return nil
}

// DeleteMachine implements decom.DesktopBrokerService.
func (b *Broker) DeleteMachine(ctx context.Context, machineRef string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	for k, record := range b.machines {
		if record.ref == machineRef {
			delete(b.machines, k)
			b.deleted = append(b.deleted, machineRef)
			return nil
		}
	}
	return fmt.Errorf("no machine with ref %q", machineRef)
}

// Deleted returns the machine refs deleted so far, in call order.
func (b *Broker) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.deleted))
	copy(out, b.deleted)
	return out
}

// InMaintenance reports whether the named machine is in maintenance mode.
func (b *Broker) InMaintenance(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.machines[key(name)]
	return ok && record.inMaintenance
}

// Has reports whether a machine object currently exists for the name.
func (b *Broker) Has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.machines[key(name)]
	return ok
}

func (b *Broker) byRef(machineRef string) *brokerMachine {
	for _, record := range b.machines {
		if record.ref == machineRef {
			return record
		}
	}
	return nil
}
