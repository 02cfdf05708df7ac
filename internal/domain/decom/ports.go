package decom

import "context"

// DirectoryEntry is the result of a directory service computer lookup.
type DirectoryEntry struct {
	Found             bool
	DistinguishedName string
}

// DirectoryService abstracts the directory (e.g. LDAP) collaborator. Concrete
// wire protocols live outside the core.
type DirectoryService interface {
	// FindComputer looks up the computer object for name under the given
	// search root. Absence of the entry is reported via the Found flag, not
	// an error; errors indicate the lookup itself could not be performed.
	FindComputer(ctx context.Context, name, searchRoot string) (DirectoryEntry, error)

	// DeleteComputer removes the computer object with the given
	// distinguished name.
	DeleteComputer(ctx context.Context, distinguishedName string) error
}

// VMHandle is the result of a hypervisor manager VM lookup.
type VMHandle struct {
	Found bool
	Ref   string
}

// HypervisorManager abstracts one named hypervisor manager instance that may
// own virtual targets. A deployment configures one or more instances; the
// discovery probe searches them in their configured order.
type HypervisorManager interface {
	// Name returns the configured instance name used in BackendRefs.
	Name() string

	// FindVM looks up the virtual machine by name. Absence is reported via
	// the Found flag, not an error.
	FindVM(ctx context.Context, name string) (VMHandle, error)

	// PowerOff powers the VM down.
	PowerOff(ctx context.Context, vmRef string) error

	// Delete irreversibly removes the VM.
	Delete(ctx context.Context, vmRef string) error
}

// InventorySystem abstracts the configuration management inventory.
type InventorySystem interface {
	// RemoveDevice removes the named device. The boolean reports whether the
	// device existed and was removed; absence is not an error.
	RemoveDevice(ctx context.Context, name string) (bool, error)
}

// BrokerMachine describes a virtual desktop broker machine object.
type BrokerMachine struct {
	Ref            string
	Catalog        string
	PoweredOff     bool
	InMaintenance  bool
	DeliveryGroups []string
}

// DesktopBrokerService abstracts the virtual desktop broker collaborator.
type DesktopBrokerService interface {
	// FindMachine looks up the broker machine object for the target name.
	// A nil result with a nil error means no machine object exists.
	FindMachine(ctx context.Context, name string) (*BrokerMachine, error)

	// SetMaintenanceMode toggles maintenance mode on the machine object.
	SetMaintenanceMode(ctx context.Context, machineRef string, on bool) error

	// ListDeliveryGroups returns the delivery groups the machine belongs to.
	ListDeliveryGroups(ctx context.Context, machineRef string) ([]string, error)

	// RemoveFromGroup removes the machine from one delivery group.
	RemoveFromGroup(ctx context.Context, machineRef, group string) error

	// RemoveFromCatalog removes the machine from its catalog.
	RemoveFromCatalog(ctx context.Context, machineRef, catalog string) error

	// DeleteMachine deletes the machine object.
	DeleteMachine(ctx context.Context, machineRef string) error
}

// DnsService abstracts the DNS server collaborator.
type DnsService interface {
	// RemoveARecord removes the forward A record for name from the zone.
	RemoveARecord(ctx context.Context, zone, name string) error
}

// LivenessChecker reports whether a target currently responds to a
// reachability probe. Cleanup must never run against a machine still in
// service.
type LivenessChecker interface {
	IsReachable(ctx context.Context, name string) bool
}

// RemoteShutdowner issues a remote OS shutdown to a physical host.
type RemoteShutdowner interface {
	Shutdown(ctx context.Context, name string) error
}
