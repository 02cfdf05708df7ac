package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/opsforge/mothball/internal/domain/decom"
)

// vm is one seeded virtual machine record.
type vm struct {
	ref       string
	poweredOn bool
}

// Hypervisor is an in-memory hypervisor manager instance. VMs are seeded by
// name; each gets a synthetic manager-specific ref.
type Hypervisor struct {
	name string

	mu  sync.Mutex
	vms map[string]*vm

	poweredOff []string
	deleted    []string

	// FindErr, PowerOffErr, and DeleteErr, when set, are returned by the
	// corresponding operation.
	FindErr     error
	PowerOffErr error
	DeleteErr   error
}

// NewHypervisor creates a named Hypervisor seeded with the given VM names,
// all powered on.
func NewHypervisor(name string, vmNames ...string) *Hypervisor {
	h := &Hypervisor{name: name, vms: make(map[string]*vm, len(vmNames))}
	for _, n := range vmNames {
		h.AddVM(n)
	}
	return h
}

// AddVM seeds a powered-on VM.
func (h *Hypervisor) AddVM(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vms[key(name)] = &vm{
		ref:       fmt.Sprintf("%s-vm-%s", h.name, key(name)),
		poweredOn: true,
	}
}

// Name implements decom.HypervisorManager.
func (h *Hypervisor) Name() string { return h.name }

// FindVM implements decom.HypervisorManager.
func (h *Hypervisor) FindVM(ctx context.Context, name string) (domain.VMHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.FindErr != nil {
		return domain.VMHandle{}, h.FindErr
	}
	record, ok := h.vms[key(name)]
	if !ok {
		return domain.VMHandle{}, nil
	}
	return domain.VMHandle{Found: true, Ref: record.ref}, nil
}

// PowerOff implements decom.HypervisorManager. Powering off an already-off
// VM succeeds.
func (h *Hypervisor) PowerOff(ctx context.Context, vmRef string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.PowerOffErr != nil {
		return h.PowerOffErr
	}
	record := h.byRef(vmRef)
	if record == nil {
		return fmt.Errorf("no vm with ref %q", vmRef)
	}
	record.poweredOn = false
	h.poweredOff = append(h.poweredOff, vmRef)
	return nil
}

// Delete implements decom.HypervisorManager.
func (h *Hypervisor) Delete(ctx context.Context, vmRef string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.DeleteErr != nil {
		return h.DeleteErr
	}
	for k, record := range h.vms {
		if record.ref == vmRef {
			delete(h.vms, k)
			h.deleted = append(h.deleted, vmRef)
			return nil
		}
	}
	return fmt.Errorf("no vm with ref %q", vmRef)
}

// PoweredOff returns the VM refs powered off so far, in call order.
func (h *Hypervisor) PoweredOff() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.poweredOff))
	copy(out, h.poweredOff)
	return out
}

// Deleted returns the VM refs deleted so far, in call order.
func (h *Hypervisor) Deleted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.deleted))
	copy(out, h.deleted)
	return out
}

// HasVM reports whether a VM currently exists for the name.
func (h *Hypervisor) HasVM(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.vms[key(name)]
	return ok
}

func (h *Hypervisor) byRef(vmRef string) *vm {
	for _, record := range h.vms {
		if record.ref == vmRef {
			return record
		}
	}
	return nil
}
