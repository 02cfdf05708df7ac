package memory

import (
	"context"
	"sync"
)

// Inventory is an in-memory configuration management inventory.
type Inventory struct {
	mu      sync.Mutex
	devices map[string]struct{}
	removed []string

	// RemoveErr, when set, is returned by RemoveDevice.
	RemoveErr error
}

// NewInventory creates an Inventory seeded with the given device names.
func NewInventory(names ...string) *Inventory {
	inv := &Inventory{devices: make(map[string]struct{}, len(names))}
	for _, name := range names {
		inv.Add(name)
	}
	return inv
}

// Add seeds a device.
func (i *Inventory) Add(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.devices[key(name)] = struct{}{}
}

// RemoveDevice implements decom.InventorySystem.
func (i *Inventory) RemoveDevice(ctx context.Context, name string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.RemoveErr != nil {
		return false, i.RemoveErr
	}
	if _, ok := i.devices[key(name)]; !ok {
		return false, nil
	}
	delete(i.devices, key(name))
	i.removed = append(i.removed, name)
	return true, nil
}

// Removed returns the device names removed so far, in call order.
func (i *Inventory) Removed() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.removed))
	copy(out, i.removed)
	return out
}

// Has reports whether a device currently exists for the name.
func (i *Inventory) Has(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.devices[key(name)]
	return ok
}
