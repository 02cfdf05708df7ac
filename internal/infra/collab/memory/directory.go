package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/opsforge/mothball/internal/domain/decom"
)

// Directory is an in-memory directory service. Computers are seeded by name
// and looked up case-insensitively.
type Directory struct {
	mu      sync.Mutex
	entries map[string]string
	deleted []string

	// FindErr and DeleteErr, when set, are returned by the corresponding
	// operation to simulate an unreachable or refusing directory.
	FindErr   error
	DeleteErr error
}

// NewDirectory creates a Directory seeded with the given computer names.
// Each seeded computer gets a synthetic distinguished name.
func NewDirectory(names ...string) *Directory {
	d := &Directory{entries: make(map[string]string, len(names))}
	for _, name := range names {
		d.Add(name)
	}
	return d
}

// Add seeds a computer entry.
func (d *Directory) Add(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key(name)] = fmt.Sprintf("CN=%s,OU=Servers,DC=example,DC=net", name)
}

// FindComputer implements decom.DirectoryService.
func (d *Directory) FindComputer(ctx context.Context, name, searchRoot string) (domain.DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FindErr != nil {
		return domain.DirectoryEntry{}, d.FindErr
	}
	dn, ok := d.entries[key(name)]
	if !ok {
		return domain.DirectoryEntry{}, nil
	}
	return domain.DirectoryEntry{Found: true, DistinguishedName: dn}, nil
}

// DeleteComputer implements decom.DirectoryService. The entry is removed by
// distinguished name; deleting an absent DN is a no-op, matching directory
// server semantics for already-gone objects.
func (d *Directory) DeleteComputer(ctx context.Context, distinguishedName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.DeleteErr != nil {
		return d.DeleteErr
	}
	for k, dn := range d.entries {
		if dn == distinguishedName {
			delete(d.entries, k)
			break
		}
	}
	d.deleted = append(d.deleted, distinguishedName)
	return nil
}

// Deleted returns the distinguished names deleted so far, in call order.
func (d *Directory) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.deleted))
	copy(out, d.deleted)
	return out
}

// Has reports whether a computer entry currently exists for the name.
func (d *Directory) Has(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key(name)]
	return ok
}
