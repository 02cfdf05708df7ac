package memory

import (
	"context"
	"fmt"
	"sync"
)

// DNS is an in-memory DNS server holding forward A records per zone.
type DNS struct {
	mu      sync.Mutex
	zones   map[string]map[string]struct{}
	removed []string

	// RemoveErr, when set, is returned by RemoveARecord.
	RemoveErr error
}

// NewDNS creates an empty DNS server.
func NewDNS() *DNS {
	return &DNS{zones: make(map[string]map[string]struct{})}
}

// AddRecord seeds an A record for name in the zone.
func (d *DNS) AddRecord(zone, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	records, ok := d.zones[zone]
	if !ok {
		records = make(map[string]struct{})
		d.zones[zone] = records
	}
	records[key(name)] = struct{}{}
}

// RemoveARecord implements decom.DnsService. Removing an absent record is an
// error: the DNS collaborator exposes no found-or-not distinction, so the
// caller treats any error as a failure.
func (d *DNS) RemoveARecord(ctx context.Context, zone, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.RemoveErr != nil {
		return d.RemoveErr
	}
	records, ok := d.zones[zone]
	if !ok {
		return fmt.Errorf("zone %q not hosted", zone)
	}
	if _, ok := records[key(name)]; !ok {
		return fmt.Errorf("no A record for %q in zone %q", name, zone)
	}
	delete(records, key(name))
	d.removed = append(d.removed, fmt.Sprintf("%s.%s", key(name), zone))
	return nil
}

// Removed returns the fully qualified records removed so far, in call order.
func (d *DNS) Removed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.removed))
	copy(out, d.removed)
	return out
}

// Has reports whether an A record currently exists for name in the zone.
func (d *DNS) Has(zone, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	records, ok := d.zones[zone]
	if !ok {
		return false
	}
	_, ok = records[key(name)]
	return ok
}
