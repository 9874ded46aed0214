package fdbridge

import (
	"maps"
	"sync"
)

// Registry maps logical names to descriptor locators. It is shared by the
// host (through Bridge) and by code inside the embedded runtime (through the
// node_fd_pass binding), and a single mutex orders every read and write.
//
// Locators are opaque. By convention they look like "fd://3", but any string
// is stored as given. Entries live until the registry is dropped; there is no
// unregister. The zero value is an empty registry ready for use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Register stores locator under name, replacing any previous locator for
// that name. No validation is done here; see Bridge.RegisterDescriptor.
func (r *Registry) Register(name, locator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]string)
	}
	r.entries[name] = locator
}

// Lookup returns the locator registered under name.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locator, ok := r.entries[name]
	return locator, ok
}

// Snapshot returns a copy of the current entries. The copy is not updated by
// later registrations.
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := maps.Clone(r.entries)
	if out == nil {
		out = make(map[string]string)
	}
	return out
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
