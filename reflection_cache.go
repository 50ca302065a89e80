package nasc

import (
	"reflect"
	"sync"
)

// descriptorCache memoizes descriptors to avoid repeated type analysis.
// Failures are cached too: describing a type is deterministic.
type descriptorCache struct {
	mu       sync.RWMutex
	provider TypeDescriptorProvider
	entries  map[reflect.Type]descriptorEntry
}

type descriptorEntry struct {
	desc *TypeDescriptor
	err  error
}

// newDescriptorCache creates a new descriptor cache around provider.
func newDescriptorCache(provider TypeDescriptorProvider) *descriptorCache {
	return &descriptorCache{
		provider: provider,
		entries:  make(map[reflect.Type]descriptorEntry),
	}
}

// describe retrieves or computes the descriptor of typ.
func (dc *descriptorCache) describe(typ reflect.Type) (*TypeDescriptor, error) {
	// Fast path: check cache with read lock
	dc.mu.RLock()
	entry, exists := dc.entries[typ]
	dc.mu.RUnlock()

	if exists {
		return entry.desc, entry.err
	}

	// Computed outside the lock: providers may be slow, and computing twice is harmless.
	desc, err := dc.provider.Describe(typ)
	if err == nil && desc == nil {
		err = &RegistrationError{Reason: "descriptor provider returned no descriptor for " + typ.String()}
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists = dc.entries[typ]; exists {
		return entry.desc, entry.err
	}
	dc.entries[typ] = descriptorEntry{desc: desc, err: err}
	return desc, err
}

// members returns the injection points of typ, or nil when it cannot be described.
func (dc *descriptorCache) members(typ reflect.Type) []MemberInfo {
	desc, err := dc.describe(typ)
	if err != nil {
		return nil
	}
	return desc.Members
}

// forget drops the cached descriptor of typ.
func (dc *descriptorCache) forget(typ reflect.Type) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	delete(dc.entries, typ)
}

// clear clears all cached data.
func (dc *descriptorCache) clear() {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.entries = make(map[reflect.Type]descriptorEntry)
}
