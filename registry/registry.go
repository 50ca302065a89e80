// Package registry provides ordered storage and retrieval of contract bindings.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrFrozen is returned when a binding is registered after the registry was frozen.
var ErrFrozen = errors.New("registry: frozen, bindings can only be added while installing")

// Key identifies a contract: a type plus an optional identifier.
// Two keys with the same type and identifier are equal, so Key is usable as a map key.
type Key struct {
	Type reflect.Type
	ID   string
}

// String renders the key as `Type` or `Type[id=foo]`.
func (k Key) String() string {
	typeStr := "<nil>"
	if k.Type != nil {
		typeStr = k.Type.String()
	}
	if k.ID == "" {
		return typeStr
	}
	return fmt.Sprintf("%s[id=%s]", typeStr, k.ID)
}

// Binding represents a mapping between a contract key and the provider that satisfies it.
type Binding struct {
	// Key is the contract being bound.
	Key Key

	// Provider produces instances for the contract.
	// Stores a nasc.Provider.
	Provider interface{}

	// Condition restricts the binding to matching requests.
	// Stores a nasc.BindingCondition, nil matches every request.
	Condition interface{}

	// Lifetime is informational: "transient", "singleton" or "scoped".
	Lifetime string

	// ConcreteID disambiguates construction of the concrete type.
	ConcreteID string

	// NonLazy marks the binding as a dependency root.
	NonLazy bool

	// Seq is the registration sequence number, assigned by Register.
	Seq uint64
}

// Registry stores bindings in registration order.
// Multiple bindings may exist for the same key; lookups return all of them.
type Registry struct {
	mu       sync.RWMutex
	bindings map[Key][]*Binding
	order    []*Binding
	keys     []Key
	seq      uint64
	frozen   bool
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		bindings: make(map[Key][]*Binding),
	}
}

// Register appends a binding for its key.
// Returns ErrFrozen once the registry has been frozen.
//
// This method is goroutine-safe.
func (r *Registry) Register(binding *Binding) error {
	if binding == nil {
		return fmt.Errorf("binding cannot be nil")
	}
	if binding.Key.Type == nil {
		return fmt.Errorf("binding key type cannot be nil")
	}
	if binding.Provider == nil {
		return fmt.Errorf("binding for %v has no provider", binding.Key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	r.seq++
	binding.Seq = r.seq

	if _, exists := r.bindings[binding.Key]; !exists {
		r.keys = append(r.keys, binding.Key)
	}
	r.bindings[binding.Key] = append(r.bindings[binding.Key], binding)
	r.order = append(r.order, binding)
	return nil
}

// Freeze makes the registry read-only. Freezing twice is a no-op.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry rejects new bindings.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns every binding registered for key, in registration order.
// The returned slice is a copy and may be modified by the caller.
//
// This method is goroutine-safe.
func (r *Registry) Get(key Key) []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bindings := r.bindings[key]
	if len(bindings) == 0 {
		return nil
	}
	result := make([]*Binding, len(bindings))
	copy(result, bindings)
	return result
}

// Has checks if at least one binding exists for key.
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings[key]) > 0
}

// All returns every binding in registration order.
func (r *Registry) All() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Binding, len(r.order))
	copy(result, r.order)
	return result
}

// NonLazy returns the bindings marked as dependency roots, in registration order.
func (r *Registry) NonLazy() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Binding
	for _, binding := range r.order {
		if binding.NonLazy {
			result = append(result, binding)
		}
	}
	return result
}

// Keys returns every bound key in order of first registration.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
