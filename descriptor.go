package nasc

import (
	"fmt"
	"reflect"
	"sync"
)

// ParamInfo describes one constructor parameter.
type ParamInfo struct {
	// Type is the declared contract type.
	Type reflect.Type
	// ID selects an identified binding.
	ID string
	// Optional parameters receive their default (or zero value) when nothing is bound.
	Optional bool
	// Default is used when the parameter cannot be resolved. Invalid means none.
	Default reflect.Value
	// IsContainer parameters receive the resolving container itself.
	IsContainer bool
	// Source restricts the lookup.
	Source Source
}

// MemberInfo describes a field injection point.
type MemberInfo struct {
	Name     string
	Index    []int
	Type     reflect.Type
	ID       string
	Optional bool
	Source   Source
}

// TypeDescriptor is the construction shape of a concrete type: its ordered
// constructor parameters and its member injection points. A descriptor must not
// be modified once handed to a container.
type TypeDescriptor struct {
	// Type is the concrete type produced.
	Type reflect.Type
	// Params are resolved in order and passed to Construct.
	Params []ParamInfo
	// Members are injected after construction.
	Members []MemberInfo
	// Construct builds the instance from resolved params. When nil the zero value
	// of Type is allocated.
	Construct func(args []reflect.Value) (interface{}, error)
}

// TypeDescriptorProvider returns the construction shape of a concrete type.
// Containers call it at most once per type and memoize the result.
type TypeDescriptorProvider interface {
	Describe(t reflect.Type) (*TypeDescriptor, error)
}

// TypeDescriptorProviderFunc adapts a function to TypeDescriptorProvider.
type TypeDescriptorProviderFunc func(t reflect.Type) (*TypeDescriptor, error)

// Describe calls f(t).
func (f TypeDescriptorProviderFunc) Describe(t reflect.Type) (*TypeDescriptor, error) {
	return f(t)
}

var containerType = reflect.TypeOf((*Container)(nil))

// ReflectDescriptors describes types by reflection: injection points come from
// `inject` struct tags and constructors from registered functions.
type ReflectDescriptors struct {
	mu           sync.RWMutex
	constructors map[reflect.Type]*TypeDescriptor
}

// NewReflectDescriptors creates a reflection based descriptor provider.
func NewReflectDescriptors() *ReflectDescriptors {
	return &ReflectDescriptors{
		constructors: make(map[reflect.Type]*TypeDescriptor),
	}
}

// AddConstructor registers fn as the constructor of the type it returns.
// ids are assigned positionally to the parameters; use "" for none.
func (r *ReflectDescriptors) AddConstructor(fn ConstructorFunc, ids ...string) error {
	desc, err := parseConstructor(fn, ids)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[desc.Type] = desc
	return nil
}

// Describe implements TypeDescriptorProvider.
func (r *ReflectDescriptors) Describe(t reflect.Type) (*TypeDescriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot describe nil type")
	}

	members, err := injectableMembers(t)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	ctor, hasCtor := r.constructors[t]
	r.mu.RUnlock()

	if hasCtor {
		return &TypeDescriptor{
			Type:      t,
			Params:    ctor.Params,
			Members:   members,
			Construct: ctor.Construct,
		}, nil
	}

	if !isStructOrStructPtr(t) {
		return nil, fmt.Errorf("cannot construct %v: not a struct and no constructor registered", t)
	}

	return &TypeDescriptor{
		Type:    t,
		Members: members,
	}, nil
}

func isStructOrStructPtr(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// injectableMembers returns the tagged fields of t, descending into embedded structs.
func injectableMembers(t reflect.Type) ([]MemberInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil
	}
	return collectMembers(t, nil)
}

func collectMembers(t reflect.Type, prefix []int) ([]MemberInfo, error) {
	var members []MemberInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag, hasTag := field.Tag.Lookup("inject")
		if !hasTag {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				nested, err := collectMembers(field.Type, index)
				if err != nil {
					return nil, err
				}
				members = append(members, nested...)
			}
			continue
		}

		opts, err := parseInjectTag(tag)
		if err != nil {
			return nil, fmt.Errorf("field %v.%s: %w", t, field.Name, err)
		}
		if opts.skip {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field %v.%s has an inject tag but is not exported", t, field.Name)
		}

		members = append(members, MemberInfo{
			Name:     field.Name,
			Index:    index,
			Type:     field.Type,
			ID:       opts.id,
			Optional: opts.optional,
			Source:   opts.source,
		})
	}

	return members, nil
}

var (
	defaultReflect    = NewReflectDescriptors()
	sharedDescriptors = newDescriptorCache(defaultReflect)
)

// RegisterConstructor registers fn as the process wide constructor of the type it
// returns. It is used by every container that keeps the default descriptor provider.
//
// Example:
//
//	nasc.RegisterConstructor(NewUserService)
func RegisterConstructor(fn ConstructorFunc, ids ...string) error {
	desc, err := parseConstructor(fn, ids)
	if err != nil {
		return err
	}
	if err := defaultReflect.AddConstructor(fn, ids...); err != nil {
		return err
	}
	sharedDescriptors.forget(desc.Type)
	return nil
}
