package nasc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-container/registry"
)

// BindingCondition decides, per request, whether a binding applies.
type BindingCondition func(ctx *InjectContext) bool

type providerKind int

const (
	kindSelf providerKind = iota
	kindType
	kindConstructor
	kindInstance
	kindInstances
	kindMethod
	kindSubContainer
	kindHost
)

// bindStatement is a binding under construction. It becomes a registry entry
// when the install call that created it finishes.
type bindStatement struct {
	key        ContractKey
	kind       providerKind
	concrete   reflect.Type
	ctor       *TypeDescriptor
	ctorOrigin string
	instance   interface{}
	instances  []interface{}
	method     MethodFunc
	installers []Installer
	host       interface{}
	args       []interface{}
	lifetime   Lifetime
	condition  BindingCondition
	concreteID string
	nonLazy    bool
	err        error
}

// BindingBuilder configures one binding. Every method returns the builder so
// calls can be chained; the first configuration error sticks and is reported by
// Install (or Err, when binding outside the install phase).
//
// Example:
//
//	c.Bind((*Logger)(nil)).To(&ConsoleLogger{}).AsSingle()
//	c.Bind((*Logger)(nil)).WithID("file").FromConstructor(NewFileLogger).AsSingle()
//	c.Bind((*Config)(nil)).FromInstance(cfg)
type BindingBuilder struct {
	c    *Container
	stmt *bindStatement
}

// Bind starts a binding for contract. contract is a typed nil pointer such as
// (*Logger)(nil) or a reflect.Type. Bindings may only be added while installing.
func (c *Container) Bind(contract interface{}) *BindingBuilder {
	t, err := contractType(contract)
	if err != nil {
		return &BindingBuilder{c: c, stmt: &bindStatement{err: &RegistrationError{Reason: "invalid contract", Cause: err}}}
	}
	return c.bindType(t)
}

// Bind starts a binding for T.
//
// Example:
//
//	nasc.Bind[Logger](c).To(&ConsoleLogger{}).AsSingle()
func Bind[T any](c *Container) *BindingBuilder {
	return c.bindType(typeFor[T]())
}

func (c *Container) bindType(t reflect.Type) *BindingBuilder {
	stmt := &bindStatement{
		key:      ContractKey{Type: t},
		kind:     kindSelf,
		concrete: t,
		lifetime: LifetimeTransient,
	}
	b := &BindingBuilder{c: c, stmt: stmt}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInstalling {
		key := stmt.key
		stmt.err = &RegistrationError{
			Key:    &key,
			Reason: fmt.Sprintf("bindings can only be added while the container is installing, it is %v", c.state),
		}
		// reported again by the next lifecycle call
		c.rejected = multierr.Append(c.rejected, stmt.err)
		c.logger.Error("binding rejected", zap.Stringer("contract", key), zap.Stringer("state", c.state))
		return b
	}
	c.pending = append(c.pending, stmt)
	return b
}

// Err returns the first configuration error of the binding.
func (b *BindingBuilder) Err() error {
	return b.stmt.err
}

func (b *BindingBuilder) fail(reason string, cause error) *BindingBuilder {
	if b.stmt.err == nil {
		key := b.stmt.key
		b.stmt.err = &RegistrationError{Key: &key, Reason: reason, Cause: cause}
	}
	return b
}

func (b *BindingBuilder) checkAssignable(t reflect.Type) bool {
	if b.stmt.key.Type != nil && !t.AssignableTo(b.stmt.key.Type) {
		b.fail(fmt.Sprintf("%v is not assignable to %v", t, b.stmt.key.Type), nil)
		return false
	}
	return true
}

// WithID registers the binding under id. Only requests for the same id match it.
func (b *BindingBuilder) WithID(id string) *BindingBuilder {
	b.stmt.key.ID = id
	return b
}

// To binds the contract to a concrete type, given as a value such as
// &ConsoleLogger{} or as a reflect.Type.
func (b *BindingBuilder) To(concrete interface{}) *BindingBuilder {
	t, err := concreteTypeOf(concrete)
	if err != nil {
		return b.fail("invalid concrete type", err)
	}
	if !b.checkAssignable(t) {
		return b
	}
	b.stmt.kind = kindType
	b.stmt.concrete = t
	return b
}

// ToSelf constructs the contract type itself.
func (b *BindingBuilder) ToSelf() *BindingBuilder {
	b.stmt.kind = kindSelf
	b.stmt.concrete = b.stmt.key.Type
	return b
}

// FromInstance binds a pre-existing instance. Lifetimes do not apply.
func (b *BindingBuilder) FromInstance(instance interface{}) *BindingBuilder {
	if instance == nil {
		return b.fail("instance cannot be nil", nil)
	}
	if !b.checkAssignable(reflect.TypeOf(instance)) {
		return b
	}
	b.stmt.kind = kindInstance
	b.stmt.instance = instance
	b.stmt.concrete = reflect.TypeOf(instance)
	return b
}

// FromInstances binds several pre-existing instances to the contract. A single
// resolve returns the last one; ResolveAll returns them all.
func (b *BindingBuilder) FromInstances(instances ...interface{}) *BindingBuilder {
	if len(instances) == 0 {
		return b.fail("at least one instance is required", nil)
	}
	for _, instance := range instances {
		if instance == nil {
			return b.fail("instance cannot be nil", nil)
		}
		if !b.checkAssignable(reflect.TypeOf(instance)) {
			return b
		}
	}
	b.stmt.kind = kindInstances
	b.stmt.instances = append([]interface{}(nil), instances...)
	return b
}

// FromConstructor constructs instances with fn. ids select identified bindings
// for fn's parameters, positionally.
func (b *BindingBuilder) FromConstructor(fn ConstructorFunc, ids ...string) *BindingBuilder {
	desc, err := parseConstructor(fn, ids)
	if err != nil {
		return b.fail("invalid constructor", err)
	}
	if !b.checkAssignable(desc.Type) {
		return b
	}
	b.stmt.kind = kindConstructor
	b.stmt.ctor = desc
	b.stmt.ctorOrigin = constructorOrigin(fn)
	b.stmt.concrete = desc.Type
	return b
}

// FromMethod calls fn for every request (or once, with AsSingle).
func (b *BindingBuilder) FromMethod(fn MethodFunc) *BindingBuilder {
	if fn == nil {
		return b.fail("method cannot be nil", nil)
	}
	b.stmt.kind = kindMethod
	b.stmt.method = fn
	return b
}

// FromSubContainerResolve resolves the contract from a child container built with
// installers. The child's only parent is this container.
func (b *BindingBuilder) FromSubContainerResolve(installers ...Installer) *BindingBuilder {
	if len(installers) == 0 {
		return b.fail("sub-container needs at least one installer", nil)
	}
	b.stmt.kind = kindSubContainer
	b.stmt.installers = append([]Installer(nil), installers...)
	return b
}

// FromNewComponentOn asks the container's HostObjectFactory to create the concrete
// type (the contract, or the type given to To) attached to host.
func (b *BindingBuilder) FromNewComponentOn(host interface{}) *BindingBuilder {
	if host == nil {
		return b.fail("host cannot be nil", nil)
	}
	if b.stmt.kind != kindType {
		b.stmt.concrete = b.stmt.key.Type
	}
	b.stmt.kind = kindHost
	b.stmt.host = host
	return b
}

// WithArguments supplies extra constructor or member arguments, consumed by type.
func (b *BindingBuilder) WithArguments(args ...interface{}) *BindingBuilder {
	b.stmt.args = append(b.stmt.args, args...)
	return b
}

// WithConcreteID tags constructed objects with id, visible to conditions of their dependencies.
func (b *BindingBuilder) WithConcreteID(id string) *BindingBuilder {
	b.stmt.concreteID = id
	return b
}

// AsSingle caches the instance in the container that owns the binding. Bindings
// of several contracts to the same concrete type share the instance.
func (b *BindingBuilder) AsSingle() *BindingBuilder {
	b.stmt.lifetime = LifetimeSingleton
	return b
}

// AsTransient constructs a new instance per request. This is the default.
func (b *BindingBuilder) AsTransient() *BindingBuilder {
	b.stmt.lifetime = LifetimeTransient
	return b
}

// AsScoped caches one instance per resolving container.
func (b *BindingBuilder) AsScoped() *BindingBuilder {
	b.stmt.lifetime = LifetimeScoped
	return b
}

// When restricts the binding to requests for which cond holds.
func (b *BindingBuilder) When(cond BindingCondition) *BindingBuilder {
	if cond == nil {
		return b.fail("condition cannot be nil", nil)
	}
	b.stmt.condition = cond
	return b
}

// WhenInjectedInto restricts the binding to dependencies of the given concrete types.
func (b *BindingBuilder) WhenInjectedInto(targets ...interface{}) *BindingBuilder {
	types, ok := b.targetTypes(targets)
	if !ok {
		return b
	}
	return b.When(func(ctx *InjectContext) bool {
		return containsType(types, ctx.ObjectType())
	})
}

// WhenNotInjectedInto excludes dependencies of the given concrete types.
func (b *BindingBuilder) WhenNotInjectedInto(targets ...interface{}) *BindingBuilder {
	types, ok := b.targetTypes(targets)
	if !ok {
		return b
	}
	return b.When(func(ctx *InjectContext) bool {
		return !containsType(types, ctx.ObjectType())
	})
}

func (b *BindingBuilder) targetTypes(targets []interface{}) ([]reflect.Type, bool) {
	if len(targets) == 0 {
		b.fail("at least one target type is required", nil)
		return nil, false
	}
	types := make([]reflect.Type, 0, len(targets))
	for _, target := range targets {
		t, err := concreteTypeOf(target)
		if err != nil {
			b.fail("invalid target type", err)
			return nil, false
		}
		types = append(types, t)
	}
	return types, true
}

func containsType(types []reflect.Type, t reflect.Type) bool {
	if t == nil {
		return false
	}
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// NonLazy makes the binding a dependency root, resolved by ResolveDependencyRoots.
func (b *BindingBuilder) NonLazy() *BindingBuilder {
	b.stmt.nonLazy = true
	return b
}

// finalizeBinding turns a statement into a registry entry.
func (c *Container) finalizeBinding(stmt *bindStatement) error {
	if stmt.err != nil {
		return stmt.err
	}

	provider, err := c.buildProvider(stmt)
	if err != nil {
		key := stmt.key
		return &RegistrationError{Key: &key, Reason: "cannot build provider", Cause: err}
	}

	if c.registry.Has(stmt.key) {
		c.logger.Debug("contract bound more than once", zap.Stringer("contract", stmt.key))
	}

	binding := &registry.Binding{
		Key:        stmt.key,
		Provider:   provider,
		Lifetime:   stmt.lifetime.String(),
		ConcreteID: stmt.concreteID,
		NonLazy:    stmt.nonLazy,
	}
	if stmt.condition != nil {
		binding.Condition = stmt.condition
	}

	if err := c.registry.Register(binding); err != nil {
		key := stmt.key
		return &RegistrationError{Key: &key, Reason: "cannot register binding", Cause: err}
	}
	return nil
}

func (c *Container) buildProvider(stmt *bindStatement) (Provider, error) {
	switch stmt.kind {
	case kindInstance:
		return &instanceProvider{owner: c, value: stmt.instance}, nil
	case kindInstances:
		return &listProvider{owner: c, values: stmt.instances}, nil
	case kindMethod:
		return c.withLifetime(stmt, &methodProvider{owner: c, typ: stmt.key.Type, fn: stmt.method}, func(owner *Container) Provider {
			return &methodProvider{owner: owner, typ: stmt.key.Type, fn: stmt.method}
		}), nil
	case kindSubContainer:
		return c.withLifetime(stmt, &subContainerProvider{owner: c, installers: stmt.installers}, func(owner *Container) Provider {
			return &subContainerProvider{owner: owner, installers: stmt.installers}
		}), nil
	case kindHost:
		return c.withLifetime(stmt, &hostProvider{owner: c, host: stmt.host, concrete: stmt.concrete}, func(owner *Container) Provider {
			return &hostProvider{owner: owner, host: stmt.host, concrete: stmt.concrete}
		}), nil
	}

	desc, origin, err := c.statementDescriptor(stmt)
	if err != nil {
		return nil, err
	}
	base := func(owner *Container) Provider {
		return &transientProvider{owner: owner, desc: desc, args: stmt.args, concreteID: stmt.concreteID}
	}

	switch stmt.lifetime {
	case LifetimeSingleton:
		return c.sharedSingleton(singletonKey{concrete: desc.Type, concreteID: stmt.concreteID}, origin, base(c))
	case LifetimeScoped:
		return &scopedProvider{typ: desc.Type, base: base}, nil
	default:
		return base(c), nil
	}
}

func (c *Container) withLifetime(stmt *bindStatement, inner Provider, base func(*Container) Provider) Provider {
	switch stmt.lifetime {
	case LifetimeSingleton:
		return &cachedProvider{owner: c, inner: inner}
	case LifetimeScoped:
		return &scopedProvider{typ: inner.ConcreteType(), base: base}
	default:
		return inner
	}
}

// statementDescriptor returns the construction shape of a type or constructor
// binding, plus a string identifying how it is constructed.
func (c *Container) statementDescriptor(stmt *bindStatement) (*TypeDescriptor, string, error) {
	origin := fmt.Sprintf("type %v", stmt.concrete)

	var desc *TypeDescriptor
	if stmt.kind == kindConstructor {
		desc = &TypeDescriptor{
			Type:      stmt.ctor.Type,
			Params:    stmt.ctor.Params,
			Members:   c.descriptors.members(stmt.ctor.Type),
			Construct: stmt.ctor.Construct,
		}
		origin = stmt.ctorOrigin
	} else {
		if stmt.concrete == nil {
			return nil, "", fmt.Errorf("no concrete type")
		}
		var err error
		if desc, err = c.descriptors.describe(stmt.concrete); err != nil {
			return nil, "", err
		}
	}

	if len(stmt.args) > 0 {
		origin += fmt.Sprintf(" with %d arguments %v", len(stmt.args), stmt.args)
	}
	return desc, origin, nil
}

type singletonKey struct {
	concrete   reflect.Type
	concreteID string
}

type singletonEntry struct {
	origin   string
	provider *cachedProvider
}

// sharedSingleton returns the cached provider of a concrete type, so that several
// contracts bound AsSingle to it share one instance.
func (c *Container) sharedSingleton(key singletonKey, origin string, inner Provider) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.singletons[key]; ok {
		if entry.origin != origin {
			return nil, fmt.Errorf("singleton %v is already bound with %s, cannot rebind it with %s",
				key.concrete, entry.origin, origin)
		}
		return entry.provider, nil
	}

	provider := &cachedProvider{owner: c, inner: inner}
	c.singletons[key] = &singletonEntry{origin: origin, provider: provider}
	return provider, nil
}
