package nasc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Provider produces the instances of one binding.
type Provider interface {
	// ConcreteType is the type of the produced instances, or nil when it is only
	// known after construction.
	ConcreteType() reflect.Type
	// Provide produces the instances for the request ctx.
	Provide(ctx *InjectContext) ([]interface{}, error)
	// Validate checks, without constructing anything, that Provide could succeed.
	Validate(ctx *InjectContext) error
}

// MethodFunc builds an instance for a request. Nested resolutions should pass
// nasc.InContext(ctx) so the object graph stays intact.
type MethodFunc func(ctx *InjectContext) (interface{}, error)

// instanceProvider returns a pre-existing instance.
type instanceProvider struct {
	owner *Container
	value interface{}
}

func (p *instanceProvider) ConcreteType() reflect.Type { return reflect.TypeOf(p.value) }

func (p *instanceProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	if err := p.owner.lazyInject(p.value); err != nil {
		return nil, err
	}
	return []interface{}{p.value}, nil
}

func (p *instanceProvider) Validate(ctx *InjectContext) error { return nil }

// listProvider returns several pre-existing instances.
type listProvider struct {
	owner  *Container
	values []interface{}
}

func (p *listProvider) ConcreteType() reflect.Type {
	if len(p.values) == 0 {
		return nil
	}
	return reflect.TypeOf(p.values[0])
}

func (p *listProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	for _, v := range p.values {
		if err := p.owner.lazyInject(v); err != nil {
			return nil, err
		}
	}
	return append([]interface{}(nil), p.values...), nil
}

func (p *listProvider) Validate(ctx *InjectContext) error { return nil }

// transientProvider constructs a new instance on every request.
type transientProvider struct {
	owner      *Container
	desc       *TypeDescriptor
	args       []interface{}
	concreteID string
}

func (p *transientProvider) ConcreteType() reflect.Type { return p.desc.Type }

func (p *transientProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	instance, err := p.owner.instantiate(ctx, p.desc, newArgList(p.args, nil), false, p.concreteID)
	if err != nil {
		return nil, err
	}
	return []interface{}{instance}, nil
}

func (p *transientProvider) Validate(ctx *InjectContext) error {
	return p.owner.validateInstantiate(ctx, p.desc, newArgList(p.args, nil), p.concreteID)
}

type cacheState int

const (
	cacheEmpty cacheState = iota
	cacheInProgress
	cacheDone
)

// cachedProvider produces its instances once and returns them on every later request.
// A request arriving while the first one is still producing is a cycle. Resolution
// of a hierarchy runs on one goroutine, so the state is not locked.
type cachedProvider struct {
	owner     *Container
	inner     Provider
	state     cacheState
	instances []interface{}
}

func (p *cachedProvider) ConcreteType() reflect.Type { return p.inner.ConcreteType() }

func (p *cachedProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	switch p.state {
	case cacheDone:
		return p.instances, nil
	case cacheInProgress:
		return nil, p.cycle(ctx)
	}

	p.state = cacheInProgress
	instances, err := p.inner.Provide(ctx)
	if err != nil {
		p.state = cacheEmpty
		return nil, err
	}

	p.instances = instances
	p.state = cacheDone
	p.owner.trackDisposables(instances)
	return instances, nil
}

func (p *cachedProvider) Validate(ctx *InjectContext) error {
	switch p.state {
	case cacheDone:
		return nil
	case cacheInProgress:
		return p.cycle(ctx)
	}

	p.state = cacheInProgress
	defer func() { p.state = cacheEmpty }()
	return p.inner.Validate(ctx)
}

func (p *cachedProvider) cycle(ctx *InjectContext) error {
	frame := ctx.constructing(p.ConcreteType(), "")
	p.owner.metrics.ObserveCycle()
	return &CyclicDependencyError{Path: frame.path()}
}

// scopedProvider caches one instance per resolving container. The instance is
// constructed in the container the request was made in.
type scopedProvider struct {
	typ  reflect.Type
	base func(owner *Container) Provider
}

func (p *scopedProvider) ConcreteType() reflect.Type { return p.typ }

func (p *scopedProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	return ctx.container.scopedFor(p).Provide(ctx)
}

func (p *scopedProvider) Validate(ctx *InjectContext) error {
	return ctx.container.scopedFor(p).Validate(ctx)
}

// methodProvider calls a user function.
type methodProvider struct {
	owner *Container
	typ   reflect.Type
	fn    MethodFunc
}

func (p *methodProvider) ConcreteType() reflect.Type {
	if p.typ.Kind() == reflect.Interface {
		return nil
	}
	return p.typ
}

func (p *methodProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	frame, err := p.owner.enterMethod(ctx, p.typ)
	if err != nil {
		return nil, err
	}
	instance, err := p.fn(frame)
	if err != nil {
		return nil, &ResolutionError{Key: ctx.key, Concrete: p.ConcreteType(), Chain: ctx.ChainString(), Cause: err}
	}
	return []interface{}{instance}, nil
}

// Validate cannot look inside the function, only at the frames above it.
func (p *methodProvider) Validate(ctx *InjectContext) error {
	_, err := p.owner.enterMethod(ctx, p.typ)
	return err
}

// subContainerProvider builds a child container from installers on each request
// and resolves the contract from its local bindings.
type subContainerProvider struct {
	owner      *Container
	installers []Installer
}

func (p *subContainerProvider) ConcreteType() reflect.Type { return nil }

func (p *subContainerProvider) build(validating bool) (*Container, error) {
	sub, err := CreateContainer([]*Container{p.owner}, validating)
	if err != nil {
		return nil, err
	}
	if err := sub.Install(p.installers...); err != nil {
		return nil, err
	}
	if _, err := sub.ResolveDependencyRoots(); err != nil {
		return nil, err
	}
	if err := sub.FlushInjectQueue(); err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *subContainerProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	sub, err := p.build(false)
	if err != nil {
		return nil, &ResolutionError{Key: ctx.key, Chain: ctx.ChainString(), Cause: fmt.Errorf("sub-container: %w", err)}
	}
	p.owner.logger.Debug("built sub-container", zap.String("sub", sub.ID()), zap.Stringer("contract", ctx.key))

	local := ctx.child(sub, ctx.key, "", ctx.optional, SourceLocal)
	return sub.resolveAll(local, true)
}

func (p *subContainerProvider) Validate(ctx *InjectContext) error {
	sub, err := p.build(true)
	if err != nil {
		return err
	}
	local := ctx.child(sub, ctx.key, "", ctx.optional, SourceLocal)
	return sub.validateAllContext(local, true)
}

// hostProvider asks the host collaborator for a component and injects its members.
type hostProvider struct {
	owner    *Container
	host     interface{}
	concrete reflect.Type
}

func (p *hostProvider) ConcreteType() reflect.Type { return p.concrete }

func (p *hostProvider) Provide(ctx *InjectContext) ([]interface{}, error) {
	factory := p.owner.host
	if factory == nil {
		return nil, &ResolutionError{Key: ctx.key, Concrete: p.concrete, Chain: ctx.ChainString(),
			Cause: fmt.Errorf("no host object factory configured")}
	}

	frame, err := p.owner.enterConstruction(ctx, p.concrete, ctx.concreteID)
	if err != nil {
		return nil, err
	}

	instance, err := factory.NewComponent(p.host, p.concrete)
	if err != nil {
		return nil, &ResolutionError{Key: ctx.key, Concrete: p.concrete, Chain: frame.ChainString(), Cause: err}
	}

	desc := &TypeDescriptor{Type: p.concrete, Members: p.owner.descriptors.members(p.concrete)}
	if err := p.owner.injectMembers(frame, reflect.ValueOf(instance), desc, nil); err != nil {
		return nil, err
	}
	if err := initialize(frame, instance); err != nil {
		return nil, err
	}
	return []interface{}{instance}, nil
}

func (p *hostProvider) Validate(ctx *InjectContext) error {
	frame, err := p.owner.enterConstruction(ctx, p.concrete, ctx.concreteID)
	if err != nil {
		return err
	}

	var errs error
	if p.owner.host == nil {
		errs = multierr.Append(errs, &ResolutionError{Key: ctx.key, Concrete: p.concrete, Chain: ctx.ChainString(),
			Cause: fmt.Errorf("no host object factory configured")})
	}
	desc := &TypeDescriptor{Type: p.concrete, Members: p.owner.descriptors.members(p.concrete)}
	return multierr.Append(errs, p.owner.validateMembers(frame, desc, nil))
}
