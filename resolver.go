package nasc

import (
	"fmt"
	"reflect"
	"time"

	"github.com/toutaio/toutago-nasc-container/metrics"
	"github.com/toutaio/toutago-nasc-container/registry"
)

// ContractKey identifies what is being requested: a contract type plus an optional ID.
type ContractKey = registry.Key

// KeyOf returns the contract key of T with the given ID.
func KeyOf[T any](id string) ContractKey {
	return ContractKey{Type: typeFor[T](), ID: id}
}

func typeFor[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// contractType converts a contract token to its type. Tokens are either a
// reflect.Type or a typed pointer such as (*Logger)(nil), which stands for Logger.
func contractType(token interface{}) (reflect.Type, error) {
	switch t := token.(type) {
	case nil:
		return nil, fmt.Errorf("contract cannot be nil")
	case reflect.Type:
		return t, nil
	}

	t := reflect.TypeOf(token)
	if t.Kind() == reflect.Ptr {
		return t.Elem(), nil
	}
	return t, nil
}

// concreteTypeOf converts a concrete token to its type: a reflect.Type, or a value
// whose dynamic type is the concrete type, e.g. &ConsoleLogger{}.
func concreteTypeOf(token interface{}) (reflect.Type, error) {
	switch t := token.(type) {
	case nil:
		return nil, fmt.Errorf("concrete type cannot be nil")
	case reflect.Type:
		return t, nil
	}
	return reflect.TypeOf(token), nil
}

// ResolveOptions configures a single resolution request.
type ResolveOptions struct {
	ID             string
	Optional       bool
	Unique         bool
	Required       bool
	Source         Source
	Context        *InjectContext
	Requester      reflect.Type
	Args           []interface{}
	ArgTypes       []reflect.Type
	RequireAllArgs bool
	Descriptor     *TypeDescriptor
	ConcreteID     string
}

// ResolveOption configures a resolution request.
type ResolveOption func(*ResolveOptions)

func buildResolveOptions(opts []ResolveOption) *ResolveOptions {
	options := &ResolveOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

// WithID requests the binding registered under id.
func WithID(id string) ResolveOption {
	return func(o *ResolveOptions) { o.ID = id }
}

// Optional makes a missing binding resolve to nil instead of an error.
func Optional() ResolveOption {
	return func(o *ResolveOptions) { o.Optional = true }
}

// Unique makes several matching providers an AmbiguousBindingError.
func Unique() ResolveOption {
	return func(o *ResolveOptions) { o.Unique = true }
}

// Required makes ResolveAll fail when nothing matches.
func Required() ResolveOption {
	return func(o *ResolveOptions) { o.Required = true }
}

// FromSource restricts which containers of the hierarchy are consulted.
func FromSource(source Source) ResolveOption {
	return func(o *ResolveOptions) { o.Source = source }
}

// InContext resolves as a dependency of the frame ctx. Method providers use it
// to keep the object graph and cycle detection intact.
func InContext(ctx *InjectContext) ResolveOption {
	return func(o *ResolveOptions) { o.Context = ctx }
}

// ForRequester resolves as if the object of type requester asked. It drives
// WhenInjectedInto conditions for top level requests.
func ForRequester(requester interface{}) ResolveOption {
	return func(o *ResolveOptions) {
		if t, err := concreteTypeOf(requester); err == nil {
			o.Requester = t
		}
	}
}

// WithArgs supplies extra arguments. Each is consumed by the first parameter or
// member whose type it is assignable to, ahead of the container.
func WithArgs(args ...interface{}) ResolveOption {
	return func(o *ResolveOptions) { o.Args = append(o.Args, args...) }
}

// WithArgTypes declares extra argument types for validation, where no values exist.
func WithArgTypes(types ...reflect.Type) ResolveOption {
	return func(o *ResolveOptions) { o.ArgTypes = append(o.ArgTypes, types...) }
}

// RequireAllArgs makes unused extra arguments an error.
func RequireAllArgs() ResolveOption {
	return func(o *ResolveOptions) { o.RequireAllArgs = true }
}

// WithDescriptor uses desc instead of the container's descriptor provider.
func WithDescriptor(desc *TypeDescriptor) ResolveOption {
	return func(o *ResolveOptions) { o.Descriptor = desc }
}

// WithConcreteID tags the constructed object with an identifier visible to conditions.
func WithConcreteID(id string) ResolveOption {
	return func(o *ResolveOptions) { o.ConcreteID = id }
}

// providerMatch is a provider found for a request, with the container that owns it.
type providerMatch struct {
	binding   *registry.Binding
	provider  Provider
	container *Container
}

func (m providerMatch) describe() string {
	if t := m.provider.ConcreteType(); t != nil {
		return fmt.Sprintf("%v#%d", t, m.binding.Seq)
	}
	return fmt.Sprintf("%T#%d", m.provider, m.binding.Seq)
}

// Resolve returns one instance of contract.
//
// Example:
//
//	logger, err := container.Resolve((*Logger)(nil))
//	fileLogger, err := container.Resolve((*Logger)(nil), nasc.WithID("file"))
func (c *Container) Resolve(contract interface{}, opts ...ResolveOption) (interface{}, error) {
	t, err := contractType(contract)
	if err != nil {
		return nil, err
	}
	instance, _, err := c.resolveType(t, buildResolveOptions(opts))
	return instance, err
}

// TryResolve resolves contract, reporting a missing binding as found == false
// instead of an error. Errors raised deeper in the graph are still returned.
func (c *Container) TryResolve(contract interface{}, opts ...ResolveOption) (interface{}, bool, error) {
	t, err := contractType(contract)
	if err != nil {
		return nil, false, err
	}
	options := buildResolveOptions(opts)
	options.Optional = true
	return c.resolveType(t, options)
}

func (c *Container) resolveType(t reflect.Type, options *ResolveOptions) (interface{}, bool, error) {
	if err := c.checkResolvable(); err != nil {
		return nil, false, err
	}

	ctx := newRootContext(c, ContractKey{Type: t, ID: options.ID}, options)
	if c.validating {
		return nil, false, c.finishValidation(c.validateContext(ctx, options.Unique))
	}

	start := time.Now()
	defer func() { c.metrics.ObserveDuration(time.Since(start)) }()

	return c.resolve(ctx, options.Unique)
}

// ResolveAll returns every instance bound to contract, local bindings first and
// then each parent in declaration order. An empty result is not an error unless
// Required is given.
func (c *Container) ResolveAll(contract interface{}, opts ...ResolveOption) ([]interface{}, error) {
	t, err := contractType(contract)
	if err != nil {
		return nil, err
	}
	if err := c.checkResolvable(); err != nil {
		return nil, err
	}

	options := buildResolveOptions(opts)
	ctx := newRootContext(c, ContractKey{Type: t, ID: options.ID}, options)
	if c.validating {
		return nil, c.finishValidation(c.validateAllContext(ctx, options.Required))
	}
	return c.resolveAll(ctx, options.Required)
}

// ResolveTypeAll returns the concrete types of every provider bound to contract,
// without constructing anything. Providers whose type is only known after
// construction are skipped.
func (c *Container) ResolveTypeAll(contract interface{}, opts ...ResolveOption) ([]reflect.Type, error) {
	t, err := contractType(contract)
	if err != nil {
		return nil, err
	}
	if err := c.checkResolvable(); err != nil {
		return nil, err
	}

	options := buildResolveOptions(opts)
	ctx := newRootContext(c, ContractKey{Type: t, ID: options.ID}, options)

	var types []reflect.Type
	for _, m := range c.lookup(ctx, true) {
		if ct := m.provider.ConcreteType(); ct != nil {
			types = append(types, ct)
		}
	}
	return types, nil
}

// HasBinding reports whether a request for contract would find a provider.
func (c *Container) HasBinding(contract interface{}, opts ...ResolveOption) bool {
	t, err := contractType(contract)
	if err != nil {
		return false
	}
	options := buildResolveOptions(opts)
	ctx := newRootContext(c, ContractKey{Type: t, ID: options.ID}, options)
	return len(c.lookup(ctx, false)) > 0
}

// Instantiate constructs a new instance of concrete, which need not be bound,
// resolving its constructor parameters and members from the container.
//
// Example:
//
//	handler, err := container.Instantiate(&Handler{}, nasc.WithArgs(request))
func (c *Container) Instantiate(concrete interface{}, opts ...ResolveOption) (interface{}, error) {
	t, err := concreteTypeOf(concrete)
	if err != nil {
		return nil, err
	}
	if err := c.checkResolvable(); err != nil {
		return nil, err
	}

	options := buildResolveOptions(opts)
	desc := options.Descriptor
	if desc == nil {
		if desc, err = c.descriptors.describe(t); err != nil {
			return nil, &ResolutionError{Key: ContractKey{Type: t}, Concrete: t, Cause: err}
		}
	}

	ctx := newRootContext(c, ContractKey{Type: t}, options)
	if c.validating {
		return nil, c.finishValidation(c.validateInstantiate(ctx, desc, newArgList(options.Args, options.ArgTypes), options.ConcreteID))
	}
	return c.instantiate(ctx, desc, newArgList(options.Args, nil), options.RequireAllArgs || c.requireAllArgs, options.ConcreteID)
}

// Resolve returns one instance of T.
//
// Example:
//
//	logger, err := nasc.Resolve[Logger](container)
func Resolve[T any](c *Container, opts ...ResolveOption) (T, error) {
	var zero T
	instance, _, err := c.resolveType(typeFor[T](), buildResolveOptions(opts))
	if err != nil || instance == nil {
		return zero, err
	}
	return castTo[T](instance)
}

// TryResolve returns one instance of T, or found == false when nothing is bound.
func TryResolve[T any](c *Container, opts ...ResolveOption) (T, bool, error) {
	var zero T
	options := buildResolveOptions(opts)
	options.Optional = true

	instance, found, err := c.resolveType(typeFor[T](), options)
	if err != nil || !found || instance == nil {
		return zero, found, err
	}
	v, err := castTo[T](instance)
	return v, err == nil, err
}

// ResolveAll returns every instance of T.
func ResolveAll[T any](c *Container, opts ...ResolveOption) ([]T, error) {
	instances, err := c.ResolveAll(typeFor[T](), opts...)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(instances))
	for _, instance := range instances {
		v, err := castTo[T](instance)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](c *Container, opts ...ResolveOption) T {
	v, err := Resolve[T](c, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %v: %v", typeFor[T](), err))
	}
	return v
}

func castTo[T any](instance interface{}) (T, error) {
	v, ok := instance.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("resolved %T is not a %v", instance, typeFor[T]())
	}
	return v, nil
}

// lookup finds the providers for ctx according to its source.
// Single resolution stops at the first container with a match; with all set,
// matches of every consulted container are concatenated.
func (c *Container) lookup(ctx *InjectContext, all bool) []providerMatch {
	visited := map[*Container]bool{}

	switch ctx.source {
	case SourceLocal:
		return c.localMatches(ctx)
	case SourceParent:
		return c.parentMatches(all, visited, func(p *Container) []providerMatch {
			return p.localMatches(ctx)
		})
	case SourceAncestors:
		return c.parentMatches(all, visited, func(p *Container) []providerMatch {
			return p.hierarchyMatches(ctx, all, visited)
		})
	default:
		return c.hierarchyMatches(ctx, all, visited)
	}
}

func (c *Container) hierarchyMatches(ctx *InjectContext, all bool, visited map[*Container]bool) []providerMatch {
	local := c.localMatches(ctx)
	if len(local) > 0 && !all {
		return local
	}
	inherited := c.parentMatches(all, visited, func(p *Container) []providerMatch {
		return p.hierarchyMatches(ctx, all, visited)
	})
	return append(local, inherited...)
}

func (c *Container) parentMatches(all bool, visited map[*Container]bool, find func(*Container) []providerMatch) []providerMatch {
	var result []providerMatch
	for _, p := range c.parents {
		// a shared ancestor contributes once
		if visited[p] {
			continue
		}
		visited[p] = true

		matches := find(p)
		if len(matches) == 0 {
			continue
		}
		if !all {
			return matches
		}
		result = append(result, matches...)
	}
	return result
}

// localMatches returns the local providers for ctx whose condition holds, in registration order.
func (c *Container) localMatches(ctx *InjectContext) []providerMatch {
	var matches []providerMatch
	for _, b := range c.registry.Get(ctx.key) {
		if cond, ok := b.Condition.(BindingCondition); ok && cond != nil && !cond(ctx) {
			continue
		}
		provider, ok := b.Provider.(Provider)
		if !ok {
			continue
		}
		matches = append(matches, providerMatch{binding: b, provider: provider, container: c})
	}
	return matches
}

// selectMatch picks the provider of a single resolution.
func (c *Container) selectMatch(ctx *InjectContext, matches []providerMatch, unique bool) (providerMatch, error) {
	if unique && len(matches) > 1 {
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.describe()
		}
		c.metrics.ObserveResolution(metrics.OutcomeAmbiguous)
		return providerMatch{}, &AmbiguousBindingError{Key: ctx.key, Candidates: candidates, Chain: ctx.ChainString()}
	}

	if c.policy == SelectPreferConditional {
		for i := len(matches) - 1; i >= 0; i-- {
			if matches[i].binding.Condition != nil {
				return matches[i], nil
			}
		}
	}
	return matches[len(matches)-1], nil
}

// resolve produces the instance for ctx. found is false only when nothing matched
// and the request was optional.
func (c *Container) resolve(ctx *InjectContext, unique bool) (interface{}, bool, error) {
	matches := c.lookup(ctx, false)
	if len(matches) == 0 {
		if ctx.key.Type == containerType && ctx.key.ID == "" {
			return ctx.container, true, nil
		}
		if ctx.optional {
			c.metrics.ObserveResolution(metrics.OutcomeAbsent)
			return nil, false, nil
		}
		c.metrics.ObserveResolution(metrics.OutcomeNotFound)
		return nil, false, &BindingNotFoundError{Key: ctx.key, Chain: ctx.ChainString()}
	}

	match, err := c.selectMatch(ctx, matches, unique)
	if err != nil {
		return nil, false, err
	}

	instances, err := match.provider.Provide(ctx)
	if err != nil {
		c.metrics.ObserveResolution(metrics.OutcomeFailed)
		return nil, false, err
	}
	if len(instances) == 0 {
		if ctx.optional {
			c.metrics.ObserveResolution(metrics.OutcomeAbsent)
			return nil, false, nil
		}
		c.metrics.ObserveResolution(metrics.OutcomeFailed)
		return nil, false, &ResolutionError{
			Key:      ctx.key,
			Concrete: match.provider.ConcreteType(),
			Chain:    ctx.ChainString(),
			Cause:    fmt.Errorf("provider returned no instances"),
		}
	}
	if unique && len(instances) > 1 {
		c.metrics.ObserveResolution(metrics.OutcomeAmbiguous)
		return nil, false, &AmbiguousBindingError{
			Key:        ctx.key,
			Candidates: []string{fmt.Sprintf("%s (%d instances)", match.describe(), len(instances))},
			Chain:      ctx.ChainString(),
		}
	}

	instance := instances[len(instances)-1]
	if err := checkAssignable(ctx, instance); err != nil {
		c.metrics.ObserveResolution(metrics.OutcomeFailed)
		return nil, false, err
	}

	c.metrics.ObserveResolution(metrics.OutcomeResolved)
	return instance, true, nil
}

// resolveAll produces every instance for ctx.
func (c *Container) resolveAll(ctx *InjectContext, required bool) ([]interface{}, error) {
	matches := c.lookup(ctx, true)
	if len(matches) == 0 {
		if ctx.key.Type == containerType && ctx.key.ID == "" {
			return []interface{}{ctx.container}, nil
		}
		if required {
			c.metrics.ObserveResolution(metrics.OutcomeNotFound)
			return nil, &BindingNotFoundError{Key: ctx.key, Chain: ctx.ChainString()}
		}
		return []interface{}{}, nil
	}

	result := make([]interface{}, 0, len(matches))
	for _, m := range matches {
		instances, err := m.provider.Provide(ctx)
		if err != nil {
			c.metrics.ObserveResolution(metrics.OutcomeFailed)
			return nil, err
		}
		for _, instance := range instances {
			if err := checkAssignable(ctx, instance); err != nil {
				return nil, err
			}
			result = append(result, instance)
		}
	}

	c.metrics.ObserveResolution(metrics.OutcomeResolved)
	return result, nil
}

func checkAssignable(ctx *InjectContext, instance interface{}) error {
	if instance == nil {
		return nil
	}
	if t := reflect.TypeOf(instance); !t.AssignableTo(ctx.key.Type) {
		return &ResolutionError{
			Key:      ctx.key,
			Concrete: t,
			Chain:    ctx.ChainString(),
			Cause:    fmt.Errorf("%v is not assignable to %v", t, ctx.key.Type),
		}
	}
	return nil
}
