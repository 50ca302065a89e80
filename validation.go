package nasc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var validatableType = reflect.TypeOf((*Validatable)(nil)).Elem()

// finishValidation turns combined validation errors into a ValidationError.
func (c *Container) finishValidation(err error) error {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	c.metrics.ObserveValidationErrors(len(errs))
	c.logger.Debug("validation failed", zap.Int("errors", len(errs)))
	return &ValidationError{Errors: errs}
}

// validateContext is the dry-run counterpart of resolve.
func (c *Container) validateContext(ctx *InjectContext, unique bool) error {
	matches := c.lookup(ctx, false)
	if len(matches) == 0 {
		if ctx.optional || (ctx.key.Type == containerType && ctx.key.ID == "") {
			return nil
		}
		return &BindingNotFoundError{Key: ctx.key, Chain: ctx.ChainString()}
	}

	match, err := c.selectMatch(ctx, matches, unique)
	if err != nil {
		return err
	}
	return match.provider.Validate(ctx)
}

// validateAllContext is the dry-run counterpart of resolveAll.
func (c *Container) validateAllContext(ctx *InjectContext, required bool) error {
	matches := c.lookup(ctx, true)
	if len(matches) == 0 {
		if required && !(ctx.key.Type == containerType && ctx.key.ID == "") {
			return &BindingNotFoundError{Key: ctx.key, Chain: ctx.ChainString()}
		}
		return nil
	}

	var errs error
	for _, m := range matches {
		errs = multierr.Append(errs, m.provider.Validate(ctx))
	}
	return errs
}

// validateInstantiate is the dry-run counterpart of instantiate.
func (c *Container) validateInstantiate(ctx *InjectContext, desc *TypeDescriptor, args *argList, concreteID string) error {
	if desc == nil || desc.Type == nil {
		return &ResolutionError{Key: ctx.key, Chain: ctx.ChainString(), Cause: fmt.Errorf("no type descriptor")}
	}

	frame, err := c.enterConstruction(ctx, desc.Type, concreteID)
	if err != nil {
		return err
	}

	var errs error
	for i, param := range desc.Params {
		if param.IsContainer {
			continue
		}
		if _, ok := args.take(param.Type); ok {
			continue
		}
		optional := param.Optional || param.Default.IsValid()
		child := frame.child(c, ContractKey{Type: param.Type, ID: param.ID}, fmt.Sprintf("param[%d]", i), optional, param.Source)
		errs = multierr.Append(errs, c.validateContext(child, false))
	}
	return multierr.Append(errs, c.validateMembers(frame, desc, args))
}

// validateMembers is the dry-run counterpart of injectMembers.
func (c *Container) validateMembers(frame *InjectContext, desc *TypeDescriptor, args *argList) error {
	var errs error
	for _, m := range desc.Members {
		if _, ok := args.take(m.Type); ok {
			continue
		}

		key := ContractKey{Type: m.Type, ID: m.ID}
		child := frame.child(c, key, m.Name, m.Optional, m.Source)
		memberErr := c.validateContext(child, false)
		if memberErr == nil {
			continue
		}
		for _, err := range multierr.Errors(memberErr) {
			errs = multierr.Append(errs, &MemberInjectionError{Owner: desc.Type, Member: m.Name, Key: key, Cause: err})
		}
	}
	return errs
}

// ValidateResolve checks, without constructing anything, that contract could be
// resolved. Every problem found is returned.
func (c *Container) ValidateResolve(contract interface{}, opts ...ResolveOption) []error {
	t, err := contractType(contract)
	if err != nil {
		return []error{err}
	}
	if err := c.checkResolvable(); err != nil {
		return []error{err}
	}

	options := buildResolveOptions(opts)
	ctx := newRootContext(c, ContractKey{Type: t, ID: options.ID}, options)
	return c.collect(c.validateContext(ctx, options.Unique))
}

// ValidateObjectGraph checks that concrete could be instantiated.
// WithArgTypes declares the extra arguments that would be supplied.
func (c *Container) ValidateObjectGraph(concrete interface{}, opts ...ResolveOption) []error {
	t, err := concreteTypeOf(concrete)
	if err != nil {
		return []error{err}
	}
	if err := c.checkResolvable(); err != nil {
		return []error{err}
	}

	options := buildResolveOptions(opts)
	desc := options.Descriptor
	if desc == nil {
		if desc, err = c.descriptors.describe(t); err != nil {
			return []error{&ResolutionError{Key: ContractKey{Type: t}, Concrete: t, Cause: err}}
		}
	}

	ctx := newRootContext(c, ContractKey{Type: t}, options)
	args := newArgList(options.Args, options.ArgTypes)
	errs := c.validateInstantiate(ctx, desc, args, options.ConcreteID)
	if options.RequireAllArgs || c.requireAllArgs {
		errs = multierr.Append(errs, args.checkAllUsed(true))
	}
	return c.collect(errs)
}

// ValidateValidatables dry-runs the graph of every local binding whose concrete
// type implements Validatable, then calls Validate on the bound instances and on
// the objects queued for injection. Types in ignore are skipped.
func (c *Container) ValidateValidatables(ignore ...reflect.Type) []error {
	if err := c.checkResolvable(); err != nil {
		return []error{err}
	}
	return c.collect(c.validateValidatables(ignore, true))
}

func (c *Container) validateValidatables(ignore []reflect.Type, dryRun bool) error {
	skip := func(t reflect.Type) bool {
		for _, ignored := range ignore {
			if t == ignored {
				return true
			}
		}
		return false
	}

	var errs error
	seen := map[interface{}]bool{}
	for _, b := range c.registry.All() {
		provider := b.Provider.(Provider)
		concrete := provider.ConcreteType()
		if concrete == nil || !concrete.Implements(validatableType) || skip(concrete) || skip(b.Key.Type) || seen[provider] {
			continue
		}
		seen[provider] = true

		ctx := c.bindingContext(b.Key)
		if dryRun {
			errs = multierr.Append(errs, provider.Validate(ctx))
		}

		var instances []interface{}
		switch p := provider.(type) {
		case *instanceProvider:
			instances = []interface{}{p.value}
		case *listProvider:
			instances = p.values
		}
		for _, instance := range instances {
			if isHashable(instance) {
				seen[instance] = true
			}
			errs = multierr.Append(errs, callValidate(ctx, instance))
		}
	}

	c.mu.RLock()
	queued := append([]interface{}(nil), c.queued...)
	c.mu.RUnlock()

	for _, instance := range queued {
		t := reflect.TypeOf(instance)
		if skip(t) || seen[instance] {
			continue
		}
		errs = multierr.Append(errs, callValidate(c.bindingContext(ContractKey{Type: t}), instance))
	}
	return errs
}

// ValidateAll dry-runs every local binding and then runs ValidateValidatables.
func (c *Container) ValidateAll(ignore ...reflect.Type) []error {
	if err := c.checkResolvable(); err != nil {
		return []error{err}
	}

	var errs error
	for _, b := range c.registry.All() {
		errs = multierr.Append(errs, b.Provider.(Provider).Validate(c.bindingContext(b.Key)))
	}

	return c.collect(multierr.Append(errs, c.validateValidatables(ignore, false)))
}

func (c *Container) collect(err error) []error {
	errs := multierr.Errors(err)
	if len(errs) > 0 {
		c.metrics.ObserveValidationErrors(len(errs))
	}
	return errs
}

func callValidate(ctx *InjectContext, instance interface{}) error {
	v, ok := instance.(Validatable)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return &ResolutionError{Key: ctx.key, Concrete: reflect.TypeOf(instance), Chain: ctx.ChainString(), Cause: err}
	}
	return nil
}
