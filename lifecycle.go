package nasc

import (
	"fmt"
	"reflect"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Install runs installers against the container. The first call moves the
// container into the installing phase; Install may be called several times
// until ResolveDependencyRoots. Errors from every installer are combined.
//
// Example:
//
//	err := container.Install(&LoggingInstaller{}, &DatabaseInstaller{})
func (c *Container) Install(installers ...Installer) error {
	c.mu.Lock()
	switch c.state {
	case StateCreated:
		c.state = StateInstalling
	case StateInstalling:
	default:
		state := c.state
		c.mu.Unlock()
		return &RegistrationError{Reason: fmt.Sprintf("cannot install into a container that is %v", state)}
	}
	c.mu.Unlock()

	c.logger.Debug("running installers", zap.Int("count", len(installers)))

	errs := c.takeRejected()
	for _, installer := range installers {
		if installer == nil {
			errs = multierr.Append(errs, &RegistrationError{Reason: "installer cannot be nil"})
			continue
		}
		if conditional, ok := installer.(ConditionalInstaller); ok && !conditional.ShouldInstall(c) {
			c.logger.Debug("installer skipped", zap.String("installer", fmt.Sprintf("%T", installer)))
			continue
		}
		if c.alreadyInstalled(installer) {
			continue
		}
		if err := installer.InstallBindings(c); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("installer %T failed: %w", installer, err))
		}
	}

	errs = multierr.Append(errs, c.finalizePending())
	if errs != nil {
		c.logger.Error("install failed", zap.Error(errs))
	}
	return errs
}

// takeRejected returns and clears the errors of bindings rejected outside installing.
func (c *Container) takeRejected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.rejected
	c.rejected = nil
	return err
}

// finalizePending registers every statement bound since the last call.
func (c *Container) finalizePending() error {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	var errs error
	for _, stmt := range pending {
		errs = multierr.Append(errs, c.finalizeBinding(stmt))
	}
	return errs
}

// ResolveDependencyRoots ends the install phase, freezes the bindings and resolves
// every NonLazy binding in registration order. A validating container validates
// the roots instead and returns a ValidationError describing every problem.
func (c *Container) ResolveDependencyRoots() ([]interface{}, error) {
	c.mu.Lock()
	if c.state == StateCreated {
		c.state = StateInstalling
	}
	if c.state != StateInstalling {
		state := c.state
		c.mu.Unlock()
		return nil, &RegistrationError{Reason: fmt.Sprintf("dependency roots are resolved once, at the end of installing; container is %v", state)}
	}
	c.mu.Unlock()

	if err := multierr.Append(c.takeRejected(), c.finalizePending()); err != nil {
		return nil, err
	}
	c.registry.Freeze()
	c.setState(StateResolving)

	roots := c.registry.NonLazy()
	c.logger.Debug("resolving dependency roots",
		zap.Int("roots", len(roots)),
		zap.Int("bindings", c.registry.Len()))

	if c.validating {
		var errs error
		for _, b := range roots {
			errs = multierr.Append(errs, b.Provider.(Provider).Validate(c.bindingContext(b.Key)))
		}
		return nil, c.finishValidation(errs)
	}

	var instances []interface{}
	for _, b := range roots {
		ctx := c.bindingContext(b.Key)
		provided, err := b.Provider.(Provider).Provide(ctx)
		if err != nil {
			c.logger.Error("failed to resolve dependency root", zap.Stringer("contract", b.Key), zap.Error(err))
			return nil, err
		}
		for _, instance := range provided {
			if err := checkAssignable(ctx, instance); err != nil {
				return nil, err
			}
		}
		instances = append(instances, provided...)
	}

	c.mu.Lock()
	c.roots = instances
	c.mu.Unlock()
	return instances, nil
}

// DependencyRoots returns the instances produced by ResolveDependencyRoots.
func (c *Container) DependencyRoots() []interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]interface{}(nil), c.roots...)
}

func (c *Container) bindingContext(key ContractKey) *InjectContext {
	return &InjectContext{container: c, key: key}
}

// QueueForInject schedules member injection of instance for FlushInjectQueue.
// If a binding provides the instance earlier, it is injected on first use.
func (c *Container) QueueForInject(instance interface{}) error {
	value := reflect.ValueOf(instance)
	if instance == nil || value.Kind() != reflect.Ptr || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("QueueForInject requires a non-nil pointer to struct, got %T", instance)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state >= StateReady {
		return &RegistrationError{Reason: fmt.Sprintf("cannot queue for injection once the container is %v", c.state)}
	}
	if _, ok := c.lazyPending[instance]; ok {
		return nil
	}
	c.injectQueue = append(c.injectQueue, instance)
	c.queued = append(c.queued, instance)
	c.lazyPending[instance] = struct{}{}
	return nil
}

// FlushInjectQueue injects every queued instance not injected yet, in queue order,
// and marks the container ready. A validating container validates them instead.
func (c *Container) FlushInjectQueue() error {
	c.mu.Lock()
	if c.state != StateResolving {
		state := c.state
		c.mu.Unlock()
		return &RegistrationError{Reason: fmt.Sprintf("inject queue is flushed once, after dependency roots; container is %v", state)}
	}
	if rejected := c.rejected; rejected != nil {
		c.rejected = nil
		c.mu.Unlock()
		return rejected
	}
	queue := c.injectQueue
	c.injectQueue = nil
	c.mu.Unlock()

	c.logger.Debug("flushing inject queue", zap.Int("queued", len(queue)))

	if c.validating {
		var errs error
		for _, instance := range queue {
			errs = multierr.Append(errs, c.validateQueued(instance))
		}
		if err := c.finishValidation(errs); err != nil {
			return err
		}
		c.setState(StateReady)
		return nil
	}

	for _, instance := range queue {
		if err := c.lazyInject(instance); err != nil {
			return err
		}
	}

	c.setState(StateReady)
	return nil
}

// lazyInject injects a queued instance the first time it is needed.
// Instances that were not queued, or were injected already, are left alone.
func (c *Container) lazyInject(instance interface{}) error {
	if c.validating || !isHashable(instance) {
		return nil
	}

	c.mu.Lock()
	_, pending := c.lazyPending[instance]
	delete(c.lazyPending, instance)
	c.mu.Unlock()

	if !pending {
		return nil
	}

	value := reflect.ValueOf(instance)
	desc, err := c.descriptors.describe(value.Type())
	if err != nil {
		return &ResolutionError{Key: ContractKey{Type: value.Type()}, Concrete: value.Type(), Cause: err}
	}

	ctx := c.bindingContext(ContractKey{Type: value.Type()}).constructing(value.Type(), "")
	if err := c.injectMembers(ctx, value, desc, nil); err != nil {
		return err
	}
	return initialize(ctx, instance)
}

func (c *Container) validateQueued(instance interface{}) error {
	t := reflect.TypeOf(instance)
	desc, err := c.descriptors.describe(t)
	if err != nil {
		return &ResolutionError{Key: ContractKey{Type: t}, Concrete: t, Cause: err}
	}
	ctx := c.bindingContext(ContractKey{Type: t}).constructing(t, "")
	return c.validateMembers(ctx, desc, nil)
}

func isHashable(v interface{}) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}

// checkResolvable fails until the install phase has ended.
func (c *Container) checkResolvable() error {
	switch c.State() {
	case StateCreated, StateInstalling:
		return ErrStillInstalling
	case StateDisposed:
		return ErrDisposed
	}
	return nil
}

// Dispose disposes cached instances in reverse creation order and marks the
// container disposed. Children are not disposed.
func (c *Container) Dispose() error {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisposed
	disposables := c.disposables
	c.disposables = nil
	errs := c.rejected
	c.rejected = nil
	c.mu.Unlock()

	for i := len(disposables) - 1; i >= 0; i-- {
		if err := disposables[i].Dispose(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to dispose %T: %w", disposables[i], err))
		}
	}

	c.logger.Debug("container disposed", zap.Int("instances", len(disposables)))
	return errs
}
