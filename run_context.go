package nasc

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-container/config"
)

// ContextRegistry tracks installed run contexts by contract name, so that later
// contexts can name them as parents.
type ContextRegistry struct {
	mu       sync.RWMutex
	contexts map[string][]*RunContext
}

// NewContextRegistry creates an empty registry.
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{contexts: make(map[string][]*RunContext)}
}

// Register records rc under name.
func (r *ContextRegistry) Register(name string, rc *RunContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.contexts[name] {
		if existing == rc {
			return
		}
	}
	r.contexts[name] = append(r.contexts[name], rc)
}

// Unregister removes rc from every name.
func (r *ContextRegistry) Unregister(rc *RunContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, list := range r.contexts {
		kept := list[:0]
		for _, existing := range list {
			if existing != rc {
				kept = append(kept, existing)
			}
		}
		if len(kept) == 0 {
			delete(r.contexts, name)
		} else {
			r.contexts[name] = kept
		}
	}
}

// Lookup returns the contexts registered under name, in registration order.
func (r *ContextRegistry) Lookup(name string) []*RunContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*RunContext(nil), r.contexts[name]...)
}

// RunContext drives a container through its lifecycle: it creates the container
// under its parents, installs bindings, resolves the dependency roots and flushes
// the inject queue. Install and Resolve each run once.
//
// Example:
//
//	app := &nasc.RunContext{
//	    Name:          "app",
//	    ContractNames: []string{"app"},
//	    Registry:      registry,
//	    Installers:    []nasc.Installer{&ServicesInstaller{}},
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
type RunContext struct {
	// Name is used in logs.
	Name string
	// ContractNames register the context in Registry once installed.
	ContractNames []string
	// ParentContractNames are looked up in Registry. Parents listed in Parents come first.
	ParentContractNames []string
	// Parents are explicit parent containers.
	Parents []*Container
	// Registry resolves ParentContractNames and records ContractNames.
	Registry *ContextRegistry
	// Validating creates a validating container. Parents must agree.
	Validating bool
	// Injectables are queued for injection before any binding is installed.
	Injectables []interface{}
	// ExtraBindings runs before Installers.
	ExtraBindings Installer
	// Installers run last.
	Installers []Installer
	// Options configure the container.
	Options []Option

	container *Container
	installed bool
	resolved  bool
}

// ErrAlreadyInstalled is returned when a run context is installed twice.
var ErrAlreadyInstalled = errors.New("run context has already been installed")

// ErrAlreadyResolved is returned when a run context is resolved twice.
var ErrAlreadyResolved = errors.New("run context has already been resolved")

// ErrNotInstalled is returned when a run context is resolved before Install.
var ErrNotInstalled = errors.New("run context must be installed before it is resolved")

// ErrValidatingRun is returned by Run on a validating run context. Use Validate.
var ErrValidatingRun = errors.New("validating run context cannot be run, use Validate")

// ErrNotValidating is returned by Validate on a run context that is not validating.
var ErrNotValidating = errors.New("only a validating run context can be validated")

// NewRunContextFromConfig builds a run context from cfg. A nil logger is replaced
// by a production logger at the configured level.
func NewRunContextFromConfig(cfg *config.ContextConfig, registry *ContextRegistry, logger *zap.Logger) (*RunContext, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := ParseSelectionPolicy(cfg.SelectionPolicy)
	if err != nil {
		return nil, err
	}
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(level)
		if logger, err = zapConfig.Build(); err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	} else {
		logger = logger.WithOptions(zap.IncreaseLevel(level))
	}

	options := []Option{WithLogger(logger), WithSelectionPolicy(policy)}
	if cfg.RequireAllArgs {
		options = append(options, WithRequireAllArgs())
	}

	return &RunContext{
		Name:                cfg.Name,
		ContractNames:       append([]string(nil), cfg.ContractNames...),
		ParentContractNames: append([]string(nil), cfg.ParentContractNames...),
		Registry:            registry,
		Validating:          cfg.Validating,
		Options:             options,
	}, nil
}

// Container returns the context's container, nil before Install.
func (rc *RunContext) Container() *Container {
	return rc.container
}

// Install creates the container and installs every binding. The context binds
// itself as *RunContext, then runs ExtraBindings and Installers.
func (rc *RunContext) Install() error {
	if rc.installed {
		return ErrAlreadyInstalled
	}
	rc.installed = true

	parents, err := rc.parentContainers()
	if err != nil {
		return err
	}
	for _, p := range parents {
		if p.IsValidating() != rc.Validating {
			return fmt.Errorf("run context %q: parent container %s has validating=%t, expected %t",
				rc.Name, p.ID(), p.IsValidating(), rc.Validating)
		}
	}

	c, err := CreateContainer(parents, rc.Validating, rc.Options...)
	if err != nil {
		return fmt.Errorf("run context %q: %w", rc.Name, err)
	}
	rc.container = c

	logger := rc.logger()
	logger.Info("installing run context",
		zap.Int("parents", len(parents)),
		zap.Int("installers", len(rc.Installers)),
		zap.Bool("validating", rc.Validating))

	if rc.Registry != nil {
		for _, name := range rc.ContractNames {
			rc.Registry.Register(name, rc)
		}
	}

	var errs error
	for _, injectable := range rc.Injectables {
		errs = multierr.Append(errs, c.QueueForInject(injectable))
	}
	if errs != nil {
		return errs
	}

	self := InstallerFunc(func(c *Container) error {
		c.Bind(reflect.TypeOf(rc)).FromInstance(rc)
		if rc.ExtraBindings != nil {
			return rc.ExtraBindings.InstallBindings(c)
		}
		return nil
	})

	if err := c.Install(append([]Installer{self}, rc.Installers...)...); err != nil {
		logger.Error("failed to install run context", zap.Error(err))
		return err
	}
	return nil
}

func (rc *RunContext) parentContainers() ([]*Container, error) {
	parents := append([]*Container(nil), rc.Parents...)
	if len(rc.ParentContractNames) == 0 {
		return parents, nil
	}
	if rc.Registry == nil {
		return nil, fmt.Errorf("run context %q names parents but has no registry", rc.Name)
	}

	seen := map[*Container]bool{}
	for _, p := range parents {
		seen[p] = true
	}
	for _, name := range rc.ParentContractNames {
		found := rc.Registry.Lookup(name)
		if len(found) == 0 {
			return nil, fmt.Errorf("run context %q: no parent context registered under %q", rc.Name, name)
		}
		for _, parent := range found {
			if parent.container == nil {
				return nil, fmt.Errorf("run context %q: parent context %q is not installed", rc.Name, parent.Name)
			}
			if !seen[parent.container] {
				seen[parent.container] = true
				parents = append(parents, parent.container)
			}
		}
	}
	return parents, nil
}

// Resolve resolves the dependency roots and flushes the inject queue.
func (rc *RunContext) Resolve() error {
	if !rc.installed || rc.container == nil {
		return ErrNotInstalled
	}
	if rc.resolved {
		return ErrAlreadyResolved
	}
	rc.resolved = true

	logger := rc.logger()
	roots, err := rc.container.ResolveDependencyRoots()
	if err != nil {
		logger.Error("failed to resolve dependency roots", zap.Error(err))
		return err
	}
	if err := rc.container.FlushInjectQueue(); err != nil {
		logger.Error("failed to flush inject queue", zap.Error(err))
		return err
	}

	logger.Info("run context ready", zap.Int("roots", len(roots)))
	return nil
}

// Run installs and resolves the context. Validating contexts are rejected.
func (rc *RunContext) Run() error {
	if rc.Validating {
		return ErrValidatingRun
	}
	if err := rc.Install(); err != nil {
		return err
	}
	return rc.Resolve()
}

// Validate dry-runs a validating context: it installs the bindings, validates the
// dependency roots and the inject queue, then runs ValidateValidatables. Nothing
// is constructed. Every problem found is returned in one ValidationError.
func (rc *RunContext) Validate(ignore ...reflect.Type) error {
	if !rc.Validating {
		return ErrNotValidating
	}
	if err := rc.Install(); err != nil {
		return err
	}
	rc.resolved = true

	c := rc.container
	_, err := c.ResolveDependencyRoots()
	errs, ok := validationErrors(err)
	if !ok {
		return err
	}
	flushErr := c.FlushInjectQueue()
	if flushErrs, ok := validationErrors(flushErr); ok {
		errs = append(errs, flushErrs...)
	} else {
		errs = append(errs, flushErr)
	}
	errs = append(errs, c.ValidateValidatables(ignore...)...)

	logger := rc.logger()
	if len(errs) > 0 {
		logger.Error("run context validation failed", zap.Int("errors", len(errs)))
		return &ValidationError{Errors: errs}
	}
	logger.Info("run context validated")
	return nil
}

// validationErrors unpacks a ValidationError. ok is false for any other error.
func validationErrors(err error) ([]error, bool) {
	if err == nil {
		return nil, true
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Errors, true
	}
	return nil, false
}

// Dispose unregisters the context and disposes its container.
func (rc *RunContext) Dispose() error {
	if rc.Registry != nil {
		rc.Registry.Unregister(rc)
	}
	if rc.container == nil {
		return nil
	}
	return rc.container.Dispose()
}

func (rc *RunContext) logger() *zap.Logger {
	if rc.container == nil {
		return zap.NewNop()
	}
	return rc.container.Logger().With(zap.String("context", rc.Name))
}
