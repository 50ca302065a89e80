// Package nasc provides a hierarchical dependency injection container for Go.
//
// Nasc (Old Irish: "Link" or "Bond") resolves object graphs at runtime from
// bindings declared during an install phase. Containers form a hierarchy: a
// request that cannot be satisfied locally falls back to the parents, in the
// order they were declared.
//
// # Features
//
//   - Bindings by contract type and optional ID
//   - Instance, constructor, method, sub-container and host component providers
//   - Transient, singleton and per-container scoped lifetimes
//   - Conditional bindings (When, WhenInjectedInto)
//   - Constructor and `inject` tag member injection
//   - Cycle detection with the full object graph in errors
//   - Validation mode: dry-run the whole graph and report every problem
//   - Structured logging (zap) and Prometheus metrics
//
// # Quick Start
//
//	container := nasc.New()
//
//	err := container.Install(nasc.InstallerFunc(func(c *nasc.Container) error {
//	    c.Bind((*Logger)(nil)).To(&ConsoleLogger{}).AsSingle()
//	    c.Bind((*UserService)(nil)).FromConstructor(NewUserService).AsSingle().NonLazy()
//	    return nil
//	}))
//
//	_, err = container.ResolveDependencyRoots()
//	err = container.FlushInjectQueue()
//
//	logger, err := nasc.Resolve[Logger](container)
//
// # Lifecycle
//
// A container is Created, then Installing while installers run. Bindings are
// only accepted in that phase. ResolveDependencyRoots freezes the bindings and
// resolves every NonLazy binding in registration order; FlushInjectQueue injects
// objects passed to QueueForInject and makes the container Ready. Dispose
// disposes cached instances in reverse creation order.
//
// RunContext drives those phases for a named context whose parents can be found
// by contract name in a ContextRegistry.
//
// # Lifetimes
//
// Transient - a new instance per request (the default):
//
//	c.Bind((*Handler)(nil)).To(&JSONHandler{})
//
// Singleton - one instance, cached in the container that owns the binding:
//
//	c.Bind((*Cache)(nil)).To(&MemoryCache{}).AsSingle()
//
// Scoped - one instance per resolving container, typically a sub-container:
//
//	c.Bind((*UnitOfWork)(nil)).To(&SQLUnitOfWork{}).AsScoped()
//	request, _ := c.CreateSubContainer()
//
// # Member Injection
//
// Exported fields tagged `inject` are resolved after construction:
//
//	type UserService struct {
//	    DB     Database `inject:""`
//	    Cache  Cache    `inject:"optional"`
//	    Audit  Logger   `inject:"id=audit,source=parent"`
//	}
//
// # Validation
//
// A validating container (WithValidation, or CreateContainer with validating set)
// walks the same graph without constructing anything and returns a
// ValidationError listing every missing binding, ambiguity and cycle.
//
// # Concurrency
//
// Resolution of a hierarchy is expected to run on one goroutine. The binding
// registry is read-only once installing ends.
package nasc
