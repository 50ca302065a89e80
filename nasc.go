package nasc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-container/metrics"
	"github.com/toutaio/toutago-nasc-container/registry"
)

// Container is the dependency injection container.
//
// A container moves through Created, Installing, Resolving and Ready. Bindings
// are only accepted while installing; resolution requires the dependency roots
// to have been resolved.
type Container struct {
	id         string
	mu         sync.RWMutex
	state      State
	parents    []*Container
	validating bool

	registry  *registry.Registry
	pending   []*bindStatement
	rejected  error
	installed []Installer

	singletons  map[singletonKey]*singletonEntry
	scoped      map[*scopedProvider]Provider
	disposables []Disposable

	injectQueue []interface{}
	queued      []interface{}
	lazyPending map[interface{}]struct{}
	roots       []interface{}

	baseLogger  *zap.Logger
	logger      *zap.Logger
	metrics     *metrics.Collector
	descriptors *descriptorCache
	host        HostObjectFactory
	policy      SelectionPolicy
	policySet   bool

	requireAllArgs bool
}

// New creates a root container. It panics if an option fails; use
// CreateContainer to get the error instead.
//
// Example:
//
//	container := nasc.New()
//	// or with options:
//	container := nasc.New(nasc.WithLogger(logger), nasc.WithSelectionPolicy(nasc.SelectLastRegistered))
func New(options ...Option) *Container {
	c, err := newContainer(options)
	if err != nil {
		panic(fmt.Sprintf("failed to apply option: %v", err))
	}
	return c
}

// CreateContainer creates a container with the given parents. Parents are
// consulted in order and are fixed for the container's lifetime.
func CreateContainer(parents []*Container, validating bool, options ...Option) (*Container, error) {
	opts := append([]Option{WithParents(parents...), withValidating(validating)}, options...)
	return newContainer(opts)
}

func newContainer(options []Option) (*Container, error) {
	c := &Container{
		state:       StateCreated,
		registry:    registry.New(),
		singletons:  make(map[singletonKey]*singletonEntry),
		scoped:      make(map[*scopedProvider]Provider),
		lazyPending: make(map[interface{}]struct{}),
		policy:      SelectPreferConditional,
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.id == "" {
		c.id = uuid.NewString()
	}

	// Collaborators not set explicitly are inherited from the first parent.
	var parent *Container
	if len(c.parents) > 0 {
		parent = c.parents[0]
	}
	if c.baseLogger == nil {
		c.baseLogger = zap.NewNop()
		if parent != nil {
			c.baseLogger = parent.baseLogger
		}
	}
	if parent != nil {
		if c.metrics == nil {
			c.metrics = parent.metrics
		}
		if c.descriptors == nil {
			c.descriptors = parent.descriptors
		}
		if c.host == nil {
			c.host = parent.host
		}
		if !c.policySet {
			c.policy = parent.policy
		}
		c.requireAllArgs = c.requireAllArgs || parent.requireAllArgs
	}
	if c.descriptors == nil {
		c.descriptors = sharedDescriptors
	}

	c.logger = c.baseLogger.With(zap.String("container", c.id))
	if parent != nil {
		c.logger.Debug("container created", zap.Int("parents", len(c.parents)), zap.Bool("validating", c.validating))
	}
	return c, nil
}

// CreateSubContainer creates a child container whose only parent is c.
//
// Example:
//
//	requestScope, err := app.CreateSubContainer()
func (c *Container) CreateSubContainer(options ...Option) (*Container, error) {
	return CreateContainer([]*Container{c}, c.validating, options...)
}

// ID returns the container identifier used in logs.
func (c *Container) ID() string {
	return c.id
}

// State returns the lifecycle phase of the container.
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Container) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// Parents returns the parent containers in lookup order.
func (c *Container) Parents() []*Container {
	return append([]*Container(nil), c.parents...)
}

// IsValidating reports whether the container only validates its object graph.
func (c *Container) IsValidating() bool {
	return c.validating
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// SelectionPolicy returns how single resolution picks among matching providers.
func (c *Container) SelectionPolicy() SelectionPolicy {
	return c.policy
}

// Contracts returns the contracts bound locally, in first-registration order.
func (c *Container) Contracts() []ContractKey {
	return c.registry.Keys()
}

// scopedFor returns the per-container cache of a scoped binding.
func (c *Container) scopedFor(p *scopedProvider) Provider {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.scoped[p]; ok {
		return cached
	}
	cached := &cachedProvider{owner: c, inner: p.base(c)}
	c.scoped[p] = cached
	return cached
}

func (c *Container) trackDisposables(instances []interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, instance := range instances {
		if d, ok := instance.(Disposable); ok {
			c.disposables = append(c.disposables, d)
		}
	}
}
