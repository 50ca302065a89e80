package nasc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-nasc-container/metrics"
)

// Option is a function that configures a Container.
type Option func(*Container) error

// WithParents sets the parent containers. Parents are consulted in the given
// order when the local registry has no match, and cannot change afterwards.
func WithParents(parents ...*Container) Option {
	return func(c *Container) error {
		for i, p := range parents {
			if p == nil {
				return fmt.Errorf("parent container %d is nil", i)
			}
			if p == c {
				return fmt.Errorf("container cannot be its own parent")
			}
		}
		c.parents = append([]*Container(nil), parents...)
		return nil
	}
}

// WithValidation puts the container in validating mode: dependency roots and the
// inject queue are validated instead of constructed, and resolutions become dry runs.
func WithValidation() Option {
	return withValidating(true)
}

func withValidating(validating bool) Option {
	return func(c *Container) error {
		c.validating = validating
		return nil
	}
}

// WithLogger sets the logger. Children inherit it unless they set their own.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.baseLogger = logger
		return nil
	}
}

// WithMetrics records resolution metrics into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Container) error {
		c.metrics = collector
		return nil
	}
}

// WithDescriptorProvider replaces the reflection based descriptor provider.
// Descriptors are memoized per container hierarchy.
func WithDescriptorProvider(provider TypeDescriptorProvider) Option {
	return func(c *Container) error {
		if provider == nil {
			return fmt.Errorf("descriptor provider cannot be nil")
		}
		c.descriptors = newDescriptorCache(provider)
		return nil
	}
}

// WithHost sets the host collaborator used by FromNewComponentOn bindings.
func WithHost(host HostObjectFactory) Option {
	return func(c *Container) error {
		c.host = host
		return nil
	}
}

// WithSelectionPolicy sets how a single resolve picks among several matching providers.
func WithSelectionPolicy(policy SelectionPolicy) Option {
	return func(c *Container) error {
		switch policy {
		case SelectLastRegistered, SelectPreferConditional:
		default:
			return fmt.Errorf("unknown selection policy %v", policy)
		}
		c.policy = policy
		c.policySet = true
		return nil
	}
}

// WithContainerID overrides the generated container ID used in logs.
func WithContainerID(id string) Option {
	return func(c *Container) error {
		if id == "" {
			return fmt.Errorf("container id cannot be empty")
		}
		c.id = id
		return nil
	}
}

// WithRequireAllArgs makes unused extra arguments passed to Instantiate and
// Inject an error by default.
func WithRequireAllArgs() Option {
	return func(c *Container) error {
		c.requireAllArgs = true
		return nil
	}
}
