package nasc

import (
	"reflect"
)

// Installer groups related bindings. InstallBindings runs while the container is installing.
//
// Example:
//
//	type LoggingInstaller struct{}
//
//	func (i *LoggingInstaller) InstallBindings(c *nasc.Container) error {
//	    c.Bind((*Logger)(nil)).To(&ConsoleLogger{}).AsSingle()
//	    return nil
//	}
type Installer interface {
	InstallBindings(c *Container) error
}

// InstallerFunc adapts a function to Installer.
type InstallerFunc func(c *Container) error

// InstallBindings calls f(c).
func (f InstallerFunc) InstallBindings(c *Container) error {
	return f(c)
}

// ConditionalInstaller is an optional interface for installers that should only run
// in some containers.
//
// Example:
//
//	func (i *CacheInstaller) ShouldInstall(c *nasc.Container) bool {
//	    return !c.IsValidating()
//	}
type ConditionalInstaller interface {
	Installer
	ShouldInstall(c *Container) bool
}

// Initializable represents a service that requires initialization.
// Initialize is called once the instance has been constructed and member injected.
type Initializable interface {
	Initialize() error
}

// Disposable represents a service that requires cleanup.
// Cached instances implementing it are disposed with their container,
// in reverse creation order.
type Disposable interface {
	Dispose() error
}

// Validatable is implemented by services that can check their own configuration.
// See Container.ValidateValidatables.
type Validatable interface {
	Validate() error
}

// HostObjectFactory creates objects owned by the host runtime, e.g. components
// attached to a host object. The container treats the result as a plain instance
// and performs member injection on it.
type HostObjectFactory interface {
	NewComponent(host interface{}, concrete reflect.Type) (interface{}, error)
}

// alreadyInstalled reports whether the same installer instance ran before, and records it.
// Only pointer installers have an identity; value and function installers always run.
func (c *Container) alreadyInstalled(installer Installer) bool {
	if reflect.TypeOf(installer).Kind() != reflect.Ptr {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, seen := range c.installed {
		if seen == installer {
			return true
		}
	}
	c.installed = append(c.installed, installer)
	return false
}
