package nasc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrStillInstalling is returned when a container is asked to resolve before its
// install phase has ended.
var ErrStillInstalling = errors.New("container is still installing; call ResolveDependencyRoots first")

// ErrDisposed is returned when a disposed container is used.
var ErrDisposed = errors.New("container has been disposed")

// BindingNotFoundError is returned when no provider exists for a required contract.
type BindingNotFoundError struct {
	Key   ContractKey
	Chain string
}

func (e *BindingNotFoundError) Error() string {
	return fmt.Sprintf("binding not found for %v. Did you forget to Bind() it?%s", e.Key, chainSuffix(e.Chain))
}

// AmbiguousBindingError is returned when several providers match a request that
// required exactly one.
type AmbiguousBindingError struct {
	Key        ContractKey
	Candidates []string
	Chain      string
}

func (e *AmbiguousBindingError) Error() string {
	return fmt.Sprintf("ambiguous binding for %v: %d candidates [%s]%s",
		e.Key, len(e.Candidates), strings.Join(e.Candidates, ", "), chainSuffix(e.Chain))
}

// CyclicDependencyError indicates a concrete type was re-entered while it was
// still under construction. Path runs from the root request to the repeated node.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic dependency detected"
	}
	return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Path, " -> "))
}

// RegistrationError is returned when bindings are added outside the install phase
// or a binding is configured inconsistently.
type RegistrationError struct {
	Key    *ContractKey
	Reason string
	Cause  error
}

func (e *RegistrationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid registration")
	if e.Key != nil {
		fmt.Fprintf(&b, " for %v", *e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error.
func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// MemberInjectionError is returned when a required injection point could not be satisfied.
type MemberInjectionError struct {
	Owner  reflect.Type
	Member string
	Key    ContractKey
	Cause  error
}

func (e *MemberInjectionError) Error() string {
	return fmt.Sprintf("failed to inject %v.%s (%v): %v", e.Owner, e.Member, e.Key, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *MemberInjectionError) Unwrap() error {
	return e.Cause
}

// ResolutionError is returned when a provider or constructor fails while producing an instance.
type ResolutionError struct {
	Key      ContractKey
	Concrete reflect.Type
	Chain    string
	Cause    error
}

func (e *ResolutionError) Error() string {
	concreteStr := ""
	if e.Concrete != nil {
		concreteStr = fmt.Sprintf(" (concrete %v)", e.Concrete)
	}

	causeStr := ""
	if e.Cause != nil {
		causeStr = fmt.Sprintf(": %v", e.Cause)
	}

	return fmt.Sprintf("failed to resolve %v%s%s%s", e.Key, concreteStr, causeStr, chainSuffix(e.Chain))
}

// Unwrap returns the underlying cause error.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// ValidationError carries every failure found during a validation pass.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation failed: %v", e.Errors[0])
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		b.WriteString(fmt.Sprintf("  %d. %v\n", i+1, err))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

func chainSuffix(chain string) string {
	if chain == "" {
		return ""
	}
	return "\n  object graph: " + chain
}
