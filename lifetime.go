package nasc

import "fmt"

// Lifetime represents the caching strategy for a bound dependency.
type Lifetime string

const (
	// LifetimeTransient creates a new instance on every resolution.
	// This is the default lifetime for bindings.
	LifetimeTransient Lifetime = "transient"

	// LifetimeSingleton creates one instance, lazily, cached in the container that owns
	// the binding. Bindings of the same concrete type share that instance.
	LifetimeSingleton Lifetime = "singleton"

	// LifetimeScoped creates one instance per resolving container, so every
	// sub-container that asks for the contract gets its own cached copy.
	LifetimeScoped Lifetime = "scoped"
)

// String returns the string representation of the lifetime.
func (l Lifetime) String() string {
	return string(l)
}

// State is a container lifecycle phase.
type State int

const (
	// StateCreated is the state of a container nobody installed into yet.
	StateCreated State = iota
	// StateInstalling accepts bindings.
	StateInstalling
	// StateResolving is entered when dependency roots are forced.
	StateResolving
	// StateReady is entered once the inject queue has been flushed.
	StateReady
	// StateDisposed is terminal.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInstalling:
		return "installing"
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SelectionPolicy decides which provider wins a single-value resolve when several match.
type SelectionPolicy int

const (
	// SelectLastRegistered picks the most recently registered matching provider.
	SelectLastRegistered SelectionPolicy = iota
	// SelectPreferConditional picks the most recent binding whose condition matched,
	// falling back to the most recent unconditional one.
	SelectPreferConditional
)

func (p SelectionPolicy) String() string {
	switch p {
	case SelectLastRegistered:
		return "last_registered"
	case SelectPreferConditional:
		return "prefer_conditional"
	default:
		return fmt.Sprintf("SelectionPolicy(%d)", int(p))
	}
}

// ParseSelectionPolicy parses the names returned by SelectionPolicy.String.
// The empty string yields SelectPreferConditional.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch s {
	case "", "prefer_conditional":
		return SelectPreferConditional, nil
	case "last_registered":
		return SelectLastRegistered, nil
	default:
		return 0, fmt.Errorf("unknown selection policy %q", s)
	}
}
