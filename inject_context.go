package nasc

import (
	"fmt"
	"reflect"
	"strings"
)

// Source restricts which containers of the hierarchy a request may be satisfied from.
type Source int

const (
	// SourceAny looks locally first and falls back to the parents.
	SourceAny Source = iota
	// SourceLocal only looks at the resolving container.
	SourceLocal
	// SourceParent only looks at the direct parents' local bindings.
	SourceParent
	// SourceAncestors skips the resolving container and walks every ancestor.
	SourceAncestors
)

func (s Source) String() string {
	switch s {
	case SourceAny:
		return "any"
	case SourceLocal:
		return "local"
	case SourceParent:
		return "parent"
	case SourceAncestors:
		return "ancestors"
	default:
		return fmt.Sprintf("Source(%d)", int(s))
	}
}

// ParseSource parses the names returned by Source.String.
func ParseSource(s string) (Source, error) {
	switch s {
	case "", "any":
		return SourceAny, nil
	case "local":
		return SourceLocal, nil
	case "parent":
		return SourceParent, nil
	case "ancestors":
		return SourceAncestors, nil
	default:
		return SourceAny, fmt.Errorf("unknown inject source %q", s)
	}
}

// InjectContext is one frame of a resolution request. Frames form an immutable
// list from the current request back to the root request; they live only for the
// duration of a single resolution.
type InjectContext struct {
	parent     *InjectContext
	container  *Container
	key        ContractKey
	objectType reflect.Type
	memberName string
	source     Source
	optional   bool

	// set on frames whose provider is constructing a concrete type
	concrete   reflect.Type
	concreteID string
}

func newRootContext(c *Container, key ContractKey, opts *ResolveOptions) *InjectContext {
	if opts.Context != nil {
		return opts.Context.child(c, key, "", opts.Optional, opts.Source)
	}
	return &InjectContext{
		container:  c,
		key:        key,
		objectType: opts.Requester,
		source:     opts.Source,
		optional:   opts.Optional,
	}
}

// child creates the frame for a dependency requested by the object this frame constructs.
func (ctx *InjectContext) child(c *Container, key ContractKey, member string, optional bool, source Source) *InjectContext {
	return &InjectContext{
		parent:     ctx,
		container:  c,
		key:        key,
		objectType: ctx.concrete,
		memberName: member,
		source:     source,
		optional:   optional,
	}
}

// constructing returns a copy of the frame recording the concrete type about to be built.
// The copy replaces the frame for every dependency requested during construction.
func (ctx *InjectContext) constructing(concrete reflect.Type, concreteID string) *InjectContext {
	frame := *ctx
	frame.concrete = concrete
	frame.concreteID = concreteID
	return &frame
}

// underConstruction reports whether an ancestor frame is building concrete.
func (ctx *InjectContext) underConstruction(concrete reflect.Type) bool {
	for f := ctx.parent; f != nil; f = f.parent {
		if f.concrete == concrete {
			return true
		}
	}
	return false
}

// Parent returns the frame of the object that requested this one, or nil at the root.
func (ctx *InjectContext) Parent() *InjectContext { return ctx.parent }

// Container returns the container the request is being resolved in.
func (ctx *InjectContext) Container() *Container { return ctx.container }

// Key returns the requested contract.
func (ctx *InjectContext) Key() ContractKey { return ctx.key }

// ObjectType returns the concrete type that asked for this contract, or nil at the root.
func (ctx *InjectContext) ObjectType() reflect.Type { return ctx.objectType }

// MemberName returns the field or parameter being injected.
func (ctx *InjectContext) MemberName() string { return ctx.memberName }

// Source returns the lookup restriction of the request.
func (ctx *InjectContext) Source() Source { return ctx.source }

// Optional reports whether a missing binding yields absent rather than an error.
func (ctx *InjectContext) Optional() bool { return ctx.optional }

// ConcreteType returns the type being constructed for this frame, if any.
func (ctx *InjectContext) ConcreteType() reflect.Type { return ctx.concrete }

// ConcreteID returns the identifier the constructed object was tagged with.
func (ctx *InjectContext) ConcreteID() string { return ctx.concreteID }

// Depth returns the number of frames between this one and the root.
func (ctx *InjectContext) Depth() int {
	depth := 0
	for f := ctx.parent; f != nil; f = f.parent {
		depth++
	}
	return depth
}

// ParentTypes returns the requesting object types from the nearest to the root.
func (ctx *InjectContext) ParentTypes() []reflect.Type {
	var types []reflect.Type
	for f := ctx; f != nil; f = f.parent {
		if f.objectType != nil {
			types = append(types, f.objectType)
		}
	}
	return types
}

// Chain returns the frames from the root request to this one.
func (ctx *InjectContext) Chain() []*InjectContext {
	var frames []*InjectContext
	for f := ctx; f != nil; f = f.parent {
		frames = append(frames, f)
	}
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return frames
}

// String describes the frame, e.g. `Logger[id=file] (*FileLogger)`.
func (ctx *InjectContext) String() string {
	var b strings.Builder
	b.WriteString(ctx.key.String())
	if ctx.concrete != nil && ctx.concrete != ctx.key.Type {
		fmt.Fprintf(&b, " (%v)", ctx.concrete)
	}
	return b.String()
}

// path renders every frame from the root.
func (ctx *InjectContext) path() []string {
	chain := ctx.Chain()
	path := make([]string, len(chain))
	for i, f := range chain {
		path[i] = f.String()
	}
	return path
}

// ChainString renders the request chain from the root, for error messages.
func (ctx *InjectContext) ChainString() string {
	if ctx == nil {
		return ""
	}
	return strings.Join(ctx.path(), " -> ")
}
