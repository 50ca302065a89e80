package nasc

import (
	"fmt"
	"reflect"
	"strings"
)

// tagOptions represents parsed options from an inject tag.
type tagOptions struct {
	skip     bool   // Don't inject this field
	optional bool   // Leave the field untouched if resolution fails
	id       string // Identified binding to use
	source   Source
}

// parseInjectTag parses an inject struct tag.
// Supported formats:
//   - `inject:""` - required injection
//   - `inject:"-"` - never injected
//   - `inject:"optional"` - optional injection
//   - `inject:"id=foo"` - identified binding (`name=foo` is accepted as well)
//   - `inject:"source=local"` - restrict lookup (any, local, parent, ancestors)
//   - `inject:"optional,id=foo,source=parent"` - combined options
func parseInjectTag(tag string) (tagOptions, error) {
	opts := tagOptions{}

	if tag == "" {
		return opts, nil
	}

	if tag == "-" {
		opts.skip = true
		return opts, nil
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)

		switch {
		case part == "":
		case part == "optional":
			opts.optional = true
		case strings.HasPrefix(part, "id="):
			opts.id = strings.TrimPrefix(part, "id=")
		case strings.HasPrefix(part, "name="):
			opts.id = strings.TrimPrefix(part, "name=")
		case strings.HasPrefix(part, "source="):
			source, err := ParseSource(strings.TrimPrefix(part, "source="))
			if err != nil {
				return opts, err
			}
			opts.source = source
		default:
			return opts, fmt.Errorf("unknown inject tag option %q", part)
		}
	}

	return opts, nil
}

// Inject performs member injection on an already constructed object.
// Fields with `inject` tags are resolved from the container; Initialize is called
// afterwards when the object implements Initializable.
//
// Example:
//
//	type Handler struct {
//	    Logger Logger `inject:""`
//	    Cache  Cache  `inject:"optional"`
//	}
//
//	h := &Handler{}
//	err := container.Inject(h)
func (c *Container) Inject(instance interface{}, opts ...ResolveOption) error {
	if instance == nil {
		return fmt.Errorf("cannot inject into nil instance")
	}
	if err := c.checkResolvable(); err != nil {
		return err
	}

	value := reflect.ValueOf(instance)
	if value.Kind() != reflect.Ptr || value.IsNil() || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("Inject requires a non-nil pointer to struct, got %T", instance)
	}

	options := buildResolveOptions(opts)
	desc := options.Descriptor
	if desc == nil {
		var err error
		if desc, err = c.descriptors.describe(value.Type()); err != nil {
			return &ResolutionError{Key: ContractKey{Type: value.Type()}, Cause: err}
		}
	}

	ctx := newRootContext(c, ContractKey{Type: value.Type()}, options).constructing(value.Type(), options.ConcreteID)
	if c.validating {
		return c.finishValidation(c.validateMembers(ctx, desc, newArgList(options.Args, options.ArgTypes)))
	}

	args := newArgList(options.Args, nil)
	if err := c.injectMembers(ctx, value, desc, args); err != nil {
		return err
	}
	if err := args.checkAllUsed(options.RequireAllArgs || c.requireAllArgs); err != nil {
		return &ResolutionError{Key: ctx.key, Concrete: value.Type(), Chain: ctx.ChainString(), Cause: err}
	}
	return initialize(ctx, instance)
}
