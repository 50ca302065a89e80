package nasc

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"
)

// argList holds the extra arguments of one construction. Each argument is consumed
// at most once, by the first parameter or member whose type it fits.
type argList struct {
	entries []*argEntry
}

type argEntry struct {
	typ   reflect.Type
	value reflect.Value // invalid for type-only entries used by validation
	used  bool
}

func newArgList(values []interface{}, types []reflect.Type) *argList {
	args := &argList{}
	for _, v := range values {
		if v == nil {
			continue
		}
		args.entries = append(args.entries, &argEntry{typ: reflect.TypeOf(v), value: reflect.ValueOf(v)})
	}
	for _, t := range types {
		if t == nil {
			continue
		}
		args.entries = append(args.entries, &argEntry{typ: t})
	}
	return args
}

// take consumes the first unused argument assignable to t.
func (a *argList) take(t reflect.Type) (reflect.Value, bool) {
	if a == nil || t == nil {
		return reflect.Value{}, false
	}
	for _, e := range a.entries {
		if !e.used && e.typ.AssignableTo(t) {
			e.used = true
			return e.value, true
		}
	}
	return reflect.Value{}, false
}

func (a *argList) checkAllUsed(requireAll bool) error {
	if !requireAll || a == nil {
		return nil
	}

	var unused []string
	for _, e := range a.entries {
		if !e.used {
			unused = append(unused, e.typ.String())
		}
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused extra arguments: %s", strings.Join(unused, ", "))
	}
	return nil
}

// enterConstruction marks ctx as constructing concrete, failing when an ancestor
// frame is already building the same type.
func (c *Container) enterConstruction(ctx *InjectContext, concrete reflect.Type, concreteID string) (*InjectContext, error) {
	frame := ctx.constructing(concrete, concreteID)
	if frame.underConstruction(concrete) {
		c.metrics.ObserveCycle()
		c.logger.Debug("cyclic dependency detected",
			zap.Stringer("concrete", concrete),
			zap.String("graph", frame.ChainString()))
		return nil, &CyclicDependencyError{Path: frame.path()}
	}
	return frame, nil
}

// enterMethod is enterConstruction for method providers. Their concrete type is
// the contract type, so only an ancestor frame building the same contract is a re-entry.
func (c *Container) enterMethod(ctx *InjectContext, typ reflect.Type) (*InjectContext, error) {
	frame := ctx.constructing(typ, ctx.concreteID)
	for f := ctx.parent; f != nil; f = f.parent {
		if f.concrete == typ && f.key == ctx.key {
			c.metrics.ObserveCycle()
			c.logger.Debug("cyclic dependency detected",
				zap.Stringer("contract", ctx.key),
				zap.String("graph", frame.ChainString()))
			return nil, &CyclicDependencyError{Path: frame.path()}
		}
	}
	return frame, nil
}

// instantiate builds a new instance from desc: constructor parameters first,
// then members, then Initialize.
func (c *Container) instantiate(ctx *InjectContext, desc *TypeDescriptor, args *argList, requireAll bool, concreteID string) (interface{}, error) {
	if desc == nil || desc.Type == nil {
		return nil, &ResolutionError{Key: ctx.key, Chain: ctx.ChainString(), Cause: fmt.Errorf("no type descriptor")}
	}
	if desc.Construct == nil && len(desc.Params) > 0 {
		return nil, &ResolutionError{Key: ctx.key, Concrete: desc.Type, Chain: ctx.ChainString(),
			Cause: fmt.Errorf("descriptor declares parameters but no Construct function")}
	}

	frame, err := c.enterConstruction(ctx, desc.Type, concreteID)
	if err != nil {
		return nil, err
	}

	params := make([]reflect.Value, len(desc.Params))
	for i, param := range desc.Params {
		v, err := c.resolveParam(frame, i, param, args)
		if err != nil {
			return nil, err
		}
		params[i] = v
	}

	var target reflect.Value
	if desc.Construct == nil {
		base := desc.Type
		if base.Kind() == reflect.Ptr {
			base = base.Elem()
		}
		if base.Kind() != reflect.Struct {
			return nil, &ResolutionError{Key: ctx.key, Concrete: desc.Type, Chain: frame.ChainString(),
				Cause: fmt.Errorf("cannot allocate %v: not a struct", desc.Type)}
		}
		target = reflect.New(base)
	} else {
		instance, err := desc.Construct(params)
		if err != nil {
			return nil, &ResolutionError{Key: ctx.key, Concrete: desc.Type, Chain: frame.ChainString(), Cause: err}
		}
		target = reflect.ValueOf(instance)
	}

	if err := c.injectMembers(frame, target, desc, args); err != nil {
		return nil, err
	}

	var result interface{}
	switch {
	case !target.IsValid():
		result = nil
	case desc.Construct == nil && desc.Type.Kind() != reflect.Ptr:
		result = target.Elem().Interface()
	default:
		result = target.Interface()
	}

	if err := args.checkAllUsed(requireAll); err != nil {
		return nil, &ResolutionError{Key: ctx.key, Concrete: desc.Type, Chain: frame.ChainString(), Cause: err}
	}
	if err := initialize(frame, result); err != nil {
		return nil, err
	}

	c.metrics.ObserveConstruction(desc.Type.String())
	return result, nil
}

// resolveParam produces the value of the i-th constructor parameter.
func (c *Container) resolveParam(frame *InjectContext, i int, param ParamInfo, args *argList) (reflect.Value, error) {
	if param.IsContainer {
		return reflect.ValueOf(c), nil
	}
	if v, ok := args.take(param.Type); ok {
		return v, nil
	}

	hasDefault := param.Default.IsValid()
	key := ContractKey{Type: param.Type, ID: param.ID}
	child := frame.child(c, key, fmt.Sprintf("param[%d]", i), param.Optional || hasDefault, param.Source)

	instance, found, err := c.resolve(child, false)
	if err != nil {
		return reflect.Value{}, err
	}
	if !found {
		if hasDefault {
			return param.Default, nil
		}
		return reflect.Zero(param.Type), nil
	}
	return valueFor(child, instance, param.Type)
}

// injectMembers resolves and sets the injection points of desc on target.
// Optional members are left untouched when nothing is bound for them.
func (c *Container) injectMembers(frame *InjectContext, target reflect.Value, desc *TypeDescriptor, args *argList) error {
	if len(desc.Members) == 0 {
		return nil
	}
	if !target.IsValid() || target.Kind() != reflect.Ptr || target.IsNil() || target.Elem().Kind() != reflect.Struct {
		return &ResolutionError{Key: frame.key, Concrete: desc.Type, Chain: frame.ChainString(),
			Cause: fmt.Errorf("members can only be injected through a pointer to struct")}
	}

	elem := target.Elem()
	for _, m := range desc.Members {
		key := ContractKey{Type: m.Type, ID: m.ID}

		field, err := elem.FieldByIndexErr(m.Index)
		if err != nil || !field.CanSet() {
			return &MemberInjectionError{Owner: desc.Type, Member: m.Name, Key: key,
				Cause: fmt.Errorf("field is not settable")}
		}

		if v, ok := args.take(m.Type); ok {
			field.Set(v)
			continue
		}

		child := frame.child(c, key, m.Name, m.Optional, m.Source)
		instance, found, err := c.resolve(child, false)
		if err != nil {
			return &MemberInjectionError{Owner: desc.Type, Member: m.Name, Key: key, Cause: err}
		}
		if !found {
			c.logger.Debug("optional member left unset",
				zap.Stringer("owner", desc.Type),
				zap.String("member", m.Name))
			continue
		}

		v, err := valueFor(child, instance, m.Type)
		if err != nil {
			return &MemberInjectionError{Owner: desc.Type, Member: m.Name, Key: key, Cause: err}
		}
		field.Set(v)
	}
	return nil
}

func valueFor(ctx *InjectContext, instance interface{}, t reflect.Type) (reflect.Value, error) {
	if instance == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(instance)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, &ResolutionError{
			Key:      ctx.key,
			Concrete: v.Type(),
			Chain:    ctx.ChainString(),
			Cause:    fmt.Errorf("%v is not assignable to %v", v.Type(), t),
		}
	}
	return v, nil
}

// initialize calls Initialize on instances implementing Initializable.
func initialize(ctx *InjectContext, instance interface{}) error {
	init, ok := instance.(Initializable)
	if !ok {
		return nil
	}
	if err := init.Initialize(); err != nil {
		return &ResolutionError{
			Key:      ctx.key,
			Concrete: reflect.TypeOf(instance),
			Chain:    ctx.ChainString(),
			Cause:    fmt.Errorf("initialization failed: %w", err),
		}
	}
	return nil
}
