package nasc

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"
)

// ConstructorFunc represents a constructor function.
// Supported signatures:
//   - func() T
//   - func() (T, error)
//   - func(Dep1, Dep2, ...) T
//   - func(Dep1, Dep2, ...) (T, error)
//
// A *Container parameter receives the resolving container.
type ConstructorFunc interface{}

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// parseConstructor analyzes a constructor function and builds the descriptor of
// the type it returns. ids are assigned to parameters positionally.
func parseConstructor(constructor ConstructorFunc, ids []string) (*TypeDescriptor, error) {
	if constructor == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	fnValue := reflect.ValueOf(constructor)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %v", fnType.Kind())
	}
	if fnValue.IsNil() {
		return nil, fmt.Errorf("constructor cannot be nil")
	}
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("variadic constructors are not supported: %v", fnType)
	}

	// Validate return values
	numOut := fnType.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d return values", numOut)
	}

	returnType := fnType.Out(0)
	if returnType == errorInterface {
		return nil, fmt.Errorf("constructor's first return value cannot be error")
	}

	returnsError := false
	if numOut == 2 {
		if fnType.Out(1) != errorInterface {
			return nil, fmt.Errorf("constructor's second return value must be error, got %v", fnType.Out(1))
		}
		returnsError = true
	}

	numParams := fnType.NumIn()
	if len(ids) > numParams {
		return nil, fmt.Errorf("constructor %v takes %d parameters but %d ids were given", fnType, numParams, len(ids))
	}

	params := make([]ParamInfo, numParams)
	for i := 0; i < numParams; i++ {
		paramType := fnType.In(i)
		params[i] = ParamInfo{
			Type:        paramType,
			IsContainer: paramType == containerType,
		}
		if i < len(ids) {
			params[i].ID = ids[i]
		}
	}

	construct := func(args []reflect.Value) (interface{}, error) {
		results := fnValue.Call(args)

		if returnsError {
			if errValue := results[1]; !errValue.IsNil() {
				return nil, fmt.Errorf("constructor returned error: %w", errValue.Interface().(error))
			}
		}

		return results[0].Interface(), nil
	}

	return &TypeDescriptor{
		Type:      returnType,
		Params:    params,
		Construct: construct,
	}, nil
}

// constructorOrigin identifies a constructor function value. References to the
// same named function are equal; closures created separately differ even when
// they share code.
func constructorOrigin(fn ConstructorFunc) string {
	code := reflect.ValueOf(fn).Pointer()
	name := fmt.Sprintf("%x", code)
	if f := runtime.FuncForPC(code); f != nil {
		name = f.Name()
	}
	// a func stored in an interface keeps its closure pointer in the data word
	closure := (*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1]
	return fmt.Sprintf("constructor %s (%p)", name, closure)
}
