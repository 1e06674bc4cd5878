package callable

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"sort"
)

// Callable is a Function together with the values its closure captured.
// The zero Callable is not usable.
type Callable struct {
	fn       *Function
	captured []any
}

// Function returns the underlying function, or nil for the zero Callable.
func (c Callable) Function() *Function { return c.fn }

// Name returns the function name, or "" for the zero Callable.
func (c Callable) Name() string {
	if c.fn == nil {
		return ""
	}
	return c.fn.name
}

// Captured returns a copy of the captured values.
func (c Callable) Captured() []any { return slices.Clone(c.captured) }

// Bind checks that args and kwargs are acceptable to the function: arity,
// required and optional parameters, keyword names, and that every value can
// be converted to the declared parameter type. It returns nil or a
// *SignatureError naming the offending argument.
func (c Callable) Bind(args []any, kwargs map[string]any) error {
	_, err := c.bind(args, kwargs)
	return err
}

// Call binds the arguments and invokes the function. ctx is passed through
// when the function declares a leading context.Context. Errors returned by
// the function are returned unchanged; a panic is returned as *PanicError.
func (c Callable) Call(ctx context.Context, args []any, kwargs map[string]any) (result any, err error) {
	in, err := c.bind(args, kwargs)
	if err != nil {
		return nil, err
	}

	f := c.fn
	if f.withCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append([]reflect.Value{reflect.ValueOf(ctx)}, in...)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Func: f.name, Value: r, Stack: debug.Stack()}
		}
	}()

	out := f.value.Call(in)
	if f.hasErr {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, e.Interface().(error)
		}
	}
	if f.hasValue {
		return out[0].Interface(), nil
	}
	return nil, nil
}

// bind resolves positional, keyword, captured and default values onto the
// declared parameters and converts each to its Go type.
func (c Callable) bind(args []any, kwargs map[string]any) ([]reflect.Value, error) {
	f := c.fn
	if f == nil {
		return nil, &SignatureError{Reason: "callable has no function"}
	}

	fixed := f.fixed()
	all := make([]any, 0, len(c.captured)+len(args))
	all = append(all, c.captured...)
	all = append(all, args...)

	if len(all) > fixed && !f.variadic {
		takes := fixed - len(c.captured)
		return nil, &SignatureError{
			Func:   f.name,
			Arg:    fmt.Sprintf("args[%d]", takes),
			Reason: fmt.Sprintf("too many positional arguments: takes %d, got %d", takes, len(args)),
		}
	}

	slots := make([]any, fixed)
	filled := make([]bool, fixed)
	for i := 0; i < min(len(all), fixed); i++ {
		slots[i] = all[i]
		filled[i] = true
	}

	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		idx := f.index(name)
		switch {
		case idx < 0:
			return nil, &SignatureError{Func: f.name, Arg: name, Reason: "unexpected keyword argument"}
		case idx < len(c.captured):
			return nil, &SignatureError{Func: f.name, Arg: name, Reason: "argument is already captured"}
		case filled[idx]:
			return nil, &SignatureError{Func: f.name, Arg: name, Reason: "multiple values for argument"}
		}
		slots[idx] = kwargs[name]
		filled[idx] = true
	}

	in := make([]reflect.Value, 0, len(all)+1)
	for i := 0; i < fixed; i++ {
		p := f.params[i]
		if !filled[i] {
			if !p.HasDefault {
				return nil, &SignatureError{Func: f.name, Arg: p.Name, Reason: "missing required argument"}
			}
			slots[i] = p.Default
		}
		v, err := coerce(slots[i], f.types[i])
		if err != nil {
			return nil, &SignatureError{Func: f.name, Arg: p.Name, Reason: err.Error()}
		}
		in = append(in, v)
	}

	if f.variadic && len(all) > fixed {
		name := f.params[fixed].Name
		for i, a := range all[fixed:] {
			v, err := coerce(a, f.types[fixed])
			if err != nil {
				return nil, &SignatureError{Func: f.name, Arg: fmt.Sprintf("%s[%d]", name, i), Reason: err.Error()}
			}
			in = append(in, v)
		}
	}

	return in, nil
}
