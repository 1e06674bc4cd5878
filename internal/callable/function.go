// Package callable describes functions that can be executed away from the
// code that referenced them. A Function pairs a Go func with an explicit
// parameter list; a Callable is a Function plus the values its closure
// captured. Both are looked up by name through a Registry, so any process that
// registers the same functions can execute a Callable produced elsewhere.
package callable

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Param describes one declared parameter of a function.
type Param struct {
	Name       string
	Default    any
	HasDefault bool
}

// Required declares a parameter that callers must supply.
func Required(name string) Param {
	return Param{Name: name}
}

// Optional declares a parameter that falls back to def when omitted.
func Optional(name string, def any) Param {
	return Param{Name: name, Default: def, HasDefault: true}
}

// Function is a Go func with a declared parameter list.
//
// The func may take a leading context.Context, which is supplied by the
// executing side and is not part of the parameter list. A trailing variadic
// parameter collects surplus positional arguments. Supported results are
// (), (T), (error) and (T, error).
type Function struct {
	name     string
	params   []Param
	types    []reflect.Type // per param; element type for the variadic param
	value    reflect.Value
	withCtx  bool
	variadic bool
	hasValue bool
	hasErr   bool
	registry *Registry
}

// New describes fn under name. When params is empty, parameters are named
// arg0, arg1, ... and are all required.
func New(name string, fn any, params ...Param) (*Function, error) {
	if name == "" {
		return nil, errors.New("define function: name is required")
	}

	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("define %s: %T is not a function", name, fn)
	}
	t := v.Type()

	f := &Function{name: name, value: v, variadic: t.IsVariadic()}

	offset := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		f.withCtx = true
		offset = 1
	}

	n := t.NumIn() - offset
	if len(params) == 0 && n > 0 {
		params = make([]Param, n)
		for i := range params {
			params[i] = Required(fmt.Sprintf("arg%d", i))
		}
	}
	if len(params) != n {
		return nil, fmt.Errorf("define %s: function takes %d parameters, %d described", name, n, len(params))
	}

	seen := make(map[string]bool, n)
	optional := false
	for i, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("define %s: parameter %d has no name", name, i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("define %s: duplicate parameter %q", name, p.Name)
		}
		seen[p.Name] = true

		typ := t.In(offset + i)
		switch {
		case f.variadic && i == n-1:
			if p.HasDefault {
				return nil, fmt.Errorf("define %s: variadic parameter %q cannot have a default", name, p.Name)
			}
			typ = typ.Elem()
		case p.HasDefault:
			optional = true
			if _, err := coerce(p.Default, typ); err != nil {
				return nil, fmt.Errorf("define %s: default for %q: %w", name, p.Name, err)
			}
		case optional:
			return nil, fmt.Errorf("define %s: required parameter %q follows an optional parameter", name, p.Name)
		}
		f.types = append(f.types, typ)
	}
	f.params = slices.Clone(params)

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			f.hasErr = true
		} else {
			f.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("define %s: second result must be error, got %s", name, t.Out(1))
		}
		f.hasValue, f.hasErr = true, true
	default:
		return nil, fmt.Errorf("define %s: function returns %d results, at most 2 supported", name, t.NumOut())
	}

	return f, nil
}

// Name returns the name the function was described under.
func (f *Function) Name() string { return f.name }

// Params returns a copy of the declared parameter list.
func (f *Function) Params() []Param { return slices.Clone(f.params) }

// Registry returns the registry the function belongs to, or nil.
func (f *Function) Registry() *Registry { return f.registry }

// Callable returns a Callable for f with nothing captured.
func (f *Function) Callable() Callable {
	return Callable{fn: f}
}

// Capture returns a Callable whose leading parameters are fixed to values,
// the serializable equivalent of a closure over those values.
func (f *Function) Capture(values ...any) (Callable, error) {
	fixed := f.fixed()
	if len(values) > fixed {
		return Callable{}, &SignatureError{
			Func:   f.name,
			Arg:    fmt.Sprintf("captured[%d]", fixed),
			Reason: fmt.Sprintf("too many captured values: takes %d, got %d", fixed, len(values)),
		}
	}
	for i, v := range values {
		if _, err := coerce(v, f.types[i]); err != nil {
			return Callable{}, &SignatureError{Func: f.name, Arg: f.params[i].Name, Reason: err.Error()}
		}
	}
	return Callable{fn: f, captured: slices.Clone(values)}, nil
}

// fixed is the number of parameters excluding the variadic one.
func (f *Function) fixed() int {
	if f.variadic {
		return len(f.params) - 1
	}
	return len(f.params)
}

// index returns the position of the non-variadic parameter called name, or -1.
func (f *Function) index(name string) int {
	for i, p := range f.params[:f.fixed()] {
		if p.Name == name {
			return i
		}
	}
	return -1
}
