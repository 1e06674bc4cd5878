package callable

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds functions by name. Clients and workers build identical
// registries so that a function referenced on one side resolves on the other.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

// NewRegistry creates an empty function registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]*Function),
	}
}

// Define describes fn and registers it under name.
func (r *Registry) Define(name string, fn any, params ...Param) (*Function, error) {
	f, err := New(name, fn, params...)
	if err != nil {
		return nil, err
	}
	if err := r.Register(f); err != nil {
		return nil, err
	}
	return f, nil
}

// MustDefine is like Define but panics on error. It is meant for
// package-level registration at program start.
func (r *Registry) MustDefine(name string, fn any, params ...Param) *Function {
	f, err := r.Define(name, fn, params...)
	if err != nil {
		panic(err)
	}
	return f
}

// Register adds f to the registry. Names are unique and a function belongs to
// at most one registry.
func (r *Registry) Register(f *Function) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.registry != nil && f.registry != r {
		return fmt.Errorf("function %q belongs to another registry", f.name)
	}
	if _, ok := r.funcs[f.name]; ok {
		return fmt.Errorf("function %q is already registered", f.name)
	}
	r.funcs[f.name] = f
	f.registry = r
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (*Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFunction, name)
	}
	return f, nil
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
