package deferred

import "github.com/alexpearce/distribute-challenge/internal/callable"

// Func produces Deferred values for one callable.
type Func struct {
	c    callable.Callable
	opts []Option
}

// Wrap returns a Func whose Call methods build Deferred values for c.
func Wrap(c callable.Callable, opts ...Option) Func {
	return Func{c: c, opts: opts}
}

// Call binds positional arguments.
func (f Func) Call(args ...any) (*Deferred, error) {
	return New(f.c, args, nil, f.opts...)
}

// CallKw binds keyword and positional arguments.
func (f Func) CallKw(kwargs map[string]any, args ...any) (*Deferred, error) {
	return New(f.c, args, kwargs, f.opts...)
}
