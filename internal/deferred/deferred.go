// Package deferred captures a call to a registered function so that it can be
// executed later, and possibly elsewhere, through an execution backend.
//
// Arguments are validated when they are supplied: a Deferred that exists is
// known to bind cleanly to its function's parameters.
package deferred

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/backend/local"
	"github.com/alexpearce/distribute-challenge/internal/callable"
	"github.com/alexpearce/distribute-challenge/internal/codec"
)

// Deferred is a callable with bound arguments. It is immutable and safe to
// compute repeatedly or concurrently.
type Deferred struct {
	c      callable.Callable
	args   []any
	kwargs map[string]any
	ser    codec.Serializer
}

// Option configures a Deferred.
type Option func(*Deferred)

// WithSerializer overrides the serializer used to encode the callable. The
// default is msgpack over the function's own registry.
func WithSerializer(ser codec.Serializer) Option {
	return func(d *Deferred) { d.ser = ser }
}

// New binds args and kwargs to c. A *callable.SignatureError is returned when
// they do not fit the function's parameters.
func New(c callable.Callable, args []any, kwargs map[string]any, opts ...Option) (*Deferred, error) {
	if err := c.Bind(args, kwargs); err != nil {
		return nil, err
	}
	d := &Deferred{
		c:      c,
		args:   slices.Clone(args),
		kwargs: maps.Clone(kwargs),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ser == nil {
		if reg := c.Function().Registry(); reg != nil {
			d.ser = codec.NewMsgpack(reg)
		}
	}
	return d, nil
}

// Callable returns the wrapped callable.
func (d *Deferred) Callable() callable.Callable { return d.c }

// Args returns a copy of the positional arguments.
func (d *Deferred) Args() []any { return slices.Clone(d.args) }

// Kwargs returns a copy of the keyword arguments.
func (d *Deferred) Kwargs() map[string]any { return maps.Clone(d.kwargs) }

// Compute serializes the callable and runs it on b with the bound arguments,
// returning the backend's result unchanged. A nil b runs the call locally.
// Each call invokes the backend exactly once.
func (d *Deferred) Compute(ctx context.Context, b backend.Backend) (any, error) {
	if d.ser == nil {
		return nil, &codec.SerializationError{Func: d.c.Name(), Err: errors.New("function is not registered")}
	}
	payload, err := d.ser.Serialize(d.c)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = local.New(d.ser)
	}
	return b.Run(ctx, payload, slices.Clone(d.args), maps.Clone(d.kwargs))
}

// ComputeAs computes d and converts the result to T. Results that crossed a
// process boundary arrive as generic values and are decoded into T.
func ComputeAs[T any](ctx context.Context, d *Deferred, b backend.Backend) (T, error) {
	v, err := d.Compute(ctx, b)
	if err != nil {
		var zero T
		return zero, err
	}
	return callable.As[T](v)
}
