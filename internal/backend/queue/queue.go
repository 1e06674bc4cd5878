// Package queue runs serialized callables on remote workers by way of a
// message queue transport.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

// Transport carries messages to workers and results back. Implementations
// block in AwaitResult until the task finishes or ctx ends.
type Transport interface {
	Submit(ctx context.Context, queue string, msg task.Message) (string, error)
	AwaitResult(ctx context.Context, taskID string) (task.Outcome, error)
}

// Options configures a queue backend.
type Options struct {
	// Queue is the queue messages are submitted to.
	Queue string
	// Sync executes messages in-process with the registered handlers instead
	// of sending them through the transport. Intended for tests.
	Sync bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Backend submits run_function messages and waits for their outcome.
type Backend struct {
	transport Transport
	handlers  *task.Handlers
	queue     string
	sync      bool
	logger    *slog.Logger
}

// New creates a queue backend. transport may be nil when opts.Sync is set.
func New(transport Transport, handlers *task.Handlers, opts Options) (*Backend, error) {
	if handlers == nil {
		return nil, errors.New("queue backend: handlers are required")
	}
	if transport == nil && !opts.Sync {
		return nil, errors.New("queue backend: transport is required unless running synchronously")
	}
	if opts.Queue == "" {
		return nil, errors.New("queue backend: queue name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		transport: transport,
		handlers:  handlers,
		queue:     opts.Queue,
		sync:      opts.Sync,
		logger:    logger,
	}, nil
}

func (b *Backend) Run(ctx context.Context, payload []byte, args []any, kwargs map[string]any) (any, error) {
	msg := task.Message{
		Kind:    task.KindRunFunction,
		Payload: payload,
		Args:    slices.Clone(args),
		Kwargs:  maps.Clone(kwargs),
	}

	if b.sync {
		fn, ok := b.handlers.Lookup(msg.Kind)
		if !ok {
			return nil, &backend.TransportError{Op: "execute", Err: errors.New("no handler for task kind " + msg.Kind)}
		}
		return fn(ctx, msg)
	}

	id, err := b.transport.Submit(ctx, b.queue, msg)
	if err != nil {
		return nil, asTransportError("submit", err)
	}
	b.logger.Debug("task submitted", "task_id", id, "queue", b.queue)

	out, err := b.transport.AwaitResult(ctx, id)
	if err != nil {
		return nil, asTransportError("await "+id, err)
	}
	return out.Result(id)
}

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: backend.NameQueue, Remote: !b.sync, Synchronous: b.sync}
}

// asTransportError wraps err unless it is already a transport error or a
// context error from the caller.
func asTransportError(op string, err error) error {
	var trErr *backend.TransportError
	if errors.As(err, &trErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &backend.TransportError{Op: op, Err: err}
}
