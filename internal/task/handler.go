package task

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alexpearce/distribute-challenge/internal/codec"
)

// Handler executes one kind of Message.
type Handler func(ctx context.Context, msg Message) (any, error)

// Handlers maps task kinds to the handlers that execute them.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlers creates an empty handler registry.
func NewHandlers() *Handlers {
	return &Handlers{
		handlers: make(map[string]Handler),
	}
}

// StandardHandlers returns a registry with the run_function handler backed
// by ser.
func StandardHandlers(ser codec.Serializer) *Handlers {
	h := NewHandlers()
	h.handlers[KindRunFunction] = RunFunction(ser)
	return h
}

// Register adds a handler for kind.
func (h *Handlers) Register(kind string, fn Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.handlers[kind]; ok {
		return fmt.Errorf("handler for task kind %q is already registered", kind)
	}
	h.handlers[kind] = fn
	return nil
}

// Lookup returns the handler registered for kind.
func (h *Handlers) Lookup(kind string) (Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[kind]
	return fn, ok
}

// Kinds returns the registered task kinds in sorted order.
func (h *Handlers) Kinds() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	kinds := make([]string, 0, len(h.handlers))
	for kind := range h.handlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// RunFunction returns the handler for KindRunFunction: it decodes the
// payload with ser and calls it with the message arguments.
func RunFunction(ser codec.Serializer) Handler {
	return func(ctx context.Context, msg Message) (any, error) {
		c, err := ser.Deserialize(msg.Payload)
		if err != nil {
			return nil, err
		}
		return c.Call(ctx, msg.Args, msg.Kwargs)
	}
}

// Execute runs msg through the matching handler and reports the outcome.
func Execute(ctx context.Context, handlers *Handlers, msg Message) Outcome {
	fn, ok := handlers.Lookup(msg.Kind)
	if !ok {
		return Outcome{Failure: &Failure{
			Kind:    FailureRejected,
			Message: fmt.Sprintf("no handler for task kind %q", msg.Kind),
		}}
	}
	v, err := fn(ctx, msg)
	if err != nil {
		return Outcome{Failure: Classify(err)}
	}
	return Outcome{Value: v}
}
