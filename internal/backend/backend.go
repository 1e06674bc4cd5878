package backend

import "context"

// Backend names understood by the registry.
const (
	NameLocal = "local"
	NameQueue = "queue"
	NameAuto  = "auto"
)

// Backend executes a serialized callable with the given arguments.
type Backend interface {
	// Run blocks until the computation finishes and returns its result.
	// The context carries cancellation for the wait; backends never retry.
	Run(ctx context.Context, payload []byte, args []any, kwargs map[string]any) (any, error)

	// Capabilities reports how the backend executes work.
	Capabilities() Capabilities
}

// Capabilities describes a backend.
type Capabilities struct {
	Name string `json:"name"`
	// Remote is true when computations leave the calling process.
	Remote bool `json:"remote"`
	// Synchronous is true when Run executes on the calling goroutine.
	Synchronous bool `json:"synchronous"`
}
