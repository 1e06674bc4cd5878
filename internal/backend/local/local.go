// Package local runs serialized callables in the calling goroutine.
package local

import (
	"context"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/codec"
)

// Backend deserializes a payload and calls it in-process. Errors from the
// callable are returned unchanged.
type Backend struct {
	ser codec.Serializer
}

// New returns a local backend that decodes payloads with ser.
func New(ser codec.Serializer) *Backend {
	return &Backend{ser: ser}
}

func (b *Backend) Run(ctx context.Context, payload []byte, args []any, kwargs map[string]any) (any, error) {
	c, err := b.ser.Deserialize(payload)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, args, kwargs)
}

func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{Name: backend.NameLocal, Synchronous: true}
}
