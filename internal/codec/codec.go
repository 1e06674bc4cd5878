// Package codec turns callables into opaque bytes and back.
package codec

import (
	"fmt"

	"github.com/alexpearce/distribute-challenge/internal/callable"
)

// Serializer converts a callable, including its captured values, to bytes
// that any process with an equivalent function registry can decode.
type Serializer interface {
	Serialize(c callable.Callable) ([]byte, error)
	Deserialize(payload []byte) (callable.Callable, error)
}

// SerializationError is returned when a callable cannot be encoded, either
// because its function is not registered with the serializer's registry or
// because a captured value has no wire representation.
type SerializationError struct {
	Func string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Func, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError is returned when a payload cannot be turned back into
// a callable.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize payload: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }
