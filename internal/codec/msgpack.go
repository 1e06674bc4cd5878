package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/alexpearce/distribute-challenge/internal/callable"
)

// payloadVersion is bumped whenever the envelope layout changes.
const payloadVersion = 1

type envelope struct {
	Version  int    `json:"v"`
	Func     string `json:"fn"`
	Captured []any  `json:"cap,omitempty"`
}

// Msgpack serializes callables as a msgpack envelope naming the function and
// carrying its captured values.
type Msgpack struct {
	reg *callable.Registry
}

// NewMsgpack returns a serializer that resolves functions through reg.
func NewMsgpack(reg *callable.Registry) *Msgpack {
	return &Msgpack{reg: reg}
}

func (m *Msgpack) Serialize(c callable.Callable) ([]byte, error) {
	f := c.Function()
	if f == nil {
		return nil, &SerializationError{Err: errors.New("callable has no function")}
	}
	registered, err := m.reg.Lookup(f.Name())
	if err != nil {
		return nil, &SerializationError{Func: f.Name(), Err: err}
	}
	if registered != f {
		return nil, &SerializationError{Func: f.Name(), Err: fmt.Errorf("%w %q in this registry", callable.ErrUnknownFunction, f.Name())}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	env := envelope{Version: payloadVersion, Func: f.Name(), Captured: c.Captured()}
	if err := enc.Encode(&env); err != nil {
		return nil, &SerializationError{Func: f.Name(), Err: err}
	}
	return buf.Bytes(), nil
}

func (m *Msgpack) Deserialize(payload []byte) (callable.Callable, error) {
	if len(payload) == 0 {
		return callable.Callable{}, &DeserializationError{Err: errors.New("empty payload")}
	}

	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return callable.Callable{}, &DeserializationError{Err: err}
	}
	if env.Version != payloadVersion {
		return callable.Callable{}, &DeserializationError{Err: fmt.Errorf("unsupported payload version %d", env.Version)}
	}

	f, err := m.reg.Lookup(env.Func)
	if err != nil {
		return callable.Callable{}, &DeserializationError{Err: err}
	}
	c, err := f.Capture(env.Captured...)
	if err != nil {
		return callable.Callable{}, &DeserializationError{Err: err}
	}
	return c, nil
}
