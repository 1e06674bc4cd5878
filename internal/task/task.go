// Package task defines the messages exchanged between callers and workers and
// the handlers workers use to execute them.
package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/callable"
	"github.com/alexpearce/distribute-challenge/internal/codec"
	"github.com/alexpearce/distribute-challenge/internal/model"
)

// KindRunFunction executes a serialized callable with the message arguments.
const KindRunFunction = "run_function"

// Failure kinds carried in an Outcome.
const (
	FailureTask            = "task"
	FailureDeserialization = "deserialization"
	FailureSignature       = "signature"
	FailureRejected        = "rejected"
)

// Message is the unit of work submitted to a queue.
type Message struct {
	ID      string         `json:"id,omitempty"`
	Kind    string         `json:"kind"`
	Payload []byte         `json:"payload,omitempty"`
	Args    []any          `json:"args,omitempty"`
	Kwargs  map[string]any `json:"kwargs,omitempty"`
}

// UnmarshalJSON decodes m keeping argument numbers exact: integers become
// int64 (uint64 above that range) and everything else float64.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := decodeNumbers(data, &p); err != nil {
		return err
	}
	for i, a := range p.Args {
		p.Args[i] = exactNumbers(a)
	}
	for k, v := range p.Kwargs {
		p.Kwargs[k] = exactNumbers(v)
	}
	*m = Message(p)
	return nil
}

// Outcome is what a worker reports after executing a Message. Exactly one of
// Value and Failure is meaningful.
type Outcome struct {
	Value   any      `json:"value,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// UnmarshalJSON decodes o with the same number handling as Message.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	type plain Outcome
	var p plain
	if err := decodeNumbers(data, &p); err != nil {
		return err
	}
	p.Value = exactNumbers(p.Value)
	*o = Outcome(p)
	return nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// exactNumbers replaces every json.Number in v with an int64, uint64 or
// float64, preferring the integer types when the literal is an integer.
func exactNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return u
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = exactNumbers(x[i])
		}
	case map[string]any:
		for k, e := range x {
			x[k] = exactNumbers(e)
		}
	}
	return v
}

// Failure describes why a task did not produce a value.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Func    string `json:"func,omitempty"`
	Arg     string `json:"arg,omitempty"`
}

// Result returns the outcome as a value or an error.
func (o Outcome) Result(taskID string) (any, error) {
	if o.Failure != nil {
		return nil, o.Failure.Err(taskID)
	}
	return o.Value, nil
}

// Err rebuilds the error a Failure was classified from. A callable's own
// error becomes a *backend.TaskError since only its message crossed the wire.
func (f *Failure) Err(taskID string) error {
	switch f.Kind {
	case FailureDeserialization:
		return &codec.DeserializationError{Err: errors.New(f.Message)}
	case FailureSignature:
		return &callable.SignatureError{Func: f.Func, Arg: f.Arg, Reason: f.Message}
	case FailureRejected:
		return &backend.TransportError{Op: "execute " + taskID, Err: errors.New(f.Message)}
	default:
		return &backend.TaskError{TaskID: taskID, Message: f.Message}
	}
}

// Classify turns an execution error into a Failure.
func Classify(err error) *Failure {
	var (
		deErr  *codec.DeserializationError
		sigErr *callable.SignatureError
	)
	switch {
	case errors.As(err, &deErr):
		return &Failure{Kind: FailureDeserialization, Message: deErr.Err.Error()}
	case errors.As(err, &sigErr):
		return &Failure{Kind: FailureSignature, Message: sigErr.Reason, Func: sigErr.Func, Arg: sigErr.Arg}
	default:
		return &Failure{Kind: FailureTask, Message: err.Error()}
	}
}

// DecodeMessage returns the message a queued task was submitted with.
func DecodeMessage(t *model.Task) (Message, error) {
	var msg Message
	if err := json.Unmarshal(t.Message, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message of task %s: %w", t.ID, err)
	}
	return msg, nil
}
