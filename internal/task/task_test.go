package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/callable"
	"github.com/alexpearce/distribute-challenge/internal/codec"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

func newSerializer(t *testing.T) (*callable.Registry, codec.Serializer) {
	t.Helper()
	reg := callable.NewRegistry()
	reg.MustDefine("add", func(a, b int) int { return a + b }, callable.Required("a"), callable.Optional("b", 1))
	reg.MustDefine("fail", func() error { return errors.New("kaboom") })
	return reg, codec.NewMsgpack(reg)
}

func message(t *testing.T, reg *callable.Registry, ser codec.Serializer, name string, args ...any) task.Message {
	t.Helper()
	f, err := reg.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	payload, err := ser.Serialize(f.Callable())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return task.Message{Kind: task.KindRunFunction, Payload: payload, Args: args}
}

func TestExecuteRunFunction(t *testing.T) {
	reg, ser := newSerializer(t)
	handlers := task.StandardHandlers(ser)

	out := task.Execute(context.Background(), handlers, message(t, reg, ser, "add", 2, 3))
	if out.Failure != nil {
		t.Fatalf("unexpected failure: %+v", out.Failure)
	}
	if out.Value != 5 {
		t.Errorf("Value = %v, want 5", out.Value)
	}
}

func TestExecuteFailures(t *testing.T) {
	reg, ser := newSerializer(t)
	handlers := task.StandardHandlers(ser)

	tests := []struct {
		name     string
		msg      task.Message
		wantKind string
	}{
		{"callable error", message(t, reg, ser, "fail"), task.FailureTask},
		{"bad payload", task.Message{Kind: task.KindRunFunction, Payload: []byte{0xc1}}, task.FailureDeserialization},
		{"bad arguments", message(t, reg, ser, "add"), task.FailureSignature},
		{"unknown kind", task.Message{Kind: "reticulate"}, task.FailureRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := task.Execute(context.Background(), handlers, tt.msg)
			if out.Failure == nil {
				t.Fatalf("expected failure, got value %v", out.Value)
			}
			if out.Failure.Kind != tt.wantKind {
				t.Errorf("Failure.Kind = %q, want %q", out.Failure.Kind, tt.wantKind)
			}
		})
	}
}

func TestFailureErrRebuildsTypes(t *testing.T) {
	var taskErr *backend.TaskError
	_, err := task.Outcome{Failure: &task.Failure{Kind: task.FailureTask, Message: "kaboom"}}.Result("t1")
	if !errors.As(err, &taskErr) || taskErr.Message != "kaboom" || taskErr.TaskID != "t1" {
		t.Errorf("task failure = %v, want TaskError{t1, kaboom}", err)
	}

	var deErr *codec.DeserializationError
	if err := (&task.Failure{Kind: task.FailureDeserialization, Message: "bad"}).Err("t1"); !errors.As(err, &deErr) {
		t.Errorf("deserialization failure = %v, want *DeserializationError", err)
	}

	var sigErr *callable.SignatureError
	err = (&task.Failure{Kind: task.FailureSignature, Message: "missing required argument", Func: "add", Arg: "a"}).Err("t1")
	if !errors.As(err, &sigErr) {
		t.Fatalf("signature failure = %v, want *SignatureError", err)
	}
	if sigErr.Func != "add" || sigErr.Arg != "a" {
		t.Errorf("SignatureError = %+v, want func add arg a", sigErr)
	}

	var trErr *backend.TransportError
	if err := (&task.Failure{Kind: task.FailureRejected, Message: "no handler"}).Err("t1"); !errors.As(err, &trErr) {
		t.Errorf("rejected failure = %v, want *TransportError", err)
	}
}

func TestClassifyKeepsSignatureDetails(t *testing.T) {
	f := task.Classify(&callable.SignatureError{Func: "add", Arg: "b", Reason: "bad type"})
	want := &task.Failure{Kind: task.FailureSignature, Message: "bad type", Func: "add", Arg: "b"}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("Classify mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageJSONCarriesPayloadBytes(t *testing.T) {
	msg := task.Message{Kind: task.KindRunFunction, Payload: []byte{0x00, 0xff, 0x10}, Args: []any{"x"}}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got task.Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONKeepsNumbersExact(t *testing.T) {
	data := []byte(`{"kind":"run_function","args":[9007199254740993,18446744073709551615,1.5,[2,{"n":-3}]],"kwargs":{"k":4.0}}`)

	var msg task.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := task.Message{
		Kind:   task.KindRunFunction,
		Args:   []any{int64(9007199254740993), uint64(18446744073709551615), 1.5, []any{int64(2), map[string]any{"n": int64(-3)}}},
		Kwargs: map[string]any{"k": 4.0},
	}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}

	var out task.Outcome
	if err := json.Unmarshal([]byte(`{"value":-9007199254740993}`), &out); err != nil {
		t.Fatalf("Unmarshal outcome: %v", err)
	}
	if out.Value != int64(-9007199254740993) {
		t.Errorf("Value = %v (%T), want -9007199254740993", out.Value, out.Value)
	}
}

func TestHandlersRegistry(t *testing.T) {
	h := task.NewHandlers()
	noop := func(context.Context, task.Message) (any, error) { return nil, nil }

	if err := h.Register("b", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := h.Register("a", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := h.Register("a", noop); err == nil {
		t.Error("expected error for duplicate kind, got nil")
	}
	if _, ok := h.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported a handler")
	}
	if diff := cmp.Diff([]string{"a", "b"}, h.Kinds()); diff != "" {
		t.Errorf("Kinds() mismatch (-want +got):\n%s", diff)
	}
}
