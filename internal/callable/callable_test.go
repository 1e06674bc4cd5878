package callable

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ctxKey struct{}

func newGreet(t *testing.T) *Function {
	t.Helper()
	f, err := New("greet", func(name, greeting string, punct ...string) string {
		return greeting + " " + name + strings.Join(punct, "")
	}, Required("name"), Optional("greeting", "hello"), Required("punct"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func newSquare(t *testing.T) *Function {
	t.Helper()
	f, err := New("square", func(x int) int { return x * x }, Required("x"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestCallSquare(t *testing.T) {
	c := newSquare(t).Callable()

	got, err := c.Call(context.Background(), []any{2}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 4 {
		t.Errorf("square(2) = %v, want 4", got)
	}

	got, err = c.Call(context.Background(), nil, map[string]any{"x": 3})
	if err != nil {
		t.Fatalf("Call with keyword: %v", err)
	}
	if got != 9 {
		t.Errorf("square(x=3) = %v, want 9", got)
	}
}

func TestBindErrors(t *testing.T) {
	greet := newGreet(t).Callable()
	square := newSquare(t).Callable()

	tests := []struct {
		name    string
		c       Callable
		args    []any
		kwargs  map[string]any
		wantArg string
	}{
		{"missing required", greet, nil, nil, "name"},
		{"square without arguments", square, nil, nil, "x"},
		{"too many positional", square, []any{1, 2}, nil, "args[1]"},
		{"unexpected keyword", greet, []any{"bob"}, map[string]any{"nope": 1}, "nope"},
		{"multiple values", greet, []any{"bob"}, map[string]any{"name": "al"}, "name"},
		{"wrong type", greet, []any{"bob", 3}, nil, "greeting"},
		{"wrong variadic type", greet, []any{"bob", "hi", "!", 4}, nil, "punct[1]"},
		{"fractional integer", square, []any{2.5}, nil, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Bind(tt.args, tt.kwargs)
			var sigErr *SignatureError
			if !errors.As(err, &sigErr) {
				t.Fatalf("Bind error = %v, want *SignatureError", err)
			}
			if sigErr.Arg != tt.wantArg {
				t.Errorf("SignatureError.Arg = %q, want %q", sigErr.Arg, tt.wantArg)
			}
		})
	}
}

func TestBindRejectsOutOfRangeNumbers(t *testing.T) {
	f, err := New("narrow", func(i int8, u uint16, f float32) float64 {
		return float64(i) + float64(u) + float64(f)
	}, Required("i"), Required("u"), Required("f"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := f.Callable()

	tests := []struct {
		name    string
		args    []any
		wantArg string
	}{
		{"int too large for int8", []any{300, 0, 0}, "i"},
		{"int too small for int8", []any{-129, 0, 0}, "i"},
		{"uint64 too large for int8", []any{uint64(1 << 63), 0, 0}, "i"},
		{"float too large for int8", []any{1e20, 0, 0}, "i"},
		{"negative for uint16", []any{0, -1, 0}, "u"},
		{"negative float for uint16", []any{0, -2.0, 0}, "u"},
		{"too large for uint16", []any{0, 70000, 0}, "u"},
		{"float64 too large for float32", []any{0, 0, 1e300}, "f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sigErr *SignatureError
			if err := c.Bind(tt.args, nil); !errors.As(err, &sigErr) {
				t.Fatalf("Bind error = %v, want *SignatureError", err)
			}
			if sigErr.Arg != tt.wantArg {
				t.Errorf("SignatureError.Arg = %q, want %q", sigErr.Arg, tt.wantArg)
			}
		})
	}

	got, err := c.Call(context.Background(), []any{int64(-128), 65535.0, 1.5}, nil)
	if err != nil {
		t.Fatalf("Call at the range limits: %v", err)
	}
	if got != float64(-128+65535)+1.5 {
		t.Errorf("narrow(-128, 65535, 1.5) = %v", got)
	}
}

func TestCallDecodesTimesFromJSON(t *testing.T) {
	f, err := New("deadline", func(start time.Time, d time.Duration) time.Time {
		return start.Add(d)
	}, Required("start"), Required("d"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)

	// Marshal and unmarshal the arguments the way the queue transport does.
	data, err := json.Marshal(map[string]any{"start": start, "d": 90 * time.Second})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var kwargs map[string]any
	if err := json.Unmarshal(data, &kwargs); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	got, err := f.Callable().Call(context.Background(), nil, kwargs)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if want := start.Add(90 * time.Second); !got.(time.Time).Equal(want) {
		t.Errorf("deadline = %v, want %v", got, want)
	}

	got, err = f.Callable().Call(context.Background(), []any{"2024-03-01T12:00:00Z", "1m"}, nil)
	if err != nil {
		t.Fatalf("Call with string duration: %v", err)
	}
	if want := time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC); !got.(time.Time).Equal(want) {
		t.Errorf("deadline = %v, want %v", got, want)
	}

	var sigErr *SignatureError
	if err := f.Callable().Bind([]any{"yesterday", 0}, nil); !errors.As(err, &sigErr) || sigErr.Arg != "start" {
		t.Errorf("Bind with a bad time = %v, want SignatureError for start", err)
	}
}

func TestCallDefaultsAndVariadic(t *testing.T) {
	greet := newGreet(t).Callable()

	tests := []struct {
		args   []any
		kwargs map[string]any
		want   string
	}{
		{[]any{"bob"}, nil, "hello bob"},
		{[]any{"bob", "hi"}, nil, "hi bob"},
		{[]any{"bob", "hi", "!", "?"}, nil, "hi bob!?"},
		{nil, map[string]any{"name": "al", "greeting": "hey"}, "hey al"},
	}

	for _, tt := range tests {
		got, err := greet.Call(context.Background(), tt.args, tt.kwargs)
		if err != nil {
			t.Fatalf("Call(%v, %v): %v", tt.args, tt.kwargs, err)
		}
		if got != tt.want {
			t.Errorf("Call(%v, %v) = %q, want %q", tt.args, tt.kwargs, got, tt.want)
		}
	}
}

func TestCallCoercesWireValues(t *testing.T) {
	f, err := New("sum", func(xs []int, p point) int {
		total := p.X + p.Y
		for _, x := range xs {
			total += x
		}
		return total
	}, Required("xs"), Required("p"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	args := []any{[]any{1.0, 2.0}, map[string]any{"x": 3.0, "y": 4.0}}
	got, err := f.Callable().Call(context.Background(), args, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 10 {
		t.Errorf("sum = %v, want 10", got)
	}
}

func TestCallReturnsFunctionErrorUnchanged(t *testing.T) {
	errBoom := errors.New("boom")
	f, err := New("fail", func() (int, error) { return 0, errBoom })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := f.Callable().Call(context.Background(), nil, nil)
	if err != errBoom {
		t.Fatalf("Call error = %v, want the function's own error", err)
	}
	if got != nil {
		t.Errorf("result = %v, want nil", got)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	f, err := New("explode", func() { panic("bad") })
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = f.Callable().Call(context.Background(), nil, nil)
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Call error = %v, want *PanicError", err)
	}
	if panicErr.Value != "bad" {
		t.Errorf("panic value = %v, want %q", panicErr.Value, "bad")
	}
	if len(panicErr.Stack) == 0 {
		t.Error("expected a stack trace")
	}
}

func TestCallPassesContext(t *testing.T) {
	f, err := New("lookup", func(ctx context.Context, suffix string) string {
		return ctx.Value(ctxKey{}).(string) + suffix
	}, Required("suffix"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := len(f.Params()); got != 1 {
		t.Fatalf("len(Params()) = %d, want 1 (context is not a parameter)", got)
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "ctx-")
	got, err := f.Callable().Call(ctx, []any{"value"}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "ctx-value" {
		t.Errorf("Call = %q, want %q", got, "ctx-value")
	}
}

func TestCapture(t *testing.T) {
	mul, err := New("mul", func(factor, x int) int { return factor * x }, Required("factor"), Required("x"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	c, err := mul.Capture(3)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	got, err := c.Call(context.Background(), []any{4}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 12 {
		t.Errorf("mul(3)(4) = %v, want 12", got)
	}

	var sigErr *SignatureError
	if err := c.Bind(nil, map[string]any{"factor": 2, "x": 1}); !errors.As(err, &sigErr) || sigErr.Arg != "factor" {
		t.Errorf("Bind over captured argument = %v, want SignatureError for factor", err)
	}
	if _, err := mul.Capture(1, 2, 3); !errors.As(err, &sigErr) {
		t.Errorf("Capture(1, 2, 3) = %v, want SignatureError", err)
	}
	if _, err := mul.Capture("three"); !errors.As(err, &sigErr) {
		t.Errorf("Capture(\"three\") = %v, want SignatureError", err)
	}

	captured := c.Captured()
	captured[0] = 100
	if c.Captured()[0] != 3 {
		t.Error("Captured() must return a copy")
	}
}

func TestNewDefaultParamNames(t *testing.T) {
	f, err := New("add", func(a, b int) int { return a + b })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []Param{Required("arg0"), Required("arg1")}
	if diff := cmp.Diff(want, f.Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		fn     any
		params []Param
	}{
		{"not a function", 42, nil},
		{"nil function", (func())(nil), nil},
		{"param count mismatch", func(a, b int) {}, []Param{Required("a")}},
		{"required after optional", func(a, b int) {}, []Param{Optional("a", 1), Required("b")}},
		{"bad default", func(a int) {}, []Param{Optional("a", "one")}},
		{"duplicate names", func(a, b int) {}, []Param{Required("a"), Required("a")}},
		{"unnamed parameter", func(a int) {}, []Param{{}}},
		{"variadic default", func(a ...int) {}, []Param{Optional("a", 1)}},
		{"second result not error", func() (int, int) { return 0, 0 }, nil},
		{"too many results", func() (int, int, error) { return 0, 0, nil }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New("f", tt.fn, tt.params...); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

func TestAs(t *testing.T) {
	n, err := As[int](float64(4))
	if err != nil || n != 4 {
		t.Errorf("As[int](4.0) = %v, %v; want 4, nil", n, err)
	}

	big, err := As[int64](json.Number("9007199254740993"))
	if err != nil || big != 9007199254740993 {
		t.Errorf("As[int64](json.Number) = %v, %v; want 9007199254740993, nil", big, err)
	}
	if _, err := As[uint8](json.Number("256")); err == nil {
		t.Error("As[uint8](256) expected an overflow error")
	}

	s, err := As[[]string]([]any{"a", "b"})
	if err != nil {
		t.Fatalf("As[[]string]: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, s); diff != "" {
		t.Errorf("As[[]string] mismatch (-want +got):\n%s", diff)
	}

	p, err := As[point](map[string]any{"x": 1, "y": 2})
	if err != nil || p != (point{X: 1, Y: 2}) {
		t.Errorf("As[point] = %+v, %v", p, err)
	}

	if _, err := As[int]("x"); err == nil {
		t.Error("As[int](\"x\") expected error")
	}

	v, err := As[any](nil)
	if err != nil || v != nil {
		t.Errorf("As[any](nil) = %v, %v; want nil, nil", v, err)
	}
}
