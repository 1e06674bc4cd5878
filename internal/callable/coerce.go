package callable

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// As converts v to T. Values that already have type T are returned as-is;
// generic values produced by a wire codec (float64 numbers, []any, map[string]any)
// are decoded into T.
func As[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	rv, err := coerce(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	out, _ := rv.Interface().(T)
	return out, nil
}

// coerce returns a value of type t holding v.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}

	if n, ok := v.(json.Number); ok {
		v = fromJSONNumber(n)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if isFloat(rv.Kind()) && isInteger(t.Kind()) {
		if f := rv.Float(); f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("cannot use %v as %s without truncation", f, t)
		}
	}
	if err := checkRange(rv, t); err != nil {
		return reflect.Value{}, err
	}

	out := reflect.New(t)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out.Interface(),
		TagName: "json",
		// Times and durations cross JSON as strings.
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return reflect.Value{}, fmt.Errorf("build decoder for %s: %w", t, err)
	}
	if err := dec.Decode(v); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s: %w", v, t, err)
	}
	return out.Elem(), nil
}

// checkRange rejects numbers that do not fit the numeric type t.
func checkRange(rv reflect.Value, t reflect.Type) error {
	target := reflect.New(t).Elem()
	tooBig := func() error { return fmt.Errorf("%v overflows %s", rv.Interface(), t) }

	switch {
	case isSigned(t.Kind()):
		switch {
		case isSigned(rv.Kind()):
			if target.OverflowInt(rv.Int()) {
				return tooBig()
			}
		case isUnsigned(rv.Kind()):
			if u := rv.Uint(); u > math.MaxInt64 || target.OverflowInt(int64(u)) {
				return tooBig()
			}
		case isFloat(rv.Kind()):
			if f := rv.Float(); f < math.MinInt64 || f >= math.MaxInt64 || target.OverflowInt(int64(f)) {
				return tooBig()
			}
		}
	case isUnsigned(t.Kind()):
		switch {
		case isSigned(rv.Kind()):
			if i := rv.Int(); i < 0 || target.OverflowUint(uint64(i)) {
				return fmt.Errorf("%v overflows %s", i, t)
			}
		case isUnsigned(rv.Kind()):
			if target.OverflowUint(rv.Uint()) {
				return tooBig()
			}
		case isFloat(rv.Kind()):
			if f := rv.Float(); f < 0 || f >= math.MaxUint64 || target.OverflowUint(uint64(f)) {
				return tooBig()
			}
		}
	case isFloat(t.Kind()):
		if isFloat(rv.Kind()) && target.OverflowFloat(rv.Float()) {
			return tooBig()
		}
	}
	return nil
}

// fromJSONNumber converts n to an int64 when it is an integer literal in
// range and to a float64 otherwise.
func fromJSONNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isInteger(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k)
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
