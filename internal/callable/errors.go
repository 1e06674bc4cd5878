package callable

import (
	"errors"
	"fmt"
)

// ErrUnknownFunction is returned when a registry has no function by the requested name.
var ErrUnknownFunction = errors.New("unknown function")

// SignatureError reports arguments that do not fit a function's parameter list.
type SignatureError struct {
	Func   string
	Arg    string
	Reason string
}

func (e *SignatureError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("call %s: %s", e.Func, e.Reason)
	}
	return fmt.Sprintf("call %s: %s: %s", e.Func, e.Arg, e.Reason)
}

// PanicError is returned when a called function panics.
type PanicError struct {
	Func  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("call %s: panic: %v", e.Func, e.Value)
}
