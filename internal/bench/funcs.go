// Package bench loads a backend with deferred computations while a
// throughput monitor records how fast they complete.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/alexpearce/distribute-challenge/internal/callable"
)

// Names of the benchmark functions in a registry prepared by Register.
const (
	FuncBusy   = "bench.busy"
	FuncSquare = "bench.square"
)

// Register defines the benchmark functions in reg. Clients and workers must
// both call it so payloads resolve on either side.
func Register(reg *callable.Registry) error {
	if _, err := reg.Define(FuncBusy, Busy, callable.Optional("runtime", 1.0)); err != nil {
		return fmt.Errorf("register benchmark functions: %w", err)
	}
	if _, err := reg.Define(FuncSquare, Square, callable.Required("x")); err != nil {
		return fmt.Errorf("register benchmark functions: %w", err)
	}
	return nil
}

// Busy keeps one CPU busy for runtime seconds and returns how many rounds of
// work it completed.
func Busy(ctx context.Context, runtime float64) (int, error) {
	deadline := time.Now().Add(time.Duration(runtime * float64(time.Second)))
	rounds := 0
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		fib(20)
		rounds++
	}
	return rounds, nil
}

func Square(x int) int { return x * x }

func fib(n int) int {
	if n < 2 {
		return n
	}
	return fib(n-1) + fib(n-2)
}
