package bench

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/deferred"
	"github.com/alexpearce/distribute-challenge/internal/monitor"
)

// DefaultCoolDown is how long a run keeps monitoring after the last task so
// the smoothed rate can decay back towards zero.
const DefaultCoolDown = 5 * time.Second

// Config describes one benchmark run.
type Config struct {
	// Workers labels the run with the number of workers serving it.
	Workers int
	// Tasks is the number of computations submitted.
	Tasks int
	// Concurrency caps computations in flight. Zero submits all at once.
	Concurrency int
	CoolDown    time.Duration
	Monitor     monitor.Options
	Logger      *slog.Logger
}

// Result is the outcome of one benchmark run.
type Result struct {
	Workers  int
	Tasks    int
	Failed   int
	Elapsed  time.Duration
	Samples  []monitor.Sample
	FirstErr error
}

// Peak returns the highest smoothed rate observed.
func (r *Result) Peak() float64 {
	var peak float64
	for _, s := range r.Samples {
		peak = max(peak, s.Rate)
	}
	return peak
}

// Run computes d cfg.Tasks times through b while a monitor follows src. It
// blocks until every computation has finished and the cool-down has passed.
// Failed computations are counted, not returned; an error means the run
// itself could not proceed.
func Run(ctx context.Context, b backend.Backend, src monitor.EventSource, d *deferred.Deferred, cfg Config) (*Result, error) {
	if cfg.Tasks <= 0 {
		return nil, fmt.Errorf("bench: tasks must be positive, got %d", cfg.Tasks)
	}
	if cfg.CoolDown == 0 {
		cfg.CoolDown = DefaultCoolDown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Monitor.Logger == nil {
		cfg.Monitor.Logger = cfg.Logger
	}
	logger := cfg.Logger.With("workers", cfg.Workers, "tasks", cfg.Tasks, "backend", b.Capabilities().Name)

	mon, err := monitor.Start(ctx, src, cfg.Monitor)
	if err != nil {
		return nil, fmt.Errorf("bench: %w", err)
	}
	// Stop is idempotent; this only matters on early return.
	defer mon.Stop()

	logger.Info("benchmark run started")
	start := time.Now()

	var (
		failed   atomic.Int64
		firstErr atomic.Pointer[error]
	)
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}
	for range cfg.Tasks {
		g.Go(func() error {
			if _, err := d.Compute(gctx, b); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed.Add(1)
				firstErr.CompareAndSwap(nil, &err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bench: %w", err)
	}
	elapsed := time.Since(start)

	logger.Info("benchmark load finished", "elapsed", elapsed, "failed", failed.Load(), "cool_down", cfg.CoolDown)

	timer := time.NewTimer(cfg.CoolDown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, fmt.Errorf("bench: cool-down: %w", ctx.Err())
	}

	res := &Result{
		Workers: cfg.Workers,
		Tasks:   cfg.Tasks,
		Failed:  int(failed.Load()),
		Elapsed: elapsed,
		Samples: mon.Stop(),
	}
	if p := firstErr.Load(); p != nil {
		res.FirstErr = *p
	}
	if res.Failed == res.Tasks {
		return res, fmt.Errorf("bench: every computation failed: %w", res.FirstErr)
	}
	return res, nil
}
