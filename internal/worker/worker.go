// Package worker executes queued tasks. A Worker runs a fixed number of
// loops that each claim a task from a Source, run it through the task
// handlers and report the outcome back.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexpearce/distribute-challenge/internal/backend"
	"github.com/alexpearce/distribute-challenge/internal/model"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

const (
	// DefaultRetryDelay is how long a loop backs off after the source fails.
	DefaultRetryDelay = time.Second

	// reportAttempts bounds how often an outcome report is sent before the
	// outcome is given up on.
	reportAttempts = 5

	resultSucceeded = "succeeded"
)

// Source hands out tasks and records their outcomes. Claim blocks until a
// task is available or ctx ends.
type Source interface {
	Claim(ctx context.Context, queue, workerID string) (*model.Task, error)
	Complete(ctx context.Context, taskID, workerID string, out task.Outcome) (*model.Task, error)
}

// Options configures a Worker.
type Options struct {
	Queue string
	// Concurrency is the number of tasks executed at once. Defaults to 1.
	Concurrency int
	// ID prefixes the worker IDs the loops claim with. Defaults to the host
	// name and process ID.
	ID         string
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Worker pulls tasks from a Source and executes them.
type Worker struct {
	src      Source
	handlers *task.Handlers
	queue    string
	n        int
	id       string
	retry    time.Duration
	logger   *slog.Logger
}

// New creates a worker for opts.Queue.
func New(src Source, handlers *task.Handlers, opts Options) (*Worker, error) {
	if src == nil {
		return nil, errors.New("new worker: source is required")
	}
	if handlers == nil {
		return nil, errors.New("new worker: handlers are required")
	}
	if opts.Queue == "" {
		return nil, errors.New("new worker: queue is required")
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 1
	}
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("new worker: concurrency must be positive, got %d", opts.Concurrency)
	}
	if opts.ID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		opts.ID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Worker{
		src:      src,
		handlers: handlers,
		queue:    opts.Queue,
		n:        opts.Concurrency,
		id:       opts.ID,
		retry:    opts.RetryDelay,
		logger:   opts.Logger.With("queue", opts.Queue),
	}, nil
}

// Run executes tasks until ctx is cancelled. A task that has been claimed is
// always finished and reported, even if ctx ends while it runs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "worker_id", w.id, "concurrency", w.n, "kinds", w.handlers.Kinds())

	g, gctx := errgroup.WithContext(ctx)
	for slot := range w.n {
		id := fmt.Sprintf("%s-%d", w.id, slot)
		g.Go(func() error { return w.loop(gctx, id) })
	}
	err := g.Wait()

	w.logger.Info("worker stopped", "worker_id", w.id)
	return err
}

func (w *Worker) loop(ctx context.Context, workerID string) error {
	for {
		t, err := w.src.Claim(ctx, w.queue, workerID)
		if ctx.Err() != nil {
			if t != nil {
				// Claimed just as we were stopped; finish it.
				w.process(context.WithoutCancel(ctx), workerID, t)
			}
			return nil
		}
		if err != nil {
			w.logger.Warn("claim failed", "worker_id", workerID, "error", err)
			if !sleep(ctx, w.retry) {
				return nil
			}
			continue
		}
		w.process(context.WithoutCancel(ctx), workerID, t)
	}
}

// process executes t and reports its outcome.
func (w *Worker) process(ctx context.Context, workerID string, t *model.Task) {
	logger := w.logger.With("task_id", t.ID, "worker_id", workerID)

	start := time.Now()
	out := w.execute(ctx, t)
	taskSeconds.WithLabelValues(w.queue).Observe(time.Since(start).Seconds())

	result := resultSucceeded
	if out.Failure != nil {
		result = out.Failure.Kind
		logger.Info("task failed", "kind", t.Kind, "error_kind", out.Failure.Kind, "error", out.Failure.Message)
	} else {
		logger.Debug("task succeeded", "kind", t.Kind, "duration_ms", time.Since(start).Milliseconds())
	}
	tasksTotal.WithLabelValues(w.queue, result).Inc()

	w.report(ctx, logger, t.ID, workerID, out)
}

// report sends out to the source. Transport failures are retried after the
// retry delay; the task itself is never run again.
func (w *Worker) report(ctx context.Context, logger *slog.Logger, taskID, workerID string, out task.Outcome) {
	for attempt := 1; ; attempt++ {
		_, err := w.src.Complete(ctx, taskID, workerID, out)
		if err == nil {
			return
		}
		if !retryable(err) || attempt == reportAttempts {
			logger.Error("report outcome", "attempt", attempt, "error", err)
			return
		}
		logger.Warn("report outcome failed, retrying", "attempt", attempt, "error", err)
		if !sleep(ctx, w.retry) {
			return
		}
	}
}

// retryable reports whether err is a transport failure that may succeed on
// another attempt. Errors that say they are not temporary are final.
func retryable(err error) bool {
	var trErr *backend.TransportError
	if !errors.As(err, &trErr) {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return true
}

// execute decodes and runs t, turning a panicking handler into a task
// failure.
func (w *Worker) execute(ctx context.Context, t *model.Task) (out task.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = task.Outcome{Failure: &task.Failure{
				Kind:    task.FailureTask,
				Message: fmt.Sprintf("handler panicked: %v", r),
			}}
		}
	}()

	msg, err := task.DecodeMessage(t)
	if err != nil {
		return task.Outcome{Failure: &task.Failure{Kind: task.FailureRejected, Message: err.Error()}}
	}
	return task.Execute(ctx, w.handlers, msg)
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
