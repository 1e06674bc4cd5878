package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexpearce/distribute-challenge/internal/events"
	"github.com/alexpearce/distribute-challenge/internal/model"
	"github.com/alexpearce/distribute-challenge/internal/store"
	"github.com/alexpearce/distribute-challenge/internal/task"
)

// Engine is the task queue. It satisfies the queue backend's Transport, the
// worker's Source and the monitor's EventSource, so clients, workers and
// monitors can share one in-process engine or reach it over HTTP.
type Engine struct {
	store   store.Store
	events  *events.Bus
	results *ResultBroker
	logger  *slog.Logger

	mu   sync.Mutex
	wake map[string]chan struct{}
}

// NewEngine creates a new queue engine.
func NewEngine(s store.Store, bus *events.Bus, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		events:  bus,
		results: NewResultBroker(),
		logger:  logger,
		wake:    make(map[string]chan struct{}),
	}
}

// Results returns the engine's result broker.
func (e *Engine) Results() *ResultBroker {
	return e.results
}

// Submit persists msg as a pending task on queue and wakes any worker
// blocked in Claim. The assigned task ID is returned.
func (e *Engine) Submit(ctx context.Context, queue string, msg task.Message) (string, error) {
	if queue == "" {
		return "", errors.New("submit: queue is required")
	}
	if msg.Kind == "" {
		return "", errors.New("submit: message kind is required")
	}

	msg.ID = model.NewID()
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	t := &model.Task{
		ID:        msg.ID,
		Queue:     queue,
		Kind:      msg.Kind,
		Status:    model.StatusPending,
		Message:   data,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	tasksSubmittedTotal.WithLabelValues(queue).Inc()
	e.logger.Debug("task submitted", "task_id", t.ID, "queue", queue, "kind", t.Kind)
	e.notify(queue)
	return t.ID, nil
}

// AwaitResult blocks until the task finishes or ctx ends.
func (e *Engine) AwaitResult(ctx context.Context, taskID string) (task.Outcome, error) {
	out, w, err := e.awaitSetup(ctx, taskID)
	if err != nil {
		return task.Outcome{}, err
	}
	if w == nil {
		return out, nil
	}
	defer w.unsubscribe()

	select {
	case out := <-w.ch:
		return out, nil
	case <-ctx.Done():
		return task.Outcome{}, ctx.Err()
	}
}

// Result returns the outcome of a finished task. ok is false while the task
// is still pending or running.
func (e *Engine) Result(ctx context.Context, taskID string) (out task.Outcome, ok bool, err error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return task.Outcome{}, false, err
	}
	if !model.Terminal(t.Status) {
		return task.Outcome{}, false, nil
	}
	out, err = decodeOutcome(t)
	return out, err == nil, err
}

type waiter struct {
	ch          <-chan task.Outcome
	unsubscribe func()
}

// awaitSetup subscribes to the task's result before checking the store so a
// completion between the two is never missed. When the task has already
// finished, the outcome is returned and the waiter is nil.
func (e *Engine) awaitSetup(ctx context.Context, taskID string) (task.Outcome, *waiter, error) {
	ch, unsub := e.results.Subscribe(taskID)

	out, finished, err := e.Result(ctx, taskID)
	if err != nil || finished {
		unsub()
		return out, nil, err
	}
	return task.Outcome{}, &waiter{ch: ch, unsubscribe: unsub}, nil
}

// TryClaim claims the oldest pending task on queue without waiting. It
// returns store.ErrQueueEmpty when there is none.
func (e *Engine) TryClaim(ctx context.Context, queue, workerID string) (*model.Task, error) {
	t, err := e.store.ClaimTask(ctx, queue, workerID)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("task claimed", "task_id", t.ID, "queue", queue, "worker_id", workerID)
	return t, nil
}

// Claim blocks until a task is available on queue or ctx ends.
func (e *Engine) Claim(ctx context.Context, queue, workerID string) (*model.Task, error) {
	for {
		// Take the wake channel before looking so a Submit in between is
		// not lost.
		wake := e.waitChan(queue)

		t, err := e.TryClaim(ctx, queue, workerID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrQueueEmpty) {
			return nil, err
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Complete records the outcome of a running task, wakes callers waiting on
// it and publishes a task-succeeded event when it produced a value.
func (e *Engine) Complete(ctx context.Context, taskID, workerID string, out task.Outcome) (*model.Task, error) {
	data, err := json.Marshal(out)
	if err != nil {
		// The value has no JSON form; report that instead of losing the task.
		out = task.Outcome{Failure: &task.Failure{
			Kind:    task.FailureTask,
			Message: fmt.Sprintf("encode result: %v", err),
		}}
		if data, err = json.Marshal(out); err != nil {
			return nil, fmt.Errorf("encode outcome: %w", err)
		}
	}

	c := store.Completion{ID: taskID, WorkerID: workerID, Status: model.StatusCompleted, Outcome: data}
	if out.Failure != nil {
		c.Status = model.StatusFailed
		c.ErrorKind = out.Failure.Kind
	}

	t, err := e.store.CompleteTask(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("complete task %s: %w", taskID, err)
	}

	published, err := decodeOutcome(t)
	if err != nil {
		return nil, err
	}
	e.results.Publish(taskID, published)

	tasksFinishedTotal.WithLabelValues(t.Queue, t.Status).Inc()
	if t.DurationMS != nil {
		taskDuration.WithLabelValues(t.Queue).Observe(float64(*t.DurationMS) / 1000)
	}

	if t.Status == model.StatusCompleted {
		e.events.Publish(model.TaskEvent{
			Type:     model.EventTaskSucceeded,
			TaskID:   t.ID,
			Queue:    t.Queue,
			Kind:     t.Kind,
			WorkerID: t.WorkerID,
			Time:     time.Now().UTC(),
		})
	} else {
		e.logger.Info("task failed", "task_id", t.ID, "queue", t.Queue, "error_kind", t.ErrorKind)
	}

	return t, nil
}

// Subscribe registers fn for task events.
func (e *Engine) Subscribe(fn func(model.TaskEvent)) (string, error) {
	return e.events.Subscribe(fn)
}

// Unsubscribe removes an event subscription.
func (e *Engine) Unsubscribe(id string) error {
	return e.events.Unsubscribe(id)
}

// waitChan returns the channel closed on the next Submit to queue.
func (e *Engine) waitChan(queue string) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.wake[queue]
	if !ok {
		ch = make(chan struct{})
		e.wake[queue] = ch
	}
	return ch
}

// notify wakes every Claim waiting on queue.
func (e *Engine) notify(queue string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ch, ok := e.wake[queue]; ok {
		close(ch)
		delete(e.wake, queue)
	}
}

func decodeOutcome(t *model.Task) (task.Outcome, error) {
	var out task.Outcome
	if len(t.Outcome) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(t.Outcome, &out); err != nil {
		return task.Outcome{}, fmt.Errorf("decode outcome of task %s: %w", t.ID, err)
	}
	return out, nil
}
