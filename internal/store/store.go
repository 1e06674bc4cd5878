package store

import (
	"context"
	"errors"

	"github.com/alexpearce/distribute-challenge/internal/model"
)

var (
	// ErrNotFound is returned when a task is not found.
	ErrNotFound = errors.New("task not found")
	// ErrQueueEmpty is returned by ClaimTask when no task is pending.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrInvalidTransition is returned when a task status transition is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrWorkerMismatch is returned when a worker completes a task claimed by another worker.
	ErrWorkerMismatch = errors.New("task is claimed by another worker")
)

// TaskStats holds aggregate task statistics.
type TaskStats struct {
	Total            int            `json:"total"`
	CountByStatus    map[string]int `json:"count_by_status"`
	CountByQueue     map[string]int `json:"count_by_queue"`
	CountByErrorKind map[string]int `json:"count_by_error_kind"`
	AvgDurationMS    float64        `json:"avg_duration_ms"`
}

// Completion is the result a worker reports for a running task.
type Completion struct {
	ID        string
	WorkerID  string
	Status    string
	Outcome   []byte
	ErrorKind string
}

// Store defines the persistence operations for tasks.
type Store interface {
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	// ListTasks returns tasks newest first. An empty queue lists every queue.
	ListTasks(ctx context.Context, queue string, limit, offset int) ([]*model.Task, int, error)
	// ClaimTask moves the oldest pending task of queue to running and
	// assigns it to workerID.
	ClaimTask(ctx context.Context, queue, workerID string) (*model.Task, error)
	CompleteTask(ctx context.Context, c Completion) (*model.Task, error)
	GetTaskStats(ctx context.Context) (*TaskStats, error)
	Ping(ctx context.Context) error
	Close() error
}
