package model

import (
	"encoding/json"
	"time"
)

// Task status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event type constants.
const (
	EventTaskSucceeded = "task-succeeded"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is a final task status.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Task is a unit of work queued on the broker side. Message holds the encoded
// task message submitted by a client; Outcome holds the encoded result once a
// worker has reported it.
type Task struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Message    json.RawMessage `json:"message,omitempty"`
	Outcome    json.RawMessage `json:"outcome,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	WorkerID   string          `json:"worker_id,omitempty"`
	DurationMS *int            `json:"duration_ms,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// TaskEvent is a notification about a task lifecycle change. Only successful
// completions are published today.
type TaskEvent struct {
	Type     string    `json:"type"`
	TaskID   string    `json:"task_id"`
	Queue    string    `json:"queue"`
	Kind     string    `json:"kind"`
	WorkerID string    `json:"worker_id,omitempty"`
	Time     time.Time `json:"time"`
}
