package backend

import "fmt"

// TransportError reports a failure of the infrastructure between the caller
// and the executing worker: submission, delivery or result retrieval.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TaskError carries an error raised by a callable in another process. Only
// the message survives the trip.
type TaskError struct {
	TaskID  string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}
