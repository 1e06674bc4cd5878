// Package engine implements the broker side of the task queue. It persists
// submitted tasks, hands them to claiming workers, records their outcomes,
// wakes callers waiting on results and publishes completion events.
package engine
