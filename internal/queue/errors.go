package queue

import "errors"

var (
	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidPriority is returned when an invalid priority is specified
	ErrInvalidPriority = errors.New("invalid task priority")

	// ErrUnknownTaskType is returned when a task type has no handler mapping
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrStopped is returned when the queue has been stopped
	ErrStopped = errors.New("queue stopped")
)
