package scheduler

import "errors"

var (
	// ErrTargetNotFound is returned when a target is not found
	ErrTargetNotFound = errors.New("target not found")

	// ErrDuplicateTarget is returned when a target ID is already registered
	ErrDuplicateTarget = errors.New("duplicate target")

	// ErrInvalidFrequency is returned when a target's frequency is not positive
	ErrInvalidFrequency = errors.New("frequency must be positive")

	// ErrStopped is returned when the scheduler has been stopped
	ErrStopped = errors.New("scheduler stopped")
)
