package scheduler

import "errors"

var (
	// ErrInstanceNotFound is returned when an instance id is not registered.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrTaskNotFound is returned when a task id is not registered.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInstanceBusy is returned when an instance cannot take another task,
	// typically because a concurrent router claimed it first.
	ErrInstanceBusy = errors.New("instance busy")

	// ErrTaskNotPending is returned when a task has already left the pending state.
	ErrTaskNotPending = errors.New("task is not pending")

	// ErrInvalidTask is returned for malformed task parameters.
	ErrInvalidTask = errors.New("invalid task")
)
