package domain

import "errors"

var (
	// ErrCancelled aborts the engine call when returned from a progress hook
	// and marks the run outcome as cancelled rather than failed
	ErrCancelled = errors.New("download cancelled by user")

	// ErrTaskNotFound is returned for operations on an unknown task id
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskActive rejects delete while an execution context exists
	ErrTaskActive = errors.New("task has an active download")

	// ErrEmptyURL rejects task creation with no source URL
	ErrEmptyURL = errors.New("url must not be empty")

	// ErrInvalidSaveDir rejects task creation with a missing save directory
	ErrInvalidSaveDir = errors.New("save directory does not exist")
)
