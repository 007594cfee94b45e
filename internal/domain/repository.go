package domain

// TaskRepository defines the interface for durable task persistence
type TaskRepository interface {
	// Create inserts a new task and assigns its id
	Create(task *Task) error

	// Update applies only the named fields to an existing task.
	// A nil or empty field set is a no-op; an unknown id is silently ignored.
	Update(id uint, fields map[string]interface{}) error

	// Delete removes a task by id
	Delete(id uint) error

	// Get finds a task by id; returns ErrTaskNotFound if absent
	Get(id uint) (*Task, error)

	// ListAll returns all tasks ordered by creation time, most recent first
	ListAll() ([]*Task, error)

	// CountByStatus returns the number of tasks in the given status
	CountByStatus(status TaskStatus) (int64, error)

	// ResetInterrupted marks tasks left downloading by a previous run as
	// errored; returns the number of rows touched
	ResetInterrupted() (int64, error)

	// Stats returns aggregate task counts
	Stats() (*TaskStats, error)
}

// TaskStats represents aggregate task counts by status
type TaskStats struct {
	Total       int64 `json:"total"`
	Pending     int64 `json:"pending"`
	Downloading int64 `json:"downloading"`
	Finished    int64 `json:"finished"`
	Error       int64 `json:"error"`
	Cancelled   int64 `json:"cancelled"`
}
