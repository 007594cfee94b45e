package domain

// Phase is the coarse progress stage reported for a running task
type Phase string

const (
	PhaseDownloading Phase = "downloading"
	PhaseMerging     Phase = "merging"
	PhaseFinished    Phase = "finished"
	PhaseError       Phase = "error"
)

// RawEvent is one loosely-typed progress record as emitted by the engine.
// Keys and value types vary by phase; consumers must type-assert defensively.
type RawEvent map[string]interface{}

// ProgressEvent is the canonical progress snapshot produced by the normalizer.
// Percent is nil when the total size is unknown (indeterminate display).
type ProgressEvent struct {
	TaskID          uint   `json:"task_id"`
	Phase           Phase  `json:"phase"`
	Percent         *int   `json:"percent,omitempty"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	TotalBytes      *int64 `json:"total_bytes,omitempty"`
	Speed           string `json:"speed,omitempty"`
	ETA             string `json:"eta,omitempty"`
	Filename        string `json:"filename,omitempty"`
	Title           string `json:"title,omitempty"`
}

// Observer receives per-task notifications from the supervisor.
// Implementations must not block: routing is fire-and-forget.
type Observer interface {
	// OnProgress delivers a normalized progress snapshot
	OnProgress(taskID uint, event ProgressEvent)

	// OnLog delivers one human-readable log line
	OnLog(taskID uint, line string)

	// OnFinished delivers the terminal outcome, exactly once per run
	OnFinished(taskID uint, success bool, message string)
}
