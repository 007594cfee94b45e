package domain

import (
	"time"
)

// TaskStatus represents the lifecycle status of a download task
type TaskStatus string

const (
	StatusPending     TaskStatus = "pending"
	StatusDownloading TaskStatus = "downloading"
	StatusMerging     TaskStatus = "merging"
	StatusFinished    TaskStatus = "finished"
	StatusError       TaskStatus = "error"
	StatusCancelled   TaskStatus = "cancelled"
)

// PlaceholderTitle is shown until the engine resolves real metadata
const PlaceholderTitle = "Resolving..."

// Task represents one user-requested download with fixed configuration
// and mutable lifecycle state
type Task struct {
	ID                  uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	URL                 string     `json:"url" gorm:"not null"`
	Title               string     `json:"title"`
	Status              TaskStatus `json:"status" gorm:"not null;index"`
	Progress            int        `json:"progress" gorm:"default:0"`
	Speed               string     `json:"speed"`
	ETA                 string     `json:"eta"`
	SavePath            string     `json:"save_path"`
	FormatPreset        string     `json:"format_preset"`
	Proxy               *string    `json:"proxy,omitempty"`
	ConcurrentFragments *int       `json:"concurrent_fragments,omitempty"`
	WriteSubs           bool       `json:"write_subs"`
	DownloadPlaylist    bool       `json:"download_playlist"`
	PlaylistItems       *string    `json:"playlist_items,omitempty"`
	PlaylistRandom      bool       `json:"playlist_random"`
	MaxDownloads        *int       `json:"max_downloads,omitempty"`
	CreatedAt           time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TaskConfig carries the immutable configuration for a new task.
// Only Status/Progress/Speed/ETA/Title mutate after creation.
type TaskConfig struct {
	URL                 string  `json:"url"`
	SavePath            string  `json:"save_path"`
	FormatPreset        string  `json:"format_preset"`
	Proxy               *string `json:"proxy,omitempty"`
	ConcurrentFragments *int    `json:"concurrent_fragments,omitempty"`
	WriteSubs           bool    `json:"write_subs"`
	DownloadPlaylist    bool    `json:"download_playlist"`
	PlaylistItems       *string `json:"playlist_items,omitempty"`
	PlaylistRandom      bool    `json:"playlist_random"`
	MaxDownloads        *int    `json:"max_downloads,omitempty"`
}

// NewTask creates a pending task from a configuration
func NewTask(cfg TaskConfig) *Task {
	return &Task{
		URL:                 cfg.URL,
		Title:               PlaceholderTitle,
		Status:              StatusPending,
		Progress:            0,
		SavePath:            cfg.SavePath,
		FormatPreset:        cfg.FormatPreset,
		Proxy:               cfg.Proxy,
		ConcurrentFragments: cfg.ConcurrentFragments,
		WriteSubs:           cfg.WriteSubs,
		DownloadPlaylist:    cfg.DownloadPlaylist,
		PlaylistItems:       cfg.PlaylistItems,
		PlaylistRandom:      cfg.PlaylistRandom,
		MaxDownloads:        cfg.MaxDownloads,
	}
}

// IsTerminal checks if the task is in a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status == StatusFinished || t.Status == StatusError || t.Status == StatusCancelled
}

// IsActive checks if the task is in an in-flight state
func (t *Task) IsActive() bool {
	return t.Status == StatusDownloading || t.Status == StatusMerging
}

// TableName pins the table name to the schema used across versions
func (Task) TableName() string {
	return "tasks"
}
