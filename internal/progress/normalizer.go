package progress

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourusername/ytgrab-go/internal/domain"
)

// subtitleExts are side-file extensions that must not surface as a phase
// change when the engine reports them finished
var subtitleExts = map[string]bool{
	".srt":  true,
	".vtt":  true,
	".ass":  true,
	".ssa":  true,
	".json": true,
}

// Normalizer converts raw engine events for one task into canonical
// ProgressEvents. It tracks a per-task high-water percent so the displayed
// progress never regresses when the engine restarts a segment.
//
// A Normalizer is owned by a single runner and is not safe for concurrent
// use; the engine invokes the progress hook serially.
type Normalizer struct {
	taskID    uint
	highWater int
	hasShown  bool
}

// NewNormalizer creates a normalizer for one task
func NewNormalizer(taskID uint) *Normalizer {
	return &Normalizer{taskID: taskID}
}

// Normalize produces zero or one canonical event from a raw engine record.
// A nil result means the event is suppressed (backward percent jump,
// subtitle side-file, or unrecognized status).
func (n *Normalizer) Normalize(raw domain.RawEvent) *domain.ProgressEvent {
	status, _ := stringField(raw, "status")

	switch status {
	case "downloading":
		return n.normalizeDownloading(raw)
	case "finished":
		return n.normalizeFinished(raw)
	case "error":
		return &domain.ProgressEvent{
			TaskID:   n.taskID,
			Phase:    domain.PhaseError,
			Filename: filenameOf(raw),
		}
	default:
		return nil
	}
}

func (n *Normalizer) normalizeDownloading(raw domain.RawEvent) *domain.ProgressEvent {
	event := &domain.ProgressEvent{
		TaskID:   n.taskID,
		Phase:    domain.PhaseDownloading,
		Speed:    speedOf(raw),
		ETA:      etaOf(raw),
		Filename: filenameOf(raw),
		Title:    titleOf(raw),
	}

	downloaded, hasDownloaded := numberField(raw, "downloaded_bytes")
	if hasDownloaded {
		event.DownloadedBytes = downloaded
	}

	// the estimate takes precedence when both totals are present
	total, hasTotal := numberField(raw, "total_bytes_estimate")
	if !hasTotal {
		total, hasTotal = numberField(raw, "total_bytes")
	}

	if hasTotal && total > 0 && hasDownloaded {
		event.TotalBytes = &total
		percent := int(downloaded * 100 / total)
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		// suppress backward jumps from engine resegmentation
		if n.hasShown && percent < n.highWater {
			return nil
		}
		n.highWater = percent
		n.hasShown = true
		event.Percent = &percent
	}
	// total unknown: Percent stays nil, display is driven by byte count

	return event
}

func (n *Normalizer) normalizeFinished(raw domain.RawEvent) *domain.ProgressEvent {
	filename := filenameOf(raw)
	if filename != "" {
		ext := strings.ToLower(filepath.Ext(filename))
		if subtitleExts[ext] {
			return nil
		}
	}

	// The engine performs its merge step silently after reporting finished,
	// so the merging phase is anticipated here.
	return &domain.ProgressEvent{
		TaskID:   n.taskID,
		Phase:    domain.PhaseMerging,
		Filename: filename,
		Title:    titleOf(raw),
	}
}

// HighWater returns the largest percent already emitted for this task
func (n *Normalizer) HighWater() int {
	return n.highWater
}

func stringField(raw domain.RawEvent, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// numberField reads a numeric field that may arrive as float64 (JSON),
// an integer type, or a numeric string
func numberField(raw domain.RawEvent, key string) (int64, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return int64(parsed), true
	default:
		return 0, false
	}
}

func infoDict(raw domain.RawEvent) map[string]interface{} {
	if v, ok := raw["info_dict"]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func filenameOf(raw domain.RawEvent) string {
	if info := infoDict(raw); info != nil {
		if s, ok := info["filename"].(string); ok && s != "" {
			return s
		}
	}
	s, _ := stringField(raw, "filename")
	return s
}

func titleOf(raw domain.RawEvent) string {
	if info := infoDict(raw); info != nil {
		if s, ok := info["title"].(string); ok {
			return s
		}
	}
	return ""
}

func speedOf(raw domain.RawEvent) string {
	if s, ok := stringField(raw, "speed_str"); ok {
		return strings.TrimSpace(s)
	}
	if n, ok := numberField(raw, "speed"); ok && n > 0 {
		return formatBytes(n) + "/s"
	}
	return ""
}

func etaOf(raw domain.RawEvent) string {
	if s, ok := stringField(raw, "eta_str"); ok {
		return strings.TrimSpace(s)
	}
	if n, ok := numberField(raw, "eta"); ok && n >= 0 {
		return formatDuration(n)
	}
	return ""
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
