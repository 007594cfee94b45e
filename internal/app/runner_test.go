package app

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ytgrab-go/internal/domain"
	"go.uber.org/zap"
)

// scriptedEngine replays a fixed sequence of raw events through the
// progress hook, then returns the configured error
type scriptedEngine struct {
	events  []domain.RawEvent
	result  error
	gotOpts domain.EngineOptions
	gotURL  string
}

func (e *scriptedEngine) Download(opts domain.EngineOptions, url string) error {
	e.gotOpts = opts
	e.gotURL = url
	for _, event := range e.events {
		if err := opts.ProgressHook(event); err != nil {
			return err
		}
	}
	return e.result
}

// panickyEngine simulates an engine crash mid-run
type panickyEngine struct{}

func (e *panickyEngine) Download(opts domain.EngineOptions, url string) error {
	panic("codec exploded")
}

type capturedRun struct {
	mu       sync.Mutex
	events   []domain.ProgressEvent
	logs     []string
	outcomes []RunOutcome
}

func (c *capturedRun) hooks() RunnerHooks {
	return RunnerHooks{
		OnProgress: func(event domain.ProgressEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events = append(c.events, event)
		},
		OnLog: func(line string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.logs = append(c.logs, line)
		},
		OnDone: func(outcome RunOutcome) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.outcomes = append(c.outcomes, outcome)
		},
	}
}

func testDownloadConfig() *domain.DownloadConfig {
	cfg := domain.DefaultConfig().Download
	return &cfg
}

func TestRunner_SuccessfulRun(t *testing.T) {
	engine := &scriptedEngine{
		events: []domain.RawEvent{
			{"status": "downloading", "downloaded_bytes": float64(500), "total_bytes": float64(1000)},
			{"status": "finished", "filename": "video.mp4"},
		},
	}
	captured := &capturedRun{}
	task := &domain.Task{ID: 7, URL: "https://example.com/v", SavePath: "/tmp"}

	runner := NewRunner(task, engine, testDownloadConfig(), captured.hooks(), zap.NewNop())
	runner.Run()

	require.Len(t, captured.outcomes, 1)
	assert.Equal(t, domain.StatusFinished, captured.outcomes[0].Status)
	require.Len(t, captured.events, 2)
	assert.Equal(t, domain.PhaseDownloading, captured.events[0].Phase)
	require.NotNil(t, captured.events[0].Percent)
	assert.Equal(t, 50, *captured.events[0].Percent)
	assert.Equal(t, domain.PhaseMerging, captured.events[1].Phase)
	assert.Equal(t, "https://example.com/v", engine.gotURL)
}

func TestRunner_CancelAbortsAtHook(t *testing.T) {
	engine := &scriptedEngine{
		events: []domain.RawEvent{
			{"status": "downloading", "downloaded_bytes": float64(100), "total_bytes": float64(1000)},
			{"status": "downloading", "downloaded_bytes": float64(200), "total_bytes": float64(1000)},
		},
	}
	captured := &capturedRun{}
	task := &domain.Task{ID: 8, URL: "https://example.com/v", SavePath: "/tmp"}

	runner := NewRunner(task, engine, testDownloadConfig(), captured.hooks(), zap.NewNop())
	runner.Cancel()
	runner.Run()

	require.Len(t, captured.outcomes, 1)
	assert.Equal(t, domain.StatusCancelled, captured.outcomes[0].Status)
	// the hook rejected before any event was normalized
	assert.Empty(t, captured.events)
}

func TestRunner_EngineErrorBecomesErrorOutcome(t *testing.T) {
	engine := &scriptedEngine{result: errors.New("yt-dlp exited with status 1: ERROR: unsupported url")}
	captured := &capturedRun{}
	task := &domain.Task{ID: 9, URL: "https://example.com/v", SavePath: "/tmp"}

	runner := NewRunner(task, engine, testDownloadConfig(), captured.hooks(), zap.NewNop())
	runner.Run()

	require.Len(t, captured.outcomes, 1)
	assert.Equal(t, domain.StatusError, captured.outcomes[0].Status)
	assert.Contains(t, captured.outcomes[0].Message, "unsupported url")
}

func TestRunner_PanicDeliversSingleErrorOutcome(t *testing.T) {
	captured := &capturedRun{}
	task := &domain.Task{ID: 10, URL: "https://example.com/v", SavePath: "/tmp"}

	runner := NewRunner(task, &panickyEngine{}, testDownloadConfig(), captured.hooks(), zap.NewNop())
	runner.Run()

	require.Len(t, captured.outcomes, 1)
	assert.Equal(t, domain.StatusError, captured.outcomes[0].Status)
	assert.Contains(t, captured.outcomes[0].Message, "codec exploded")

	select {
	case <-runner.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after panic recovery")
	}
}

func TestRunner_OptionsFromTask(t *testing.T) {
	proxy := "socks5://127.0.0.1:1080"
	fragments := 8
	items := "1-5"
	maxDownloads := 3
	task := &domain.Task{
		ID:                  11,
		URL:                 "https://example.com/list",
		SavePath:            "/media/videos",
		FormatPreset:        "720p",
		Proxy:               &proxy,
		ConcurrentFragments: &fragments,
		WriteSubs:           true,
		DownloadPlaylist:    true,
		PlaylistItems:       &items,
		PlaylistRandom:      true,
		MaxDownloads:        &maxDownloads,
	}
	engine := &scriptedEngine{}
	runner := NewRunner(task, engine, testDownloadConfig(), RunnerHooks{}, zap.NewNop())
	runner.Run()

	opts := engine.gotOpts
	assert.Equal(t, domain.FormatPresets["720p"], opts.Format)
	assert.Equal(t, filepath.Join("/media/videos", domain.OutputTemplate), opts.OutputTemplate)
	assert.Equal(t, "mp4", opts.MergeOutputFormat)
	assert.Equal(t, proxy, opts.Proxy)
	assert.Equal(t, 8, opts.ConcurrentFragments)
	assert.True(t, opts.WriteSubtitles)
	assert.False(t, opts.NoPlaylist)
	assert.Equal(t, "1-5", opts.PlaylistItems)
	assert.True(t, opts.PlaylistRandom)
	assert.Equal(t, 3, opts.MaxDownloads)
	assert.True(t, opts.NoProgress)
}

func TestRunner_UnknownPresetUsedVerbatim(t *testing.T) {
	task := &domain.Task{
		ID:           12,
		URL:          "https://example.com/v",
		SavePath:     "/tmp",
		FormatPreset: "bestaudio[abr<=128]",
	}
	engine := &scriptedEngine{}
	runner := NewRunner(task, engine, testDownloadConfig(), RunnerHooks{}, zap.NewNop())
	runner.Run()

	assert.Equal(t, "bestaudio[abr<=128]", engine.gotOpts.Format)
	assert.True(t, engine.gotOpts.NoPlaylist)
}

func TestEngineLogShim_Filtering(t *testing.T) {
	var lines []string
	shim := &engineLogShim{emit: func(line string) { lines = append(lines, line) }}

	shim.Debug("[debug] Loading archive file")
	shim.Debug("[youtube] abc: Downloading webpage")
	shim.Info("[download]  42.0% of 10.00MiB")
	shim.Info("[Merger] Merging formats into video.mp4")
	shim.Warning("unable to fetch thumbnail")
	shim.Error("fragment 3 not found")

	assert.Equal(t, []string{
		"[youtube] abc: Downloading webpage",
		"[Merger] Merging formats into video.mp4",
		"WARNING: unable to fetch thumbnail",
		"ERROR: fragment 3 not found",
	}, lines)
}
