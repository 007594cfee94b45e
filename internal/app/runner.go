package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yourusername/ytgrab-go/internal/domain"
	"github.com/yourusername/ytgrab-go/internal/progress"
	"go.uber.org/zap"
)

// RunOutcome is the terminal result of one engine run
type RunOutcome struct {
	Status  domain.TaskStatus // finished, error, or cancelled
	Message string
}

// RunnerHooks receives normalized events from one engine run.
// OnDone is invoked exactly once, after the last progress or log delivery.
type RunnerHooks struct {
	OnProgress func(event domain.ProgressEvent)
	OnLog      func(line string)
	OnDone     func(outcome RunOutcome)
}

// Runner drives a single engine run for one task. It owns the cancel flag,
// normalizes raw engine events, and guarantees exactly one terminal outcome
// even when the engine panics or reports conflicting results.
type Runner struct {
	task   *domain.Task
	engine domain.Engine
	config *domain.DownloadConfig
	hooks  RunnerHooks
	logger *zap.Logger

	runID      string
	normalizer *progress.Normalizer
	cancelled  chan struct{}
	done       chan struct{}
	finishOnce sync.Once
}

// NewRunner creates a runner for one task execution
func NewRunner(task *domain.Task, engine domain.Engine, config *domain.DownloadConfig, hooks RunnerHooks, logger *zap.Logger) *Runner {
	runID := uuid.New().String()[:8]
	return &Runner{
		task:       task,
		engine:     engine,
		config:     config,
		hooks:      hooks,
		logger:     logger.With(zap.Uint("task_id", task.ID), zap.String("run_id", runID)),
		runID:      runID,
		normalizer: progress.NewNormalizer(task.ID),
		cancelled:  make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Cancel requests cooperative cancellation. The flag is checked at the next
// progress hook invocation; safe to call multiple times.
func (r *Runner) Cancel() {
	select {
	case <-r.cancelled:
	default:
		close(r.cancelled)
	}
}

// CancelRequested returns a channel closed once cancellation is requested
func (r *Runner) CancelRequested() <-chan struct{} {
	return r.cancelled
}

// Cancelled reports whether cancellation was requested
func (r *Runner) Cancelled() bool {
	select {
	case <-r.cancelled:
		return true
	default:
		return false
	}
}

// Done is closed once the terminal outcome has been delivered
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Run executes the download to completion. It blocks, so the supervisor
// launches it on its own goroutine. The terminal outcome is delivered to
// hooks.OnDone exactly once.
func (r *Runner) Run() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Download run panicked", zap.Any("panic", rec))
			r.finish(RunOutcome{
				Status:  domain.StatusError,
				Message: fmt.Sprintf("internal error: %v", rec),
			})
		}
	}()

	r.logger.Info("Starting download run", zap.String("url", r.task.URL))

	hook := func(raw domain.RawEvent) error {
		if r.Cancelled() {
			return domain.ErrCancelled
		}
		if event := r.normalizer.Normalize(raw); event != nil {
			if r.hooks.OnProgress != nil {
				r.hooks.OnProgress(*event)
			}
		}
		return nil
	}

	shim := &engineLogShim{emit: func(line string) {
		if r.hooks.OnLog != nil {
			r.hooks.OnLog(line)
		}
	}}

	err := r.engine.Download(r.buildOptions(hook, shim), r.task.URL)

	switch {
	case err == nil:
		r.finish(RunOutcome{Status: domain.StatusFinished})
	case errors.Is(err, domain.ErrCancelled):
		r.finish(RunOutcome{Status: domain.StatusCancelled, Message: "cancelled by user"})
	default:
		// a cancel racing with an engine failure still reads as cancelled
		if r.Cancelled() {
			r.finish(RunOutcome{Status: domain.StatusCancelled, Message: "cancelled by user"})
			return
		}
		r.finish(RunOutcome{Status: domain.StatusError, Message: err.Error()})
	}
}

// finish delivers the terminal outcome at most once and closes Done
func (r *Runner) finish(outcome RunOutcome) {
	r.finishOnce.Do(func() {
		r.logger.Info("Download run finished",
			zap.String("status", string(outcome.Status)),
			zap.String("message", outcome.Message))
		if r.hooks.OnDone != nil {
			r.hooks.OnDone(outcome)
		}
		close(r.done)
	})
}

// buildOptions maps the task's immutable configuration onto engine options
func (r *Runner) buildOptions(hook domain.ProgressHook, logger domain.EngineLogger) domain.EngineOptions {
	format := r.task.FormatPreset
	if selector, ok := domain.FormatPresets[format]; ok {
		format = selector
	}
	if format == "" {
		format = domain.DefaultFormat
	}

	opts := domain.EngineOptions{
		Format:            format,
		OutputTemplate:    filepath.Join(r.task.SavePath, domain.OutputTemplate),
		MergeOutputFormat: "mp4",
		SocketTimeout:     r.config.SocketTimeout,
		Retries:           r.config.Retries,
		FragmentRetries:   r.config.FragmentRetries,
		NoProgress:        true,
		NoPlaylist:        !r.task.DownloadPlaylist,
		ProgressHook:      hook,
		Logger:            logger,
	}

	if r.task.Proxy != nil && *r.task.Proxy != "" {
		opts.Proxy = *r.task.Proxy
	}
	if r.task.ConcurrentFragments != nil && *r.task.ConcurrentFragments > 0 {
		opts.ConcurrentFragments = *r.task.ConcurrentFragments
	}
	if r.task.WriteSubs {
		opts.WriteSubtitles = true
		opts.SubtitleLangs = []string{"all"}
	}
	if r.task.DownloadPlaylist {
		if r.task.PlaylistItems != nil && *r.task.PlaylistItems != "" {
			opts.PlaylistItems = *r.task.PlaylistItems
		}
		opts.PlaylistRandom = r.task.PlaylistRandom
		if r.task.MaxDownloads != nil && *r.task.MaxDownloads > 0 {
			opts.MaxDownloads = *r.task.MaxDownloads
		}
	}

	return opts
}

// engineLogShim adapts engine log callbacks to the per-task log stream,
// dropping the per-fragment progress noise the engine emits on its info
// channel and the verbose internals on its debug channel.
type engineLogShim struct {
	emit func(line string)
}

func (l *engineLogShim) Debug(msg string) {
	if strings.HasPrefix(msg, "[debug] ") {
		return
	}
	l.Info(msg)
}

func (l *engineLogShim) Info(msg string) {
	if strings.HasPrefix(msg, "[download]") {
		return
	}
	l.emit(msg)
}

func (l *engineLogShim) Warning(msg string) {
	l.emit("WARNING: " + msg)
}

func (l *engineLogShim) Error(msg string) {
	l.emit("ERROR: " + msg)
}
