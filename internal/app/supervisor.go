package app

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/yourusername/ytgrab-go/internal/domain"
	"go.uber.org/zap"
)

// Supervisor owns the task lifecycle: creation, bounded concurrent execution,
// cancellation, deletion, and routing of progress into the store and out to
// registered observers. All public methods are safe for concurrent use.
type Supervisor struct {
	repo   domain.TaskRepository
	engine domain.Engine
	config *domain.DownloadConfig
	logger *zap.Logger

	mu        sync.Mutex
	runners   map[uint]*Runner
	logs      map[uint]*logRing
	observers []domain.Observer

	// sem bounds the number of tasks inside the engine at once;
	// tasks past the bound stay pending until a slot frees up
	sem chan struct{}
}

// NewSupervisor creates a supervisor with the configured concurrency bound
func NewSupervisor(repo domain.TaskRepository, engine domain.Engine, config *domain.DownloadConfig, logger *zap.Logger) *Supervisor {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Supervisor{
		repo:    repo,
		engine:  engine,
		config:  config,
		logger:  logger,
		runners: make(map[uint]*Runner),
		logs:    make(map[uint]*logRing),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// AddObserver registers an observer for task notifications.
// Observers must not block; delivery is synchronous.
func (s *Supervisor) AddObserver(observer domain.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// Recover marks tasks left mid-download by a previous process as errored.
// Called once at startup, before any task runs.
func (s *Supervisor) Recover() (int64, error) {
	count, err := s.repo.ResetInterrupted()
	if err != nil {
		return 0, fmt.Errorf("failed to reset interrupted tasks: %w", err)
	}
	if count > 0 {
		s.logger.Warn("Reset interrupted tasks from previous run", zap.Int64("count", count))
	}
	return count, nil
}

// Add validates a task configuration, persists a new pending task,
// and returns it with its assigned id
func (s *Supervisor) Add(cfg domain.TaskConfig) (*domain.Task, error) {
	if cfg.URL == "" {
		return nil, domain.ErrEmptyURL
	}
	if cfg.SavePath == "" {
		cfg.SavePath = s.config.SaveDir
	}
	if info, err := os.Stat(cfg.SavePath); err != nil || !info.IsDir() {
		return nil, domain.ErrInvalidSaveDir
	}
	if cfg.FormatPreset == "" {
		cfg.FormatPreset = s.config.FormatPreset
	}
	if cfg.Proxy == nil && s.config.Proxy != "" {
		proxy := s.config.Proxy
		cfg.Proxy = &proxy
	}
	if cfg.ConcurrentFragments == nil && s.config.ConcurrentFragments > 0 {
		fragments := s.config.ConcurrentFragments
		cfg.ConcurrentFragments = &fragments
	}

	task := domain.NewTask(cfg)
	if err := s.repo.Create(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("Task added",
		zap.Uint("task_id", task.ID),
		zap.String("url", task.URL))
	return task, nil
}

// Start launches a download run for the task. A task already holding an
// execution context is rejected; terminal tasks are reset and retried.
func (s *Supervisor) Start(id uint) error {
	s.mu.Lock()
	if _, exists := s.runners[id]; exists {
		s.mu.Unlock()
		return domain.ErrTaskActive
	}

	// fetched under the lock so a concurrent Delete cannot remove the
	// record between the check and the runner registration
	task, err := s.repo.Get(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if _, exists := s.logs[id]; !exists {
		s.logs[id] = newLogRing(s.config.LogBufferSize)
	}

	runner := NewRunner(task, s.engine, s.config, RunnerHooks{
		OnProgress: func(event domain.ProgressEvent) { s.handleProgress(id, event) },
		OnLog:      func(line string) { s.handleLog(id, line) },
		OnDone:     func(outcome RunOutcome) { s.handleDone(id, outcome) },
	}, s.logger)
	s.runners[id] = runner
	s.mu.Unlock()

	// a retry resets the visible state before the run begins
	if err := s.repo.Update(id, map[string]interface{}{
		"status":   domain.StatusPending,
		"progress": 0,
		"speed":    "",
		"eta":      "",
	}); err != nil {
		s.mu.Lock()
		delete(s.runners, id)
		s.mu.Unlock()
		return fmt.Errorf("failed to reset task state: %w", err)
	}

	go s.runWithSlot(id, runner)
	return nil
}

// runWithSlot waits for a concurrency slot, honoring cancellation
// requested while the task is still queued
func (s *Supervisor) runWithSlot(id uint, runner *Runner) {
	select {
	case s.sem <- struct{}{}:
	case <-runner.CancelRequested():
		runner.finish(RunOutcome{Status: domain.StatusCancelled, Message: "cancelled by user"})
		return
	}
	defer func() { <-s.sem }()

	if runner.Cancelled() {
		runner.finish(RunOutcome{Status: domain.StatusCancelled, Message: "cancelled by user"})
		return
	}

	// the engine can sit in its extraction phase for a while before the
	// first progress event, so the status flips here, not on first event
	if err := s.repo.Update(id, map[string]interface{}{
		"status": domain.StatusDownloading,
	}); err != nil {
		s.logger.Error("Failed to mark task downloading",
			zap.Uint("task_id", id),
			zap.Error(err))
	}
	runner.Run()
}

// Cancel requests cancellation of a task. Running tasks are aborted at the
// next progress hook; queued tasks are cancelled in place. Cancelling a
// terminal task is a no-op.
func (s *Supervisor) Cancel(id uint) error {
	s.mu.Lock()
	runner, exists := s.runners[id]
	s.mu.Unlock()

	if exists {
		s.logger.Info("Cancellation requested", zap.Uint("task_id", id))
		runner.Cancel()
		return nil
	}

	task, err := s.repo.Get(id)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}
	return s.repo.Update(id, map[string]interface{}{
		"status": domain.StatusCancelled,
		"speed":  "",
		"eta":    "",
	})
}

// Delete removes a task and its buffered logs. Tasks with a live execution
// context must be cancelled first.
func (s *Supervisor) Delete(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runners[id]; exists {
		return domain.ErrTaskActive
	}

	if _, err := s.repo.Get(id); err != nil {
		return err
	}
	// removing the record under the lock keeps a concurrent Start from
	// registering a runner against the vanishing record
	if err := s.repo.Delete(id); err != nil {
		return err
	}
	delete(s.logs, id)
	return nil
}

// Get returns a task by id
func (s *Supervisor) Get(id uint) (*domain.Task, error) {
	return s.repo.Get(id)
}

// List returns all tasks, most recent first
func (s *Supervisor) List() ([]*domain.Task, error) {
	return s.repo.ListAll()
}

// Stats returns aggregate task counts
func (s *Supervisor) Stats() (*domain.TaskStats, error) {
	return s.repo.Stats()
}

// Logs returns a snapshot of the buffered log lines for a task
func (s *Supervisor) Logs(id uint) []string {
	s.mu.Lock()
	ring := s.logs[id]
	s.mu.Unlock()
	if ring == nil {
		return []string{}
	}
	return ring.snapshot()
}

// ActiveCount returns the number of tasks holding an execution context
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runners)
}

// Shutdown cancels all running tasks and waits for their terminal outcomes
// or context expiry
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for _, runner := range s.runners {
		runner.Cancel()
		runners = append(runners, runner)
	}
	s.mu.Unlock()

	for _, runner := range runners {
		select {
		case <-runner.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// handleProgress routes a normalized event into the store and to observers
func (s *Supervisor) handleProgress(id uint, event domain.ProgressEvent) {
	fields := map[string]interface{}{}

	switch event.Phase {
	case domain.PhaseDownloading:
		fields["status"] = domain.StatusDownloading
		if event.Percent != nil {
			fields["progress"] = *event.Percent
		}
		fields["speed"] = event.Speed
		fields["eta"] = event.ETA
	case domain.PhaseMerging:
		fields["status"] = domain.StatusMerging
		fields["speed"] = ""
		fields["eta"] = ""
	case domain.PhaseError:
		// non-fatal engine error event; the run outcome decides the status
	}

	if event.Title != "" {
		fields["title"] = event.Title
	}

	if len(fields) > 0 {
		if err := s.repo.Update(id, fields); err != nil {
			s.logger.Error("Failed to persist progress",
				zap.Uint("task_id", id),
				zap.Error(err))
		}
	}

	s.mu.Lock()
	observers := append([]domain.Observer(nil), s.observers...)
	s.mu.Unlock()
	for _, observer := range observers {
		observer.OnProgress(id, event)
	}
}

// handleLog buffers a log line and forwards it to observers
func (s *Supervisor) handleLog(id uint, line string) {
	s.mu.Lock()
	ring := s.logs[id]
	observers := append([]domain.Observer(nil), s.observers...)
	s.mu.Unlock()

	if ring != nil {
		ring.append(line)
	}
	for _, observer := range observers {
		observer.OnLog(id, line)
	}
}

// handleDone persists the terminal outcome and releases the execution context
func (s *Supervisor) handleDone(id uint, outcome RunOutcome) {
	fields := map[string]interface{}{
		"status": outcome.Status,
		"speed":  "",
		"eta":    "",
	}
	// a failed run keeps its last-known progress for diagnosis
	if outcome.Status == domain.StatusFinished {
		fields["progress"] = 100
	}

	if err := s.repo.Update(id, fields); err != nil {
		s.logger.Error("Failed to persist terminal status",
			zap.Uint("task_id", id),
			zap.Error(err))
	}

	s.mu.Lock()
	delete(s.runners, id)
	observers := append([]domain.Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, observer := range observers {
		observer.OnFinished(id, outcome.Status == domain.StatusFinished, outcome.Message)
	}
}

// logRing is a bounded buffer of recent log lines for one task
type logRing struct {
	mu       sync.Mutex
	capacity int
	lines    []string
}

func newLogRing(capacity int) *logRing {
	if capacity < 1 {
		capacity = 1
	}
	return &logRing{capacity: capacity}
}

func (r *logRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.capacity {
		r.lines = r.lines[len(r.lines)-r.capacity:]
	}
}

func (r *logRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
