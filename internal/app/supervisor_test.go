package app

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ytgrab-go/internal/domain"
	"go.uber.org/zap"
)

// memoryRepo is an in-memory domain.TaskRepository for supervisor tests
type memoryRepo struct {
	mu     sync.Mutex
	nextID uint
	tasks  map[uint]*domain.Task
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tasks: make(map[uint]*domain.Task)}
}

func (m *memoryRepo) Create(task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	task.ID = m.nextID
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *memoryRepo) Update(id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil
	}
	for key, value := range fields {
		switch key {
		case "status":
			task.Status = value.(domain.TaskStatus)
		case "progress":
			task.Progress = value.(int)
		case "speed":
			task.Speed = value.(string)
		case "eta":
			task.ETA = value.(string)
		case "title":
			task.Title = value.(string)
		}
	}
	return nil
}

func (m *memoryRepo) Delete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memoryRepo) Get(id uint) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *memoryRepo) ListAll() ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		copied := *task
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) CountByStatus(status domain.TaskStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, task := range m.tasks {
		if task.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) ResetInterrupted() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, task := range m.tasks {
		if task.Status == domain.StatusDownloading || task.Status == domain.StatusMerging {
			task.Status = domain.StatusError
			task.Speed = ""
			task.ETA = ""
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) Stats() (*domain.TaskStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.TaskStats{Total: int64(len(m.tasks))}
	for _, task := range m.tasks {
		switch task.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusDownloading, domain.StatusMerging:
			stats.Downloading++
		case domain.StatusFinished:
			stats.Finished++
		case domain.StatusError:
			stats.Error++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// blockingEngine holds each Download call until release receives a value
type blockingEngine struct {
	started chan uint
	release chan error
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{started: make(chan uint, 8), release: make(chan error, 8)}
}

func (e *blockingEngine) Download(opts domain.EngineOptions, url string) error {
	e.started <- 0
	return <-e.release
}

// pollingEngine drives the progress hook in a loop until it rejects
type pollingEngine struct{}

func (e *pollingEngine) Download(opts domain.EngineOptions, url string) error {
	for {
		err := opts.ProgressHook(domain.RawEvent{
			"status":           "downloading",
			"downloaded_bytes": float64(100),
			"total_bytes":      float64(1000),
		})
		if err != nil {
			return err
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// finishObserver signals terminal outcomes over a channel
type finishObserver struct {
	finished chan bool
}

func newFinishObserver() *finishObserver {
	return &finishObserver{finished: make(chan bool, 8)}
}

func (o *finishObserver) OnProgress(taskID uint, event domain.ProgressEvent) {}
func (o *finishObserver) OnLog(taskID uint, line string)                     {}
func (o *finishObserver) OnFinished(taskID uint, success bool, message string) {
	o.finished <- success
}

func newTestSupervisor(t *testing.T, engine domain.Engine, mutate func(*domain.DownloadConfig)) (*Supervisor, *memoryRepo, *finishObserver) {
	t.Helper()
	repo := newMemoryRepo()
	cfg := domain.DefaultConfig().Download
	cfg.SaveDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	sup := NewSupervisor(repo, engine, &cfg, zap.NewNop())
	observer := newFinishObserver()
	sup.AddObserver(observer)
	return sup, repo, observer
}

func awaitFinish(t *testing.T, observer *finishObserver) bool {
	t.Helper()
	select {
	case success := <-observer.finished:
		return success
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for terminal outcome")
		return false
	}
}

func awaitStatus(t *testing.T, repo *memoryRepo, id uint, status domain.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task, err := repo.Get(id)
		require.NoError(t, err)
		if task.Status == status {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %d never reached status %s", id, status)
}

func TestSupervisor_AddValidation(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, &scriptedEngine{}, nil)

	_, err := sup.Add(domain.TaskConfig{URL: ""})
	assert.ErrorIs(t, err, domain.ErrEmptyURL)

	_, err = sup.Add(domain.TaskConfig{URL: "https://example.com/v", SavePath: "/no/such/dir"})
	assert.ErrorIs(t, err, domain.ErrInvalidSaveDir)
}

func TestSupervisor_AddAppliesDefaults(t *testing.T) {
	sup, repo, _ := newTestSupervisor(t, &scriptedEngine{}, func(cfg *domain.DownloadConfig) {
		cfg.FormatPreset = "1080p"
		cfg.Proxy = "http://proxy:3128"
		cfg.ConcurrentFragments = 4
	})

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	assert.NotZero(t, task.ID)

	stored, err := repo.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, domain.PlaceholderTitle, stored.Title)
	assert.Equal(t, "1080p", task.FormatPreset)
	require.NotNil(t, task.Proxy)
	assert.Equal(t, "http://proxy:3128", *task.Proxy)
	require.NotNil(t, task.ConcurrentFragments)
	assert.Equal(t, 4, *task.ConcurrentFragments)
}

func TestSupervisor_StartUnknownTask(t *testing.T) {
	sup, _, _ := newTestSupervisor(t, &scriptedEngine{}, nil)
	err := sup.Start(999)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestSupervisor_FullRunToFinished(t *testing.T) {
	engine := &scriptedEngine{
		events: []domain.RawEvent{
			{
				"status":           "downloading",
				"downloaded_bytes": float64(400),
				"total_bytes":      float64(1000),
				"info_dict":        map[string]interface{}{"title": "A Real Title"},
			},
			{"status": "finished", "filename": "a real title.mp4"},
		},
	}
	sup, repo, observer := newTestSupervisor(t, engine, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))

	assert.True(t, awaitFinish(t, observer))

	stored, err := repo.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, "A Real Title", stored.Title)
	assert.Empty(t, stored.Speed)
	assert.Empty(t, stored.ETA)
	assert.Equal(t, 0, sup.ActiveCount())
}

func TestSupervisor_StartTwiceRejected(t *testing.T) {
	engine := newBlockingEngine()
	sup, _, observer := newTestSupervisor(t, engine, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	<-engine.started

	assert.ErrorIs(t, sup.Start(task.ID), domain.ErrTaskActive)

	engine.release <- nil
	awaitFinish(t, observer)
}

func TestSupervisor_StartMarksDownloadingBeforeFirstEvent(t *testing.T) {
	engine := newBlockingEngine()
	sup, repo, observer := newTestSupervisor(t, engine, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	<-engine.started

	// the engine is inside its blocking call and has produced no events,
	// yet the task must already read as downloading
	stored, err := repo.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDownloading, stored.Status)

	engine.release <- nil
	awaitFinish(t, observer)
}

func TestSupervisor_CancelRunningTask(t *testing.T) {
	sup, repo, observer := newTestSupervisor(t, &pollingEngine{}, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	awaitStatus(t, repo, task.ID, domain.StatusDownloading)

	require.NoError(t, sup.Cancel(task.ID))
	assert.False(t, awaitFinish(t, observer))

	stored, err := repo.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestSupervisor_CancelQueuedTask(t *testing.T) {
	engine := newBlockingEngine()
	sup, repo, observer := newTestSupervisor(t, engine, func(cfg *domain.DownloadConfig) {
		cfg.MaxConcurrent = 1
	})

	first, err := sup.Add(domain.TaskConfig{URL: "https://example.com/a"})
	require.NoError(t, err)
	second, err := sup.Add(domain.TaskConfig{URL: "https://example.com/b"})
	require.NoError(t, err)

	require.NoError(t, sup.Start(first.ID))
	<-engine.started
	require.NoError(t, sup.Start(second.ID))

	// second task never reaches the engine; it is waiting on the slot
	// and stays pending until one frees up
	queued, err := repo.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, queued.Status)

	require.NoError(t, sup.Cancel(second.ID))
	assert.False(t, awaitFinish(t, observer))
	awaitStatus(t, repo, second.ID, domain.StatusCancelled)

	engine.release <- nil
	assert.True(t, awaitFinish(t, observer))
	awaitStatus(t, repo, first.ID, domain.StatusFinished)
}

func TestSupervisor_CancelIdleTask(t *testing.T) {
	sup, repo, _ := newTestSupervisor(t, &scriptedEngine{}, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)

	require.NoError(t, sup.Cancel(task.ID))
	stored, err := repo.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)

	// cancelling a terminal task is a no-op
	require.NoError(t, sup.Cancel(task.ID))

	assert.ErrorIs(t, sup.Cancel(999), domain.ErrTaskNotFound)
}

func TestSupervisor_DeleteRules(t *testing.T) {
	engine := newBlockingEngine()
	sup, repo, observer := newTestSupervisor(t, engine, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	<-engine.started

	assert.ErrorIs(t, sup.Delete(task.ID), domain.ErrTaskActive)

	engine.release <- nil
	awaitFinish(t, observer)

	require.NoError(t, sup.Delete(task.ID))
	_, err = repo.Get(task.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	assert.ErrorIs(t, sup.Delete(task.ID), domain.ErrTaskNotFound)
}

func TestSupervisor_DeleteUnknownTaskKeepsLogs(t *testing.T) {
	engine := &chattyEngine{lines: []string{"resolving formats"}}
	sup, _, observer := newTestSupervisor(t, engine, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	awaitFinish(t, observer)
	require.NotEmpty(t, sup.Logs(task.ID))

	// a miss leaves existing buffers untouched
	assert.ErrorIs(t, sup.Delete(999), domain.ErrTaskNotFound)
	assert.NotEmpty(t, sup.Logs(task.ID))

	require.NoError(t, sup.Delete(task.ID))
	assert.Empty(t, sup.Logs(task.ID))
}

func TestSupervisor_ErrorRetainsProgress(t *testing.T) {
	engine := &scriptedEngine{
		events: []domain.RawEvent{
			{"status": "downloading", "downloaded_bytes": float64(400), "total_bytes": float64(1000)},
		},
		result: assert.AnError,
	}
	sup, repo, observer := newTestSupervisor(t, engine, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))

	assert.False(t, awaitFinish(t, observer))

	stored, err := repo.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, stored.Status)
	assert.Equal(t, 40, stored.Progress)
	assert.Empty(t, stored.Speed)
}

// chattyEngine emits log lines through the engine logger
type chattyEngine struct {
	lines []string
}

func (e *chattyEngine) Download(opts domain.EngineOptions, url string) error {
	for _, line := range e.lines {
		opts.Logger.Info(line)
	}
	return nil
}

func TestSupervisor_LogsBufferedAndTrimmed(t *testing.T) {
	engine := &chattyEngine{lines: []string{"line 1", "line 2", "line 3"}}
	sup, _, observer := newTestSupervisor(t, engine, func(cfg *domain.DownloadConfig) {
		cfg.LogBufferSize = 2
	})

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	awaitFinish(t, observer)

	assert.Equal(t, []string{"line 2", "line 3"}, sup.Logs(task.ID))
	assert.Empty(t, sup.Logs(999))
}

func TestSupervisor_Recover(t *testing.T) {
	sup, repo, _ := newTestSupervisor(t, &scriptedEngine{}, nil)

	repo.Create(&domain.Task{URL: "https://example.com/a", Status: domain.StatusDownloading})
	repo.Create(&domain.Task{URL: "https://example.com/b", Status: domain.StatusFinished})

	count, err := sup.Recover()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := repo.Get(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, stored.Status)
}

func TestSupervisor_Shutdown(t *testing.T) {
	sup, repo, observer := newTestSupervisor(t, &pollingEngine{}, nil)

	task, err := sup.Add(domain.TaskConfig{URL: "https://example.com/v"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(task.ID))
	awaitStatus(t, repo, task.ID, domain.StatusDownloading)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	assert.False(t, awaitFinish(t, observer))
	awaitStatus(t, repo, task.ID, domain.StatusCancelled)
}
