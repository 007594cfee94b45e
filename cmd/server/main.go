package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ytgrab-go/api"
	"github.com/yourusername/ytgrab-go/api/handlers"
	"github.com/yourusername/ytgrab-go/internal/app"
	"github.com/yourusername/ytgrab-go/internal/domain"
	"github.com/yourusername/ytgrab-go/internal/infrastructure"
	"github.com/yourusername/ytgrab-go/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// If not in server mode, run as daemon
	if !*serverMode {
		startAsDaemon()
		return
	}

	runServer()
}

// startAsDaemon forks the current process and runs the server in background
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize multi-logger (2 categories: task, error)
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer multiLog.Sync()

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ytgrab server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.Int("max_concurrent", config.Download.MaxConcurrent))

	if err := os.MkdirAll(config.Download.SaveDir, 0755); err != nil {
		log.Fatal("Failed to create save directory", zap.Error(err))
	}

	// Initialize repository
	repo, err := infrastructure.NewSQLiteTaskRepository(config.Store.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	// Initialize engine and supervisor
	engine := infrastructure.NewYtdlpEngine(config.Download.YTDLPBinary)
	supervisor := app.NewSupervisor(repo, engine, &config.Download, log)

	// Tasks left mid-download by a previous process are marked errored
	if _, err := supervisor.Recover(); err != nil {
		log.Error("Failed to recover interrupted tasks", zap.Error(err))
	}

	// Terminal outcomes go to desktop notifications and the task event log
	notifier := infrastructure.NewNotificationService(&config.Notify, log)
	supervisor.AddObserver(&taskReporter{
		repo:     repo,
		notifier: notifier,
		multiLog: multiLog,
	})

	// WebSocket event stream
	eventsHandler := handlers.NewEventsHandler(log)
	supervisor.AddObserver(eventsHandler)

	// Setup HTTP router
	router := api.SetupRouter(supervisor, eventsHandler, log, config.Logging.LogsDir)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Cancel running downloads and wait for their terminal outcomes
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping supervisor", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// taskReporter routes terminal outcomes to desktop notifications and the
// task event log
type taskReporter struct {
	repo     domain.TaskRepository
	notifier *infrastructure.NotificationService
	multiLog *logger.MultiLogger
}

func (r *taskReporter) OnProgress(taskID uint, event domain.ProgressEvent) {}

func (r *taskReporter) OnLog(taskID uint, line string) {}

func (r *taskReporter) OnFinished(taskID uint, success bool, message string) {
	task, err := r.repo.Get(taskID)
	if err != nil {
		r.multiLog.LogAppError("Task vanished before outcome was reported",
			zap.Uint("task_id", taskID),
			zap.Error(err))
		return
	}

	r.multiLog.LogTaskEvent("task finished",
		zap.Uint("task_id", taskID),
		zap.String("title", task.Title),
		zap.String("status", string(task.Status)),
		zap.Bool("success", success),
		zap.String("message", message))

	r.notifier.NotifyFinished(task, success, message)
}
