package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ytgrab-go/internal/app"
	"github.com/yourusername/ytgrab-go/internal/domain"
	"go.uber.org/zap"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	supervisor *app.Supervisor
	logger     *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(supervisor *app.Supervisor, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		supervisor: supervisor,
		logger:     logger,
	}
}

// AddTaskRequest represents a request to add a download task
type AddTaskRequest struct {
	URL                 string  `json:"url" binding:"required"`
	SavePath            string  `json:"save_path,omitempty"`
	FormatPreset        string  `json:"format_preset,omitempty"`
	Proxy               *string `json:"proxy,omitempty"`
	ConcurrentFragments *int    `json:"concurrent_fragments,omitempty"`
	WriteSubs           bool    `json:"write_subs,omitempty"`
	DownloadPlaylist    bool    `json:"download_playlist,omitempty"`
	PlaylistItems       *string `json:"playlist_items,omitempty"`
	PlaylistRandom      bool    `json:"playlist_random,omitempty"`
	MaxDownloads        *int    `json:"max_downloads,omitempty"`
	AutoStart           bool    `json:"auto_start,omitempty"`
}

// AddTask handles POST /api/v1/tasks
func (h *TaskHandler) AddTask(c *gin.Context) {
	var req AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.supervisor.Add(domain.TaskConfig{
		URL:                 req.URL,
		SavePath:            req.SavePath,
		FormatPreset:        req.FormatPreset,
		Proxy:               req.Proxy,
		ConcurrentFragments: req.ConcurrentFragments,
		WriteSubs:           req.WriteSubs,
		DownloadPlaylist:    req.DownloadPlaylist,
		PlaylistItems:       req.PlaylistItems,
		PlaylistRandom:      req.PlaylistRandom,
		MaxDownloads:        req.MaxDownloads,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyURL) || errors.Is(err, domain.ErrInvalidSaveDir) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to add task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.AutoStart {
		if err := h.supervisor.Start(task.ID); err != nil {
			h.logger.Error("Failed to auto-start task",
				zap.Uint("task_id", task.ID),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, task)
}

// GetTask handles GET /api/v1/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.supervisor.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// ListTasks handles GET /api/v1/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.supervisor.List()
	if err != nil {
		h.logger.Error("Failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// GetStats handles GET /api/v1/tasks/stats
func (h *TaskHandler) GetStats(c *gin.Context) {
	stats, err := h.supervisor.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetTaskLogs handles GET /api/v1/tasks/:id/logs
func (h *TaskHandler) GetTaskLogs(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	if _, err := h.supervisor.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	lines := h.supervisor.Logs(id)
	c.JSON(http.StatusOK, gin.H{
		"task_id": id,
		"count":   len(lines),
		"lines":   lines,
	})
}

// StartTask handles POST /api/v1/tasks/:id/start
func (h *TaskHandler) StartTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := h.supervisor.Start(id); err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, domain.ErrTaskActive):
			c.JSON(http.StatusConflict, gin.H{"error": "task already running"})
		default:
			h.logger.Error("Failed to start task", zap.Uint("task_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task started"})
}

// CancelTask handles POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := h.supervisor.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		h.logger.Error("Failed to cancel task", zap.Uint("task_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task cancelled"})
}

// DeleteTask handles DELETE /api/v1/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := h.supervisor.Delete(id); err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, domain.ErrTaskActive):
			c.JSON(http.StatusConflict, gin.H{"error": "task is running, cancel it first"})
		default:
			h.logger.Error("Failed to delete task", zap.Uint("task_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

// GetPresets handles GET /api/v1/presets
func (h *TaskHandler) GetPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": domain.FormatPresets})
}

func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return uint(id), true
}
