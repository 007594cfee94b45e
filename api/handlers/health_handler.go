package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ytgrab-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	supervisor *app.Supervisor
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(supervisor *app.Supervisor) *HealthHandler {
	return &HealthHandler{
		supervisor: supervisor,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	ActiveTasks int    `json:"active_tasks"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     "1.0.0",
		ActiveTasks: h.supervisor.ActiveCount(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	// readiness requires the task store to answer
	if _, err := h.supervisor.Stats(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "task store unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
