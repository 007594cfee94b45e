package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/ytgrab-go/api/handlers"
	"github.com/yourusername/ytgrab-go/api/middleware"
	"github.com/yourusername/ytgrab-go/internal/app"
)

// SetupRouter sets up the HTTP router. The events handler is created by the
// caller so it can be registered as a supervisor observer before serving.
func SetupRouter(
	supervisor *app.Supervisor,
	eventsHandler *handlers.EventsHandler,
	log *zap.Logger,
	logsDir string,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(supervisor)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		taskHandler := handlers.NewTaskHandler(supervisor, log)
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.AddTask)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/stats", taskHandler.GetStats)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.GET("/:id/logs", taskHandler.GetTaskLogs)
			tasks.POST("/:id/start", taskHandler.StartTask)
			tasks.POST("/:id/cancel", taskHandler.CancelTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
		}

		v1.GET("/presets", taskHandler.GetPresets)
		v1.GET("/events", eventsHandler.HandleWebSocket)

		// Application log endpoints
		logHandler := handlers.NewLogHandler(logsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	return router
}
