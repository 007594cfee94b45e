package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/ytgrab-go/internal/domain"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// eventBufferSize bounds the frames queued per client; a client that cannot
// keep up loses frames instead of stalling the progress path
const eventBufferSize = 256

// EventFrame is one message on the event stream
type EventFrame struct {
	Type    string      `json:"type"` // progress, log, finished
	TaskID  uint        `json:"task_id"`
	Payload interface{} `json:"payload"`
}

type logPayload struct {
	Line string `json:"line"`
}

type finishedPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EventsHandler streams task progress, log lines, and terminal outcomes to
// WebSocket clients. It implements domain.Observer and is registered with the
// supervisor at startup. Each client gets a bounded frame queue drained by its
// own writer goroutine, so broadcasting never blocks the caller.
type EventsHandler struct {
	logger  *zap.Logger
	mu      sync.Mutex
	clients map[chan EventFrame]struct{}
}

// NewEventsHandler creates a new WebSocket event stream handler
func NewEventsHandler(logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		logger:  logger,
		clients: make(map[chan EventFrame]struct{}),
	}
}

// HandleWebSocket handles GET /api/v1/events
func (h *EventsHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	frames := make(chan EventFrame, eventBufferSize)
	h.mu.Lock()
	h.clients[frames] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, frames)
		h.mu.Unlock()
	}()

	h.logger.Info("Event stream client connected",
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Drain client messages so control frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case frame := <-frames:
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.Debug("Failed to send event frame", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// OnProgress broadcasts a progress snapshot
func (h *EventsHandler) OnProgress(taskID uint, event domain.ProgressEvent) {
	h.broadcast(EventFrame{Type: "progress", TaskID: taskID, Payload: event})
}

// OnLog broadcasts one engine log line
func (h *EventsHandler) OnLog(taskID uint, line string) {
	h.broadcast(EventFrame{Type: "log", TaskID: taskID, Payload: logPayload{Line: line}})
}

// OnFinished broadcasts a terminal outcome
func (h *EventsHandler) OnFinished(taskID uint, success bool, message string) {
	h.broadcast(EventFrame{Type: "finished", TaskID: taskID, Payload: finishedPayload{
		Success: success,
		Message: message,
	}})
}

// broadcast queues the frame for every client without blocking; frames for
// clients with a full queue are dropped
func (h *EventsHandler) broadcast(frame EventFrame) {
	h.mu.Lock()
	channels := make([]chan EventFrame, 0, len(h.clients))
	for ch := range h.clients {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- frame:
		default:
			// slow client; the writer goroutine is behind
		}
	}
}
