package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	buffer   int
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler. buffer bounds the events
// queued for one slow client.
func NewHandler(eventBus ports.EventBus, buffer int, logger *zap.Logger) *Handler {
	if buffer < 1 {
		buffer = 64
	}
	return &Handler{
		eventBus: eventBus,
		buffer:   buffer,
		logger:   logger,
	}
}

// HandleRunStream streams the events of one run. The id "current" streams
// every run.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	// Upgrade connection
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	eventChan := make(chan domain.Event, h.buffer)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := h.eventBus.Subscribe(ctx, domain.EventsTopic, h.forward(runID, eventChan)); err != nil {
		h.logger.Error("failed to subscribe to events",
			zap.String("topic", domain.EventsTopic),
			zap.Error(err))
		return
	}

	// The read loop only detects the client going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send events to client
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

// forward returns an event handler queueing the run's events for the client
func (h *Handler) forward(runID string, ch chan<- domain.Event) ports.EventHandler {
	return func(ctx context.Context, event domain.Event) error {
		if runID != "current" && event.RunID != runID {
			return nil
		}

		// Send to channel (non-blocking)
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}
