package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/dago-direct/pkg/adapters/events/memory"
	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dial(t *testing.T, runID string) (*websocket.Conn, *memory.InMemoryEventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := memory.NewInMemoryEventBus(64, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = bus.Close() })

	router := gin.New()
	router.GET("/runs/:id/ws", NewHandler(bus, 8, zaptest.NewLogger(t)).HandleRunStream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + runID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bus
}

// receive publishes the events until the client reads a message; the
// handler subscribes only after the upgrade completes.
func receive(t *testing.T, conn *websocket.Conn, bus *memory.InMemoryEventBus, events ...domain.Event) domain.Event {
	t.Helper()

	got := make(chan domain.Event, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var e domain.Event
		if json.Unmarshal(data, &e) == nil {
			got <- e
		}
	}()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case e := <-got:
			return e
		case <-deadline:
			t.Fatal("no event received")
		case <-tick.C:
			for _, e := range events {
				require.NoError(t, bus.Publish(context.Background(), domain.EventsTopic, e))
			}
		}
	}
}

func TestHandleRunStream_FiltersByRun(t *testing.T) {
	conn, bus := dial(t, "run-1")

	e := receive(t, conn, bus,
		domain.Event{ID: "other", RunID: "run-2", Type: domain.EventTypeRunStarted},
		domain.Event{ID: "mine", RunID: "run-1", Type: domain.EventTypeBundleCommitted},
	)
	assert.Equal(t, "mine", e.ID)
	assert.Equal(t, domain.EventTypeBundleCommitted, e.Type)
}

func TestHandleRunStream_Current(t *testing.T) {
	conn, bus := dial(t, "current")

	e := receive(t, conn, bus, domain.Event{ID: "any", RunID: "run-9", Type: domain.EventTypeRunCompleted})
	assert.Equal(t, "run-9", e.RunID)
}

func TestForward_DropsWhenFull(t *testing.T) {
	h := NewHandler(nil, 1, zaptest.NewLogger(t))
	ch := make(chan domain.Event, 1)
	forward := h.forward("run-1", ch)

	require.NoError(t, forward(context.Background(), domain.Event{ID: "1", RunID: "run-1"}))
	require.NoError(t, forward(context.Background(), domain.Event{ID: "2", RunID: "run-1"}))
	require.NoError(t, forward(context.Background(), domain.Event{ID: "3", RunID: "run-2"}))

	require.Len(t, ch, 1)
	assert.Equal(t, "1", (<-ch).ID)
}
