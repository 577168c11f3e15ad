// internal/api/handler/api/events.go
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/newthinker/presetd/internal/api/response"
	"github.com/newthinker/presetd/internal/lifecycle"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler streams session events over a websocket.
type EventsHandler struct {
	manager *lifecycle.Manager
	logger  *zap.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(manager *lifecycle.Manager, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{manager: manager, logger: logger}
}

// Stream sends the current snapshot, then every event of the session
// until the client disconnects or the session closes.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	c, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// gorilla/websocket forbids concurrent writes.
	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return fn()
	}

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	hello := lifecycle.Event{Type: lifecycle.EventTransition, Snapshot: c.Snapshot(), Time: time.Now()}
	if err := write(func() error { return conn.WriteJSON(hello) }); err != nil {
		return
	}

	connDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case e, ok := <-events:
				if !ok {
					conn.Close()
					return
				}
				if err := write(func() error { return conn.WriteJSON(e) }); err != nil {
					conn.Close()
					return
				}
			case <-ticker.C:
				if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
					conn.Close()
					return
				}
			case <-connDone:
				return
			}
		}
	}()
	defer close(connDone)

	// Clients send nothing meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
