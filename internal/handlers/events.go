package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/imyashkale/fleetctl/internal/events"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// EventsHandler streams bus events over websockets
type EventsHandler struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(bus *events.Bus, checkOrigin func(r *http.Request) bool) *EventsHandler {
	return &EventsHandler{
		bus:      bus,
		upgrader: newUpgrader(checkOrigin),
	}
}

// Stream forwards events, optionally narrowed with ?types=a,b and
// ?server_id=x
func (h *EventsHandler) Stream(c *gin.Context) {
	var types []models.EventType
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, models.EventType(t))
		}
	}
	serverID := c.Query("server_id")

	sub := h.bus.Subscribe(types...)
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Events websocket upgrade failed")
		return
	}
	ws := newWSConn(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				_ = ws.send(StreamFrame{Type: FrameClosed, Message: "event bus closed"})
				ws.close("event bus closed")
				return
			}
			if serverID != "" && evt.ServerID != serverID {
				continue
			}
			if err := ws.send(StreamFrame{Type: FrameEvent, Event: evt}); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			_ = conn.Close()
			if n := sub.Dropped(); n > 0 {
				logger.WithField("dropped", n).Debug("Event stream closed after dropping events")
			}
			return
		}
	}
}
