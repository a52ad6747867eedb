package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/middleware"
	"github.com/imyashkale/fleetctl/internal/models"
)

const commandTimeout = 10 * time.Second

// ConsoleHandler streams server consoles over websockets
type ConsoleHandler struct {
	fleet    Fleet
	upgrader websocket.Upgrader
}

// NewConsoleHandler creates a new console handler. checkOrigin may be nil
// to accept every origin.
func NewConsoleHandler(fleet Fleet, checkOrigin func(r *http.Request) bool) *ConsoleHandler {
	return &ConsoleHandler{
		fleet:    fleet,
		upgrader: newUpgrader(checkOrigin),
	}
}

// Stream sends the console snapshot followed by every new line. Admins may
// send {"command": "..."} frames which are written to the server console.
func (h *ConsoleHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	lines, sub, err := h.fleet.SubscribeConsole(id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithServer(id).WithField("error", err.Error()).Warn("Console websocket upgrade failed")
		return
	}
	ws := newWSConn(conn)
	log := logger.WithServer(id).WithField("user_id", middleware.UserID(c))
	log.Debug("Console stream attached")

	if lines == nil {
		lines = []string{}
	}
	if err := ws.send(StreamFrame{Type: FrameSnapshot, Lines: lines}); err != nil {
		_ = conn.Close()
		return
	}

	done := make(chan struct{})
	go h.readCommands(ws, id, middleware.HasRole(c, middleware.RoleAdmin), done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case line, ok := <-sub.C():
			if !ok {
				reason := "console closed"
				if sub.Lagged() {
					reason = "subscriber lagged"
				}
				_ = ws.send(StreamFrame{Type: FrameClosed, Message: reason})
				ws.close(reason)
				log.WithField("reason", reason).Debug("Console stream detached")
				return
			}
			if err := ws.send(StreamFrame{Type: FrameLine, Line: line}); err != nil {
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
			log.Debug("Console stream closed by client")
			return
		}
	}
}

// readCommands runs until the client goes away, then closes done
func (h *ConsoleHandler) readCommands(ws *wsConn, id string, canWrite bool, done chan<- struct{}) {
	defer close(done)

	for {
		var req models.SendCommandRequest
		if err := ws.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithServer(id).WithField("error", err.Error()).Debug("Console websocket read ended")
			}
			return
		}

		if !canWrite {
			_ = ws.send(StreamFrame{Type: FrameError, Error: "forbidden", Message: "Sending commands requires the admin role"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err := h.fleet.SendCommand(ctx, id, req.Command)
		cancel()
		if err != nil {
			code, _ := models.ErrorCode(err)
			_ = ws.send(StreamFrame{Type: FrameError, Error: code, Message: err.Error()})
			continue
		}
		_ = ws.send(StreamFrame{Type: FrameAck, Message: req.Command})
	}
}
