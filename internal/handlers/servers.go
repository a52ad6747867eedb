package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imyashkale/fleetctl/internal/console"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/middleware"
	"github.com/imyashkale/fleetctl/internal/models"
)

// Fleet is the server management surface the HTTP layer drives
type Fleet interface {
	ListServers() []models.ServerSummary
	GetServer(id string) (models.ServerEntry, error)
	RegisterServer(cfg models.ServerConfig, startupFile string) (models.ServerEntry, error)
	UpdateServer(id string, patch models.ServerPatch) (models.ServerEntry, error)
	RemoveServer(id string) error
	GetStatus(id string) (models.ServerStatus, error)
	SetStartupFile(id, path string) (models.StartupArtifact, error)
	Start(ctx context.Context, id string) (models.StartResult, error)
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) (models.StartResult, error)
	SendCommand(ctx context.Context, id, text string) error
	ListFiles(ctx context.Context, id, rel string) (string, []models.FileEntry, error)
	Console(id string) ([]string, int, error)
	SubscribeConsole(id string) ([]string, *console.Subscription, error)
}

// ServerHandler handles server management requests
type ServerHandler struct {
	fleet Fleet
}

// NewServerHandler creates a new server handler
func NewServerHandler(fleet Fleet) *ServerHandler {
	return &ServerHandler{
		fleet: fleet,
	}
}

func auditFields(c *gin.Context, id string) map[string]interface{} {
	return map[string]interface{}{
		"server_id": id,
		"user_id":   middleware.UserID(c),
	}
}

// List handles listing every server with its status
func (h *ServerHandler) List(c *gin.Context) {
	servers := h.fleet.ListServers()
	c.JSON(http.StatusOK, models.ServerListResponse{
		Servers: servers,
		Total:   len(servers),
	})
}

// Get handles fetching one server config
func (h *ServerHandler) Get(c *gin.Context) {
	entry, err := h.fleet.GetServer(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry.ToResponse())
}

// Create handles adding a server config
func (h *ServerHandler) Create(c *gin.Context) {
	var req models.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	cfg := req.ToDomain()
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	entry, err := h.fleet.RegisterServer(cfg, req.StartupFile)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(auditFields(c, cfg.ID)).Info("Server added")
	c.JSON(http.StatusCreated, entry.ToResponse())
}

// Update handles a partial config update
func (h *ServerHandler) Update(c *gin.Context) {
	var req models.UpdateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	entry, err := h.fleet.UpdateServer(c.Param("id"), req.ToDomain())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry.ToResponse())
}

// Delete handles removing a stopped server
func (h *ServerHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.fleet.RemoveServer(id); err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(auditFields(c, id)).Info("Server removed")
	c.Status(http.StatusNoContent)
}

// Status handles fetching the runtime status of a server
func (h *ServerHandler) Status(c *gin.Context) {
	status, err := h.fleet.GetStatus(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// SetStartupFile handles selecting the launcher file of a server
func (h *ServerHandler) SetStartupFile(c *gin.Context) {
	var req models.SetStartupFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	id := c.Param("id")
	artifact, err := h.fleet.SetStartupFile(id, req.StartupFile)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           id,
		"startup_file": artifact.SelectedPath,
		"validated":    artifact.Validated,
	})
}

// Start handles starting a server. The call returns once the server is
// running or the start has failed.
func (h *ServerHandler) Start(c *gin.Context) {
	id := c.Param("id")
	logger.WithFields(auditFields(c, id)).Info("Start requested")

	res, err := h.fleet.Start(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           id,
		"status":       models.StatusRunning,
		"startup_file": res.StartupFile,
		"command":      res.Command,
	})
}

// Stop handles stopping a server
func (h *ServerHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	logger.WithFields(auditFields(c, id)).Info("Stop requested")

	if err := h.fleet.Stop(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": models.StatusStopped,
	})
}

// Restart handles a stop followed by a start
func (h *ServerHandler) Restart(c *gin.Context) {
	id := c.Param("id")
	logger.WithFields(auditFields(c, id)).Info("Restart requested")

	res, err := h.fleet.Restart(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           id,
		"status":       models.StatusRunning,
		"startup_file": res.StartupFile,
		"command":      res.Command,
	})
}

// SendCommand handles writing one line to a running server's console
func (h *ServerHandler) SendCommand(c *gin.Context) {
	var req models.SendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	id := c.Param("id")
	if err := h.fleet.SendCommand(c.Request.Context(), id, req.Command); err != nil {
		respondError(c, err)
		return
	}

	fields := auditFields(c, id)
	fields["command"] = req.Command
	logger.WithFields(fields).Info("Console command sent")
	c.Status(http.StatusAccepted)
}

// ListFiles handles listing a directory below the server's remote path
func (h *ServerHandler) ListFiles(c *gin.Context) {
	rel, files, err := h.fleet.ListFiles(c.Request.Context(), c.Param("id"), c.Query("path"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.FileListResponse{
		Path:  rel,
		Files: files,
	})
}

// Console handles fetching the buffered console output
func (h *ServerHandler) Console(c *gin.Context) {
	id := c.Param("id")
	lines, capacity, err := h.fleet.Console(id)
	if err != nil {
		respondError(c, err)
		return
	}

	if tail := c.Query("tail"); tail != "" {
		n, err := strconv.Atoi(tail)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "tail must be a non-negative integer",
			})
			return
		}
		if n < len(lines) {
			lines = lines[len(lines)-n:]
		}
	}

	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, models.ConsoleResponse{
		ServerId: id,
		Lines:    lines,
		Capacity: capacity,
	})
}
