package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/fleetctl/internal/models"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditSource reads back recorded audit history
type AuditSource interface {
	History(ctx context.Context, serverID string, limit int) ([]models.AuditRecord, error)
}

// AuditHandler serves the audit history of a server
type AuditHandler struct {
	fleet  Fleet
	source AuditSource
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(fleet Fleet, source AuditSource) *AuditHandler {
	return &AuditHandler{
		fleet:  fleet,
		source: source,
	}
}

// List handles fetching recent audit records of a server, newest first
func (h *AuditHandler) List(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.fleet.GetServer(id); err != nil {
		respondError(c, err)
		return
	}

	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "limit must be between 1 and " + strconv.Itoa(maxAuditLimit),
			})
			return
		}
		limit = n
	}

	records, err := h.source.History(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"server_id": id,
		"records":   records,
	})
}
