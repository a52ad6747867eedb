package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// respondError renders err with its mapped code and HTTP status
func respondError(c *gin.Context, err error) {
	code, status := models.ErrorCode(err)
	entry := logger.WithFields(map[string]interface{}{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
		"error":  err.Error(),
	})
	if status >= 500 {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}

// respondBadRequest renders a request body validation failure
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}
