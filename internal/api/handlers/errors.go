// Package handlers implements the HTTP control surface.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/orchestrator"
)

// respondError maps service errors onto HTTP statuses with a stable
// error body.
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg + " not found"})
	case errors.Is(err, db.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": msg + " already exists"})
	case errors.Is(err, orchestrator.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, agentapi.ErrAgentUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "agent unavailable"})
	default:
		if _, rejected := agentapi.IsRejected(err); rejected {
			c.JSON(http.StatusBadGateway, gin.H{"error": "agent rejected request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + msg})
	}
}
