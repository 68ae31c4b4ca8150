package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// LogStore defines the interface for log evidence reads.
type LogStore interface {
	ListLogEntries(ctx context.Context, scope models.TenantScope, serverID uuid.UUID, limit int) ([]*models.LogEntry, error)
}

// LogsHandler exposes scraped agent log evidence.
type LogsHandler struct {
	store  LogStore
	logger zerolog.Logger
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(store LogStore, logger zerolog.Logger) *LogsHandler {
	return &LogsHandler{
		store:  store,
		logger: logger.With().Str("component", "logs_handler").Logger(),
	}
}

// RegisterRoutes registers log routes on the given router group.
func (h *LogsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/servers/:id/logs", h.ListForServer)
}

// ListForServer returns recent log evidence for a server, newest first.
// GET /api/v1/servers/:id/logs?limit=200
func (h *LogsHandler) ListForServer(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	serverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return
	}

	limit := 200
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.store.ListLogEntries(c.Request.Context(), scope, serverID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("server_id", serverID.String()).Msg("failed to list log entries")
		respondError(c, err, "list logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}
