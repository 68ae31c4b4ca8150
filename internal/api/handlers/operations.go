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

// OperationStore defines the interface for operation reads.
type OperationStore interface {
	ListOperations(ctx context.Context, scope models.TenantScope, limit int) ([]*models.Operation, error)
	GetOperationByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Operation, error)
}

// OperationsHandler exposes the operation ledger read-only. Writes happen
// only through reconciliation, projection, and triggering.
type OperationsHandler struct {
	store  OperationStore
	logger zerolog.Logger
}

// NewOperationsHandler creates a new OperationsHandler.
func NewOperationsHandler(store OperationStore, logger zerolog.Logger) *OperationsHandler {
	return &OperationsHandler{
		store:  store,
		logger: logger.With().Str("component", "operations_handler").Logger(),
	}
}

// RegisterRoutes registers operation routes on the given router group.
func (h *OperationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	ops := r.Group("/operations")
	{
		ops.GET("", h.List)
		ops.GET("/:id", h.Get)
	}
}

// List returns recent operations, newest first.
// GET /api/v1/operations?limit=100
func (h *OperationsHandler) List(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	ops, err := h.store.ListOperations(c.Request.Context(), scope, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list operations")
		respondError(c, err, "list operations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

// Get returns one operation.
// GET /api/v1/operations/:id
func (h *OperationsHandler) Get(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return
	}
	op, err := h.store.GetOperationByID(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, err, "operation")
		return
	}
	c.JSON(http.StatusOK, op)
}
