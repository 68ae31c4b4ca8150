package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/models"
	"github.com/MacJediWizard/backhaul/internal/orchestrator"
)

// PlanStore defines the interface for plan reads.
type PlanStore interface {
	ListPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error)
	GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error)
}

// PlanOrchestrator composes agent config writes with local rows.
type PlanOrchestrator interface {
	CreatePlan(ctx context.Context, scope models.TenantScope, repositoryID uuid.UUID, name string, paths, excludes []string, schedule string, retention models.RetentionPolicy) (*models.Plan, error)
	TriggerBackup(ctx context.Context, scope models.TenantScope, planID uuid.UUID) (*orchestrator.TriggerResult, error)
}

// PlansHandler handles plan endpoints including the backup trigger.
type PlansHandler struct {
	store        PlanStore
	orchestrator PlanOrchestrator
	logger       zerolog.Logger
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(store PlanStore, orchestrator PlanOrchestrator, logger zerolog.Logger) *PlansHandler {
	return &PlansHandler{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "plans_handler").Logger(),
	}
}

// RegisterRoutes registers plan routes on the given router group. The
// trigger route takes extra middleware so it can be rate limited.
func (h *PlansHandler) RegisterRoutes(r *gin.RouterGroup, triggerMiddleware ...gin.HandlerFunc) {
	plans := r.Group("/plans")
	{
		plans.GET("", h.List)
		plans.POST("", h.Create)
		plans.GET("/:id", h.Get)
		plans.POST("/:id/backup", append(triggerMiddleware, h.TriggerBackup)...)
	}
}

// CreatePlanRequest is the request body for creating a plan.
type CreatePlanRequest struct {
	RepositoryID uuid.UUID              `json:"repository_id" binding:"required"`
	Name         string                 `json:"name" binding:"required,min=1,max=255"`
	Paths        []string               `json:"paths" binding:"required,min=1"`
	Excludes     []string               `json:"excludes,omitempty"`
	Schedule     string                 `json:"schedule,omitempty"`
	Retention    models.RetentionPolicy `json:"retention"`
}

// Create appends a plan to the agent's config and records it.
// POST /api/v1/plans
func (h *PlansHandler) Create(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := h.orchestrator.CreatePlan(c.Request.Context(), scope, req.RepositoryID,
		req.Name, req.Paths, req.Excludes, req.Schedule, req.Retention)
	if err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create plan")
		respondError(c, err, "plan")
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// List returns the tenant's plans.
// GET /api/v1/plans
func (h *PlansHandler) List(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	plans, err := h.store.ListPlans(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list plans")
		respondError(c, err, "list plans")
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// Get returns one plan.
// GET /api/v1/plans/:id
func (h *PlansHandler) Get(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}
	plan, err := h.store.GetPlanByID(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, err, "plan")
		return
	}
	c.JSON(http.StatusOK, plan)
}

// TriggerBackup starts a backup for a plan. An unreachable agent still
// yields 202 with a synthesized operation; the reconciler settles it.
// POST /api/v1/plans/:id/backup
func (h *PlansHandler) TriggerBackup(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	result, err := h.orchestrator.TriggerBackup(c.Request.Context(), scope, id)
	if err != nil {
		h.logger.Error().Err(err).Str("plan_id", id.String()).Msg("failed to trigger backup")
		respondError(c, err, "trigger backup")
		return
	}
	c.JSON(http.StatusAccepted, result)
}
