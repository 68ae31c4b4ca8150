package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// RepositoryStore defines the interface for repository reads.
type RepositoryStore interface {
	ListRepositories(ctx context.Context, scope models.TenantScope) ([]*models.Repository, error)
	GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error)
}

// RepositoryOrchestrator composes agent registration with local rows.
type RepositoryOrchestrator interface {
	CreateRepository(ctx context.Context, scope models.TenantScope, serverID uuid.UUID, name, uri, password string) (*models.Repository, error)
	ListSnapshots(ctx context.Context, scope models.TenantScope, repositoryID uuid.UUID, planExternalID string) ([]agentapi.Snapshot, error)
}

// RepositoriesHandler handles repository endpoints.
type RepositoriesHandler struct {
	store        RepositoryStore
	orchestrator RepositoryOrchestrator
	logger       zerolog.Logger
}

// NewRepositoriesHandler creates a new RepositoriesHandler.
func NewRepositoriesHandler(store RepositoryStore, orchestrator RepositoryOrchestrator, logger zerolog.Logger) *RepositoriesHandler {
	return &RepositoriesHandler{
		store:        store,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "repositories_handler").Logger(),
	}
}

// RegisterRoutes registers repository routes on the given router group.
func (h *RepositoriesHandler) RegisterRoutes(r *gin.RouterGroup) {
	repos := r.Group("/repositories")
	{
		repos.GET("", h.List)
		repos.POST("", h.Create)
		repos.GET("/:id", h.Get)
		repos.GET("/:id/snapshots", h.Snapshots)
	}
}

// CreateRepositoryRequest is the request body for creating a repository.
type CreateRepositoryRequest struct {
	ServerID uuid.UUID `json:"server_id" binding:"required"`
	Name     string    `json:"name" binding:"required,min=1,max=255"`
	URI      string    `json:"uri" binding:"required"`
	Password string    `json:"password" binding:"required"`
}

// Create registers a repository on the agent and records it.
// POST /api/v1/repositories
func (h *RepositoriesHandler) Create(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	var req CreateRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repo, err := h.orchestrator.CreateRepository(c.Request.Context(), scope, req.ServerID, req.Name, req.URI, req.Password)
	if err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create repository")
		respondError(c, err, "repository")
		return
	}
	c.JSON(http.StatusCreated, repo)
}

// List returns the tenant's repositories.
// GET /api/v1/repositories
func (h *RepositoriesHandler) List(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	repos, err := h.store.ListRepositories(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list repositories")
		respondError(c, err, "list repositories")
		return
	}
	c.JSON(http.StatusOK, gin.H{"repositories": repos})
}

// Get returns one repository.
// GET /api/v1/repositories/:id
func (h *RepositoriesHandler) Get(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository id"})
		return
	}
	repo, err := h.store.GetRepositoryByID(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, err, "repository")
		return
	}
	c.JSON(http.StatusOK, repo)
}

// Snapshots returns the agent-reported snapshots for a repository.
// GET /api/v1/repositories/:id/snapshots
func (h *RepositoriesHandler) Snapshots(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository id"})
		return
	}

	snapshots, err := h.orchestrator.ListSnapshots(c.Request.Context(), scope, id, c.Query("plan_id"))
	if err != nil {
		h.logger.Error().Err(err).Str("repository_id", id.String()).Msg("failed to list snapshots")
		respondError(c, err, "list snapshots")
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}
