package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/models"
)

// TenantStore defines the interface for tenant persistence operations.
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}

// TenantsHandler handles tenant endpoints. These are operator-level and
// sit outside the tenant-scoped route group.
type TenantsHandler struct {
	store  TenantStore
	logger zerolog.Logger
}

// NewTenantsHandler creates a new TenantsHandler.
func NewTenantsHandler(store TenantStore, logger zerolog.Logger) *TenantsHandler {
	return &TenantsHandler{
		store:  store,
		logger: logger.With().Str("component", "tenants_handler").Logger(),
	}
}

// RegisterRoutes registers tenant routes on the given router group.
func (h *TenantsHandler) RegisterRoutes(r *gin.RouterGroup) {
	tenants := r.Group("/tenants")
	{
		tenants.GET("", h.List)
		tenants.POST("", h.Create)
	}
}

// CreateTenantRequest is the request body for creating a tenant.
type CreateTenantRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
	Slug string `json:"slug" binding:"required,min=1,max=255"`
}

// Create creates a tenant.
// POST /api/v1/tenants
func (h *TenantsHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant := models.NewTenant(req.Name, req.Slug)
	if err := h.store.CreateTenant(c.Request.Context(), tenant); err != nil {
		h.logger.Error().Err(err).Str("slug", req.Slug).Msg("failed to create tenant")
		respondError(c, err, "tenant")
		return
	}
	c.JSON(http.StatusCreated, tenant)
}

// List returns all tenants.
// GET /api/v1/tenants
func (h *TenantsHandler) List(c *gin.Context) {
	tenants, err := h.store.ListTenants(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tenants")
		respondError(c, err, "list tenants")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants})
}
