package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/models"
)

const scopeContextKey = "tenant_scope"

// TenantHeader carries the caller's tenant identity.
const TenantHeader = "X-Tenant-ID"

// TenantStore verifies that a tenant exists.
type TenantStore interface {
	GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// TenantResolver resolves the X-Tenant-ID header into a TenantScope and
// rejects requests for unknown tenants. Every scoped route sits behind it.
func TenantResolver(store TenantStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "tenant_resolver").Logger()

	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing " + TenantHeader + " header"})
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
			return
		}

		if _, err := store.GetTenantByID(c.Request.Context(), tenantID); err != nil {
			log.Warn().Err(err).Str("tenant_id", raw).Msg("tenant lookup failed")
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
			return
		}

		c.Set(scopeContextKey, models.Scope(tenantID))
		c.Next()
	}
}

// WithScope injects a fixed tenant scope, bypassing header resolution.
func WithScope(scope models.TenantScope) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(scopeContextKey, scope)
		c.Next()
	}
}

// RequireScope returns the resolved tenant scope. It aborts the request
// if the resolver did not run, which indicates a routing mistake.
func RequireScope(c *gin.Context) (models.TenantScope, bool) {
	v, ok := c.Get(scopeContextKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant scope not resolved"})
		return models.TenantScope{}, false
	}
	scope, ok := v.(models.TenantScope)
	if !ok || !scope.Valid() {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant scope not resolved"})
		return models.TenantScope{}, false
	}
	return scope, true
}
