package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// CredentialStore defines the interface for credential persistence
// operations.
type CredentialStore interface {
	CreateCredential(ctx context.Context, scope models.TenantScope, cred *models.Credential) error
	ListCredentials(ctx context.Context, scope models.TenantScope) ([]*models.Credential, error)
}

// CredentialsHandler handles SSH credential endpoints. Key material is
// encrypted before it reaches the store and never serialized back out.
type CredentialsHandler struct {
	store  CredentialStore
	cipher crypto.SecretCipher
	logger zerolog.Logger
}

// NewCredentialsHandler creates a new CredentialsHandler.
func NewCredentialsHandler(store CredentialStore, cipher crypto.SecretCipher, logger zerolog.Logger) *CredentialsHandler {
	return &CredentialsHandler{
		store:  store,
		cipher: cipher,
		logger: logger.With().Str("component", "credentials_handler").Logger(),
	}
}

// RegisterRoutes registers credential routes on the given router group.
func (h *CredentialsHandler) RegisterRoutes(r *gin.RouterGroup) {
	creds := r.Group("/credentials")
	{
		creds.GET("", h.List)
		creds.POST("", h.Create)
	}
}

// CreateCredentialRequest is the request body for creating a credential.
type CreateCredentialRequest struct {
	Name       string `json:"name" binding:"required,min=1,max=255"`
	SSHUser    string `json:"ssh_user" binding:"required,min=1,max=255"`
	PrivateKey string `json:"private_key" binding:"required"`
}

// Create stores an SSH credential.
// POST /api/v1/credentials
func (h *CredentialsHandler) Create(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	var req CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	encrypted, err := h.cipher.EncryptString(req.PrivateKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encrypt private key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create credential"})
		return
	}

	cred := models.NewCredential(scope, req.Name, req.SSHUser, encrypted)
	if err := h.store.CreateCredential(c.Request.Context(), scope, cred); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create credential")
		respondError(c, err, "credential")
		return
	}
	c.JSON(http.StatusCreated, cred)
}

// List returns the tenant's credentials, key material excluded.
// GET /api/v1/credentials
func (h *CredentialsHandler) List(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	creds, err := h.store.ListCredentials(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list credentials")
		respondError(c, err, "list credentials")
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}
