package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// ServerStore defines the interface for server persistence operations.
type ServerStore interface {
	CreateServer(ctx context.Context, scope models.TenantScope, server *models.Server) error
	GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error)
	ListServers(ctx context.Context, scope models.TenantScope) ([]*models.Server, error)
	GetCredentialByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Credential, error)
}

// Provisioner drives agent installation on servers.
type Provisioner interface {
	TestConnection(ctx context.Context, scope models.TenantScope, server *models.Server) error
	InstallAgent(ctx context.Context, scope models.TenantScope, server *models.Server) error
	ConfigureInstance(ctx context.Context, scope models.TenantScope, server *models.Server, instanceID, username, password string) error
}

// ServersHandler handles server endpoints including the provisioning
// actions.
type ServersHandler struct {
	store       ServerStore
	provisioner Provisioner
	logger      zerolog.Logger
}

// NewServersHandler creates a new ServersHandler.
func NewServersHandler(store ServerStore, provisioner Provisioner, logger zerolog.Logger) *ServersHandler {
	return &ServersHandler{
		store:       store,
		provisioner: provisioner,
		logger:      logger.With().Str("component", "servers_handler").Logger(),
	}
}

// RegisterRoutes registers server routes on the given router group.
func (h *ServersHandler) RegisterRoutes(r *gin.RouterGroup) {
	servers := r.Group("/servers")
	{
		servers.GET("", h.List)
		servers.POST("", h.Create)
		servers.GET("/:id", h.Get)
		servers.POST("/:id/test-connection", h.TestConnection)
		servers.POST("/:id/install", h.Install)
		servers.POST("/:id/configure", h.Configure)
	}
}

// CreateServerRequest is the request body for registering a server.
type CreateServerRequest struct {
	Hostname     string    `json:"hostname" binding:"required,min=1,max=255"`
	SSHPort      int       `json:"ssh_port,omitempty"`
	SSHUser      string    `json:"ssh_user" binding:"required,min=1,max=255"`
	CredentialID uuid.UUID `json:"credential_id" binding:"required"`
	AgentPort    int       `json:"agent_port,omitempty"`
}

// Create registers a server in pending state.
// POST /api/v1/servers
func (h *ServersHandler) Create(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	var req CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetCredentialByID(c.Request.Context(), scope, req.CredentialID); err != nil {
		respondError(c, err, "credential")
		return
	}

	server := models.NewServer(scope, req.Hostname, req.SSHUser, req.CredentialID)
	if req.SSHPort > 0 {
		server.SSHPort = req.SSHPort
	}
	if req.AgentPort > 0 {
		server.AgentPort = req.AgentPort
	}

	if err := h.store.CreateServer(c.Request.Context(), scope, server); err != nil {
		h.logger.Error().Err(err).Str("hostname", req.Hostname).Msg("failed to create server")
		respondError(c, err, "server")
		return
	}
	c.JSON(http.StatusCreated, server)
}

// List returns the tenant's servers.
// GET /api/v1/servers
func (h *ServersHandler) List(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}

	servers, err := h.store.ListServers(c.Request.Context(), scope)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list servers")
		respondError(c, err, "list servers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

// Get returns one server.
// GET /api/v1/servers/:id
func (h *ServersHandler) Get(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	server, ok := h.lookup(c, scope)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, server)
}

// TestConnection verifies SSH reachability.
// POST /api/v1/servers/:id/test-connection
func (h *ServersHandler) TestConnection(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	server, ok := h.lookup(c, scope)
	if !ok {
		return
	}

	if err := h.provisioner.TestConnection(c.Request.Context(), scope, server); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": server.Status, "error": server.ErrorMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": server.Status})
}

// Install installs the backup agent.
// POST /api/v1/servers/:id/install
func (h *ServersHandler) Install(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	server, ok := h.lookup(c, scope)
	if !ok {
		return
	}

	if err := h.provisioner.InstallAgent(c.Request.Context(), scope, server); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": server.Status, "error": server.ErrorMessage})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": server.Status, "agent_version": server.AgentVersion})
}

// ConfigureServerRequest is the request body for configuring an agent.
type ConfigureServerRequest struct {
	InstanceID string `json:"instance_id" binding:"required,min=1,max=255"`
	Username   string `json:"username" binding:"required,min=1,max=255"`
	Password   string `json:"password" binding:"required,min=8"`
}

// Configure sets the agent's instance id and login user.
// POST /api/v1/servers/:id/configure
func (h *ServersHandler) Configure(c *gin.Context) {
	scope, ok := middleware.RequireScope(c)
	if !ok {
		return
	}
	server, ok := h.lookup(c, scope)
	if !ok {
		return
	}

	var req ConfigureServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provisioner.ConfigureInstance(c.Request.Context(), scope, server, req.InstanceID, req.Username, req.Password); err != nil {
		h.logger.Error().Err(err).Str("server_id", server.ID.String()).Msg("failed to configure agent")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to configure agent", "status": server.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": server.Status, "instance_id": server.InstanceID})
}

func (h *ServersHandler) lookup(c *gin.Context, scope models.TenantScope) (*models.Server, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
		return nil, false
	}
	server, err := h.store.GetServerByID(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, err, "server")
		return nil, false
	}
	return server, true
}
