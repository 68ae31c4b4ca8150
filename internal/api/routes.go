// Package api provides the HTTP API for the Backhaul server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/api/handlers"
	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/config"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/orchestrator"
)

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg config.ServerConfig,
	database *db.DB,
	cipher crypto.SecretCipher,
	orch *orchestrator.Service,
	provisioner handlers.Provisioner,
	logger zerolog.Logger,
) (*Router, error) {
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	healthHandler := handlers.NewHealthHandler(database, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Operator routes: tenant management sits outside tenant scoping.
	operator := r.Engine.Group("/api/v1")
	tenantsHandler := handlers.NewTenantsHandler(database, logger)
	tenantsHandler.RegisterRoutes(operator)

	// Tenant-scoped routes.
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.TenantResolver(database, logger))

	credentialsHandler := handlers.NewCredentialsHandler(database, cipher, logger)
	credentialsHandler.RegisterRoutes(apiV1)

	serversHandler := handlers.NewServersHandler(database, provisioner, logger)
	serversHandler.RegisterRoutes(apiV1)

	reposHandler := handlers.NewRepositoriesHandler(database, orch, logger)
	reposHandler.RegisterRoutes(apiV1)

	triggerLimiter, err := middleware.NewRateLimiter(cfg.TriggerRateLimit)
	if err != nil {
		return nil, err
	}
	plansHandler := handlers.NewPlansHandler(database, orch, logger)
	plansHandler.RegisterRoutes(apiV1, triggerLimiter)

	operationsHandler := handlers.NewOperationsHandler(database, logger)
	operationsHandler.RegisterRoutes(apiV1)

	logsHandler := handlers.NewLogsHandler(database, logger)
	logsHandler.RegisterRoutes(apiV1)

	r.logger.Info().Msg("API router initialized")
	return r, nil
}
