// Package main is the entrypoint for the Backhaul control-plane server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/api"
	"github.com/MacJediWizard/backhaul/internal/config"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/jobs"
	"github.com/MacJediWizard/backhaul/internal/loopguard"
	"github.com/MacJediWizard/backhaul/internal/models"
	"github.com/MacJediWizard/backhaul/internal/orchestrator"
	"github.com/MacJediWizard/backhaul/internal/provision"
	"github.com/MacJediWizard/backhaul/internal/reconcile"
	"github.com/MacJediWizard/backhaul/internal/schedule"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("BACKHAUL_ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Backhaul server")

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	cipher, err := loadCipher(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize encryption key")
		return 1
	}

	// Each consumer gets its own client per server so agent timeouts and
	// logging context stay per-call.
	agentClient := func(server *models.Server) *agentapi.Client {
		return agentapi.NewClient(server.AgentURL(), cfg.AgentTimeout, logger)
	}

	var reconcileOpts []reconcile.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		reconcileOpts = append(reconcileOpts, reconcile.WithDistributedLock(rdb))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Distributed reconcile locks enabled")
	}

	fetcher := reconcile.NewSSHLogFetcher(database, cipher, logger)
	engine := reconcile.New(
		database,
		func(s *models.Server) reconcile.AgentClient { return agentClient(s) },
		fetcher,
		reconcile.DefaultConfig(),
		logger,
		reconcileOpts...,
	)

	projector := schedule.New(database, logger)

	guard := loopguard.New(
		database,
		func(s *models.Server) loopguard.AgentClient { return agentClient(s) },
		loopguard.DefaultConfig(),
		logger,
	)

	provCfg := provision.DefaultConfig()
	if playbook := os.Getenv("BACKHAUL_ANSIBLE_PLAYBOOK"); playbook != "" {
		provCfg.UseAnsible = true
		provCfg.PlaybookPath = playbook
	}
	provisioner := provision.New(
		database,
		cipher,
		provision.DefaultDialer,
		func(s *models.Server) provision.ConfigClient { return agentClient(s) },
		provCfg,
		logger,
	)

	orch := orchestrator.New(
		database,
		func(s *models.Server) orchestrator.AgentClient { return agentClient(s) },
		cipher,
		logger,
	)

	scheduler := jobs.NewScheduler(database, engine, projector, guard, jobs.Config{
		ReconcileInterval: cfg.ReconcileInterval,
		TaskLogInterval:   cfg.TaskLogInterval,
		ProjectInterval:   cfg.ProjectInterval,
		LoopGuardInterval: cfg.LoopGuardInterval,
	}, logger)

	router, err := api.NewRouter(cfg, database, cipher, orch, provisioner, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start job scheduler")
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Let in-flight background passes drain before closing the pool.
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}

// loadCipher builds the secret cipher from either the configured hex key
// or an on-disk key file created on first boot.
func loadCipher(cfg config.ServerConfig, logger zerolog.Logger) (*crypto.AESCipher, error) {
	var (
		key []byte
		err error
	)
	if cfg.EncryptionKey != "" {
		key, err = crypto.KeyFromHex(cfg.EncryptionKey)
	} else {
		logger.Info().Str("path", cfg.EncryptionKeyFile).Msg("Loading encryption key from file")
		key, err = crypto.LoadOrCreateKeyFile(cfg.EncryptionKeyFile)
	}
	if err != nil {
		return nil, err
	}
	return crypto.NewAESCipher(key)
}
