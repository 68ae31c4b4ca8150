// Package loopguard detects runaway backup trigger loops and suppresses
// them by disabling the offending plan's schedule on the agent. It never
// cancels running operations; in-flight work finishes on its own.
package loopguard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// Store defines the data access the guard needs.
type Store interface {
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	ListEnabledPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error)
	CountRecentBackupOperations(ctx context.Context, scope models.TenantScope, planID uuid.UUID, since time.Time) (int, error)
	GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error)
	GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error)
	UpdatePlanEnabled(ctx context.Context, scope models.TenantScope, planID uuid.UUID, enabled bool) error
}

// AgentClient is the slice of the agent API the guard consumes.
type AgentClient interface {
	GetConfig(ctx context.Context) (*agentapi.Config, error)
	SetConfig(ctx context.Context, cfg *agentapi.Config) (*agentapi.Config, error)
}

// ClientFactory builds an agent client for a server.
type ClientFactory func(server *models.Server) AgentClient

// Config holds guard thresholds.
type Config struct {
	// Window is the trailing interval inspected for trigger loops.
	Window time.Duration
	// Threshold is the backup count at or above which a plan is
	// considered looping.
	Threshold int
}

// DefaultConfig returns production defaults: five backups in ten minutes
// marks a loop.
func DefaultConfig() Config {
	return Config{
		Window:    10 * time.Minute,
		Threshold: 5,
	}
}

// Guard watches operation creation velocity per plan.
type Guard struct {
	store   Store
	clients ClientFactory
	cfg     Config
	logger  zerolog.Logger
}

// New creates a loop guard.
func New(store Store, clients ClientFactory, cfg Config, logger zerolog.Logger) *Guard {
	return &Guard{
		store:   store,
		clients: clients,
		cfg:     cfg,
		logger:  logger.With().Str("component", "loopguard").Logger(),
	}
}

// Run checks every tenant. Failures are isolated per tenant.
func (g *Guard) Run(ctx context.Context) {
	tenants, err := g.store.ListTenants(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("list tenants")
		return
	}
	for _, tenant := range tenants {
		scope := models.Scope(tenant.ID)
		tripped, err := g.CheckTenant(ctx, scope)
		if err != nil {
			g.logger.Error().Err(err).Str("tenant", tenant.Slug).Msg("loop guard check failed")
			continue
		}
		if tripped > 0 {
			g.logger.Warn().Str("tenant", tenant.Slug).Int("tripped", tripped).Msg("looping schedules disabled")
		}
	}
}

// CheckTenant disables the schedule of every plan whose recent backup
// count crosses the threshold. It returns how many plans were tripped.
func (g *Guard) CheckTenant(ctx context.Context, scope models.TenantScope) (int, error) {
	plans, err := g.store.ListEnabledPlans(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("list plans: %w", err)
	}

	since := time.Now().UTC().Add(-g.cfg.Window)
	tripped := 0
	for _, plan := range plans {
		count, err := g.store.CountRecentBackupOperations(ctx, scope, plan.ID, since)
		if err != nil {
			g.logger.Error().Err(err).Str("plan", plan.PlanID).Msg("count recent operations")
			continue
		}
		if count < g.cfg.Threshold {
			continue
		}

		g.logger.Warn().
			Str("plan", plan.PlanID).
			Int("count", count).
			Dur("window", g.cfg.Window).
			Msg("backup loop detected")

		if err := g.disableSchedule(ctx, scope, plan); err != nil {
			g.logger.Error().Err(err).Str("plan", plan.PlanID).Msg("disable looping schedule")
			continue
		}
		metrics.LoopGuardTrips.Inc()
		tripped++
	}
	return tripped, nil
}

// disableSchedule performs the get-then-set round trip that marks the
// plan's schedule disabled on the agent, then mirrors the flag locally.
// Nothing else in the config document is touched.
func (g *Guard) disableSchedule(ctx context.Context, scope models.TenantScope, plan *models.Plan) error {
	repo, err := g.store.GetRepositoryByID(ctx, scope, plan.RepositoryID)
	if err != nil {
		return fmt.Errorf("get repository: %w", err)
	}
	server, err := g.store.GetServerByID(ctx, scope, repo.ServerID)
	if err != nil {
		return fmt.Errorf("get server: %w", err)
	}

	client := g.clients(server)
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("get agent config: %w", err)
	}
	if !cfg.DisablePlanSchedule(plan.PlanID) {
		return fmt.Errorf("plan %s not present in agent config", plan.PlanID)
	}
	if _, err := client.SetConfig(ctx, cfg); err != nil {
		return fmt.Errorf("set agent config: %w", err)
	}

	if err := g.store.UpdatePlanEnabled(ctx, scope, plan.ID, false); err != nil {
		return fmt.Errorf("disable plan locally: %w", err)
	}
	return nil
}
