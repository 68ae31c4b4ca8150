// Package schedule projects upcoming plan executions into placeholder
// operation records. The projection is advisory bookkeeping for
// visibility; the agent itself decides when a plan actually fires, and
// reconciliation replaces the placeholder once real evidence appears.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// Store defines the data access the projector needs.
type Store interface {
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	ListEnabledPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error)
	HasUpcomingOperation(ctx context.Context, scope models.TenantScope, planID uuid.UUID, minute time.Time) (bool, error)
	CreateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error
}

// Projector creates placeholder operations for upcoming plan runs.
type Projector struct {
	store  Store
	parser cron.Parser
	logger zerolog.Logger
}

// New creates a projector.
func New(store Store, logger zerolog.Logger) *Projector {
	return &Projector{
		store:  store,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger: logger.With().Str("component", "schedule_projector").Logger(),
	}
}

// Run projects schedules for every tenant. Failures are isolated per
// tenant.
func (p *Projector) Run(ctx context.Context) {
	tenants, err := p.store.ListTenants(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("list tenants")
		return
	}
	for _, tenant := range tenants {
		scope := models.Scope(tenant.ID)
		created, err := p.ProjectTenant(ctx, scope)
		if err != nil {
			p.logger.Error().Err(err).Str("tenant", tenant.Slug).Msg("schedule projection failed")
			continue
		}
		if created > 0 {
			p.logger.Info().Str("tenant", tenant.Slug).Int("created", created).Msg("scheduled operations projected")
		}
	}
}

// ProjectTenant computes the next fire time of every enabled plan and
// creates a placeholder operation unless one already targets that
// minute. Invoking it twice for an unchanged fire time is a no-op.
func (p *Projector) ProjectTenant(ctx context.Context, scope models.TenantScope) (int, error) {
	plans, err := p.store.ListEnabledPlans(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("list plans: %w", err)
	}

	created := 0
	now := time.Now().UTC()
	for _, plan := range plans {
		if plan.Schedule == "" {
			continue
		}
		sched, err := p.parser.Parse(plan.Schedule)
		if err != nil {
			p.logger.Warn().Err(err).Str("plan", plan.PlanID).Str("cron", plan.Schedule).Msg("invalid schedule, skipping")
			continue
		}

		fireAt := sched.Next(now).Truncate(time.Minute)
		exists, err := p.store.HasUpcomingOperation(ctx, scope, plan.ID, fireAt)
		if err != nil {
			return created, fmt.Errorf("check upcoming operation for %s: %w", plan.PlanID, err)
		}
		if exists {
			continue
		}

		op := models.NewScheduledOperation(scope, plan.RepositoryID, plan.ID, plan.PlanID, fireAt)
		if err := p.store.CreateOperation(ctx, scope, op); err != nil {
			return created, fmt.Errorf("create scheduled operation for %s: %w", plan.PlanID, err)
		}
		created++
	}

	metrics.ScheduledOperationsProjected.Add(float64(created))
	return created, nil
}
