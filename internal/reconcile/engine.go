// Package reconcile maintains the canonical local record of every agent
// operation. It merges agent-reported state and raw log evidence into
// the operation ledger with idempotent, write-once state transitions.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// Store defines the data access the engine needs.
type Store interface {
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	ListRepositories(ctx context.Context, scope models.TenantScope) ([]*models.Repository, error)
	GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error)
	GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error)
	ListServers(ctx context.Context, scope models.TenantScope) ([]*models.Server, error)
	GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error)
	GetPlanByExternalID(ctx context.Context, scope models.TenantScope, planID string) (*models.Plan, error)
	GetOperationByExternalID(ctx context.Context, scope models.TenantScope, operationID string) (*models.Operation, error)
	CreateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error
	UpdateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error
	ListActiveOperations(ctx context.Context, scope models.TenantScope) ([]*models.Operation, error)
	InsertLogEntries(ctx context.Context, scope models.TenantScope, entries []*models.LogEntry) (int, error)
}

// AgentClient is the slice of the agent API the engine consumes.
type AgentClient interface {
	GetOperations(ctx context.Context, sel agentapi.OperationSelector) ([]agentapi.Operation, error)
}

// ClientFactory builds an agent client for a server.
type ClientFactory func(server *models.Server) AgentClient

// LogFetcher retrieves raw log evidence from an agent host.
type LogFetcher interface {
	FetchProcessLog(ctx context.Context, server *models.Server, maxLines int) ([]byte, error)
	FetchTaskLogs(ctx context.Context, server *models.Server) ([]TaskLogEntry, error)
}

// Config holds engine tuning.
type Config struct {
	// ProcessLogLines bounds how much of the agent's process log is
	// fetched per corroboration pass.
	ProcessLogLines int
	// LockTTL bounds a distributed per-repository lease.
	LockTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ProcessLogLines: 1000,
		LockTTL:         5 * time.Minute,
	}
}

// Summary reports the outcome of one reconciliation pass.
type Summary struct {
	Created int
	Updated int
	Errors  int
}

// Engine reconciles local operation records against agent state.
type Engine struct {
	store   Store
	clients ClientFactory
	fetcher LogFetcher
	cfg     Config
	locks   *repoLocks
	dist    *distributedLock
	logger  zerolog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithDistributedLock serializes passes across multiple control-plane
// instances using Redis.
func WithDistributedLock(client *redis.Client) Option {
	return func(e *Engine) {
		e.dist = newDistributedLock(client, e.cfg.LockTTL, e.logger)
	}
}

// New creates a reconciliation engine.
func New(store Store, clients ClientFactory, fetcher LogFetcher, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		clients: clients,
		fetcher: fetcher,
		cfg:     cfg,
		locks:   newRepoLocks(),
		logger:  logger.With().Str("component", "reconcile").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a poll-merge pass followed by log corroboration for every
// tenant. One tenant's failure never aborts the others.
func (e *Engine) Run(ctx context.Context) {
	tenants, err := e.store.ListTenants(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("list tenants")
		return
	}

	for _, tenant := range tenants {
		scope := models.Scope(tenant.ID)
		summary, err := e.ReconcileTenant(ctx, scope)
		if err != nil {
			e.logger.Error().Err(err).Str("tenant", tenant.Slug).Msg("tenant reconciliation failed")
			metrics.ReconcilePassErrors.Inc()
			continue
		}
		if err := e.CorroborateTenantLogs(ctx, scope); err != nil {
			e.logger.Error().Err(err).Str("tenant", tenant.Slug).Msg("log corroboration failed")
			metrics.ReconcilePassErrors.Inc()
		}
		e.logger.Info().
			Str("tenant", tenant.Slug).
			Int("created", summary.Created).
			Int("updated", summary.Updated).
			Int("errors", summary.Errors).
			Msg("reconciliation pass complete")
	}
}

// ReconcileTenant merges agent-reported operations into the ledger for
// every repository of one tenant. Repositories reconcile in parallel;
// each repository's pass is serialized.
func (e *Engine) ReconcileTenant(ctx context.Context, scope models.TenantScope) (Summary, error) {
	repos, err := e.store.ListRepositories(ctx, scope)
	if err != nil {
		return Summary{}, fmt.Errorf("list repositories: %w", err)
	}

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	for _, repo := range repos {
		wg.Add(1)
		go func(repo *models.Repository) {
			defer wg.Done()
			created, updated, err := e.reconcileRepository(ctx, scope, repo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors++
				e.logger.Error().Err(err).Str("repository", repo.RepositoryID).Msg("repository reconciliation failed")
				return
			}
			summary.Created += created
			summary.Updated += updated
		}(repo)
	}
	wg.Wait()

	metrics.OperationsCreated.Add(float64(summary.Created))
	metrics.OperationsUpdated.Add(float64(summary.Updated))
	return summary, nil
}

func (e *Engine) reconcileRepository(ctx context.Context, scope models.TenantScope, repo *models.Repository) (created, updated int, err error) {
	unlock := e.locks.Lock(repo.ID)
	defer unlock()

	if e.dist != nil {
		release, ok := e.dist.TryAcquire(ctx, repo.ID)
		if !ok {
			return 0, 0, nil
		}
		defer release()
	}

	server, err := e.store.GetServerByID(ctx, scope, repo.ServerID)
	if err != nil {
		return 0, 0, fmt.Errorf("get server: %w", err)
	}
	if server.Status != models.ServerStatusAgentInstalled {
		return 0, 0, nil
	}

	client := e.clients(server)
	ops, err := client.GetOperations(ctx, agentapi.OperationSelector{RepoID: repo.RepositoryID})
	if err != nil {
		return 0, 0, fmt.Errorf("list agent operations: %w", err)
	}

	now := time.Now().UTC()
	for _, raw := range ops {
		// Operations without our identifier prefix were triggered outside
		// this system; adopting them would pollute the ledger.
		if raw.ID == "" || !models.OwnsOperationID(raw.ID) {
			continue
		}

		status := NormalizeStatus(raw.Status)
		existing, err := e.store.GetOperationByExternalID(ctx, scope, raw.ID)
		switch {
		case err == nil:
			if existing.Advance(status, raw.SnapshotID, raw.Stats, errorMessage(raw), now) {
				if err := e.store.UpdateOperation(ctx, scope, existing); err != nil {
					return created, updated, fmt.Errorf("update operation %s: %w", raw.ID, err)
				}
				updated++
			}
		case errors.Is(err, db.ErrNotFound):
			op := e.discoverOperation(ctx, scope, repo, raw, status, now)
			if err := e.store.CreateOperation(ctx, scope, op); err != nil {
				return created, updated, fmt.Errorf("create operation %s: %w", raw.ID, err)
			}
			created++
		default:
			return created, updated, fmt.Errorf("lookup operation %s: %w", raw.ID, err)
		}
	}
	return created, updated, nil
}

// discoverOperation builds a local record for an agent-reported operation
// the ledger has never seen. The plan reference stays null when the
// external plan id does not resolve.
func (e *Engine) discoverOperation(ctx context.Context, scope models.TenantScope, repo *models.Repository, raw agentapi.Operation, status models.OperationStatus, now time.Time) *models.Operation {
	var planRef *uuid.UUID
	if raw.PlanID != "" {
		if plan, err := e.store.GetPlanByExternalID(ctx, scope, raw.PlanID); err == nil {
			planRef = &plan.ID
		}
	}

	initial := models.OperationStatusPending
	op := models.NewOperation(scope, repo.ID, planRef, raw.ID, NormalizeType(raw.Type), initial)
	if raw.UnixTimeStartMs > 0 {
		t := time.UnixMilli(raw.UnixTimeStartMs).UTC()
		op.StartedAt = &t
	}
	op.Advance(status, raw.SnapshotID, raw.Stats, errorMessage(raw), now)
	return op
}

func errorMessage(raw agentapi.Operation) string {
	if NormalizeStatus(raw.Status) == models.OperationStatusFailed {
		return raw.DisplayMessage
	}
	return ""
}
