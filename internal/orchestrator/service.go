// Package orchestrator composes agent calls with ledger writes for the
// control API: repository and plan creation, backup triggering, and
// snapshot listing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// ErrInvalidInput indicates malformed local input, rejected before any
// remote call.
var ErrInvalidInput = errors.New("invalid input")

// TriggerTimeout bounds the trigger call. The agent may legitimately
// take longer than this to answer while the backup still starts, so a
// timeout is treated as likely-started rather than failure.
const TriggerTimeout = 5 * time.Second

// Store defines the data access the orchestrator needs.
type Store interface {
	GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error)
	GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error)
	CreateRepository(ctx context.Context, scope models.TenantScope, repo *models.Repository) error
	GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error)
	CreatePlan(ctx context.Context, scope models.TenantScope, plan *models.Plan) error
	CreateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error
}

// AgentClient is the slice of the agent API the orchestrator consumes.
type AgentClient interface {
	Backup(ctx context.Context, planID string) error
	AddRepo(ctx context.Context, repo agentapi.Repo) (*agentapi.Config, error)
	GetConfig(ctx context.Context) (*agentapi.Config, error)
	SetConfig(ctx context.Context, cfg *agentapi.Config) (*agentapi.Config, error)
	ListSnapshots(ctx context.Context, repoID, planID string) ([]agentapi.Snapshot, error)
}

// ClientFactory builds an agent client for a server.
type ClientFactory func(server *models.Server) AgentClient

// Service orchestrates agent configuration and backup triggering.
type Service struct {
	store   Store
	clients ClientFactory
	cipher  crypto.SecretCipher
	logger  zerolog.Logger
}

// New creates an orchestrator service.
func New(store Store, clients ClientFactory, cipher crypto.SecretCipher, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		clients: clients,
		cipher:  cipher,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}
}

// TriggerResult reports the outcome of a backup trigger.
type TriggerResult struct {
	Operation *models.Operation `json:"operation"`
	// Reported is "started" when the agent acknowledged the trigger and
	// "initiated" when the call timed out and the run is presumed
	// started. The next reconciliation pass confirms or corrects.
	Reported string `json:"reported"`
}

// TriggerBackup starts a backup for a plan. The agent call uses a short
// timeout; an unreachable or slow agent yields a synthesized operation
// id and a local running record instead of an error. A clear agent
// rejection is surfaced and no record is created.
func (s *Service) TriggerBackup(ctx context.Context, scope models.TenantScope, planID uuid.UUID) (*TriggerResult, error) {
	plan, err := s.store.GetPlanByID(ctx, scope, planID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	repo, err := s.store.GetRepositoryByID(ctx, scope, plan.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	server, err := s.store.GetServerByID(ctx, scope, repo.ServerID)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}

	client := s.clients(server)
	tctx, cancel := context.WithTimeout(ctx, TriggerTimeout)
	defer cancel()

	reported := "started"
	if err := client.Backup(tctx, plan.PlanID); err != nil {
		if _, rejected := agentapi.IsRejected(err); rejected {
			return nil, fmt.Errorf("trigger backup for %s: %w", plan.PlanID, err)
		}
		// Timeout or transport failure: the run may well have started.
		reported = "initiated"
		s.logger.Warn().Err(err).Str("plan", plan.PlanID).Msg("trigger unconfirmed, recording presumed start")
	}

	now := time.Now().UTC()
	op := models.NewOperation(scope, repo.ID, &plan.ID, models.SynthesizeOperationID(plan.PlanID, now), models.OperationTypeBackup, models.OperationStatusRunning)
	op.StartedAt = &now
	if err := s.store.CreateOperation(ctx, scope, op); err != nil {
		return nil, fmt.Errorf("record triggered operation: %w", err)
	}

	return &TriggerResult{Operation: op, Reported: reported}, nil
}

// CreateRepository registers a repository on the owning server's agent
// and records it locally. The external repository id is derived from the
// name once and never changes.
func (s *Service) CreateRepository(ctx context.Context, scope models.TenantScope, serverID uuid.UUID, name, uri, password string) (*models.Repository, error) {
	if name == "" || uri == "" {
		return nil, fmt.Errorf("%w: name and uri are required", ErrInvalidInput)
	}
	server, err := s.store.GetServerByID(ctx, scope, serverID)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}

	repoID := externalID(name)
	client := s.clients(server)
	if _, err := client.AddRepo(ctx, agentapi.NewRepo(repoID, uri, password)); err != nil {
		return nil, fmt.Errorf("register repository on agent: %w", err)
	}

	encrypted, err := s.cipher.EncryptString(password)
	if err != nil {
		return nil, fmt.Errorf("encrypt repository password: %w", err)
	}

	repo := models.NewRepository(scope, server.ID, name, repoID, uri, encrypted)
	if err := s.store.CreateRepository(ctx, scope, repo); err != nil {
		return nil, fmt.Errorf("record repository: %w", err)
	}
	return repo, nil
}

// CreatePlan adds a plan to the agent's configuration via the get-then-
// set round trip and records it locally. The serialized retention policy
// always carries every period bucket.
func (s *Service) CreatePlan(ctx context.Context, scope models.TenantScope, repositoryID uuid.UUID, name string, paths, excludes []string, schedule string, retention models.RetentionPolicy) (*models.Plan, error) {
	if name == "" || len(paths) == 0 {
		return nil, fmt.Errorf("%w: name and at least one path are required", ErrInvalidInput)
	}
	repo, err := s.store.GetRepositoryByID(ctx, scope, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	server, err := s.store.GetServerByID(ctx, scope, repo.ServerID)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}

	planID := externalID(name)
	client := s.clients(server)
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("get agent config: %w", err)
	}

	agentPlan := agentapi.Plan{
		ID:        planID,
		Repo:      repo.RepositoryID,
		Paths:     paths,
		Excludes:  normalizeSlice(excludes),
		IExcludes: []string{},
		Retention: &agentapi.Retention{PolicyTimeBucketed: retentionPolicy(retention)},
	}
	if schedule != "" {
		agentPlan.Schedule = agentapi.CronSchedule(strings.TrimSpace(schedule))
	} else {
		agentPlan.Schedule = agentapi.DisabledSchedule()
	}
	cfg.UpsertPlan(agentPlan)

	if _, err := client.SetConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("set agent config: %w", err)
	}

	plan := models.NewPlan(scope, repo.ID, name, planID, paths, strings.TrimSpace(schedule))
	plan.Excludes = normalizeSlice(excludes)
	plan.Retention = retention
	plan.Enabled = schedule != ""
	if err := s.store.CreatePlan(ctx, scope, plan); err != nil {
		return nil, fmt.Errorf("record plan: %w", err)
	}
	return plan, nil
}

// ListSnapshots returns the snapshots the agent reports for a repository.
func (s *Service) ListSnapshots(ctx context.Context, scope models.TenantScope, repositoryID uuid.UUID, planExternalID string) ([]agentapi.Snapshot, error) {
	repo, err := s.store.GetRepositoryByID(ctx, scope, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	server, err := s.store.GetServerByID(ctx, scope, repo.ServerID)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	snapshots, err := s.clients(server).ListSnapshots(ctx, repo.RepositoryID, planExternalID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// retentionPolicy converts the local policy, defaulting keepLastN to 7
// when every bucket is zero so the agent never receives an empty policy.
func retentionPolicy(r models.RetentionPolicy) agentapi.TimeBucketedPolicy {
	p := agentapi.TimeBucketedPolicy{
		KeepLastN: r.KeepLastN,
		Hourly:    r.KeepHourly,
		Daily:     r.KeepDaily,
		Weekly:    r.KeepWeekly,
		Monthly:   r.KeepMonthly,
		Yearly:    r.KeepYearly,
	}
	if p == (agentapi.TimeBucketedPolicy{}) {
		p.KeepLastN = 7
	}
	return p
}

// externalID derives the agent-side identifier from a display name.
func externalID(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

func normalizeSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
