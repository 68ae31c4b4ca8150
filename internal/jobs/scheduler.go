// Package jobs wires the periodic background passes: reconciliation,
// tasklog ingestion, schedule projection, and the loop guard.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/models"
)

// Reconciler runs operation reconciliation and tasklog ingestion.
type Reconciler interface {
	Run(ctx context.Context)
	IngestTenantTaskLogs(ctx context.Context, scope models.TenantScope) error
}

// Projector creates placeholder operations for upcoming runs.
type Projector interface {
	Run(ctx context.Context)
}

// LoopGuard disables runaway schedules.
type LoopGuard interface {
	Run(ctx context.Context)
}

// TenantLister enumerates tenants for per-tenant passes.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}

// Config holds the pass intervals.
type Config struct {
	ReconcileInterval time.Duration
	TaskLogInterval   time.Duration
	ProjectInterval   time.Duration
	LoopGuardInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 2 * time.Minute,
		TaskLogInterval:   10 * time.Minute,
		ProjectInterval:   time.Minute,
		LoopGuardInterval: 5 * time.Minute,
	}
}

// Scheduler runs the background passes on their intervals.
type Scheduler struct {
	store      TenantLister
	reconciler Reconciler
	projector  Projector
	guard      LoopGuard
	cfg        Config
	cron       *cron.Cron
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for the background passes.
func NewScheduler(store TenantLister, reconciler Reconciler, projector Projector, guard LoopGuard, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		reconciler: reconciler,
		projector:  projector,
		guard:      guard,
		cfg:        cfg,
		cron:       cron.New(),
		logger:     logger.With().Str("component", "jobs").Logger(),
	}
}

// Start registers every pass and begins the schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("job scheduler already running")
	}

	entries := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"reconcile", s.cfg.ReconcileInterval, s.runReconcile},
		{"tasklog_ingest", s.cfg.TaskLogInterval, s.runTaskLogIngest},
		{"project_schedules", s.cfg.ProjectInterval, s.runProjection},
		{"loop_guard", s.cfg.LoopGuardInterval, s.runLoopGuard},
	}
	for _, e := range entries {
		spec := fmt.Sprintf("@every %s", e.interval)
		if _, err := s.cron.AddFunc(spec, e.run); err != nil {
			return fmt.Errorf("register %s job: %w", e.name, err)
		}
		s.logger.Info().Str("job", e.name).Dur("interval", e.interval).Msg("job registered")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("job scheduler started")
	return nil
}

// Stop stops the scheduler gracefully. The returned context is done once
// in-flight jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping job scheduler")
	return s.cron.Stop()
}

func (s *Scheduler) runReconcile() {
	s.reconciler.Run(context.Background())
}

// runTaskLogIngest ingests tasklog evidence for every tenant. Tenant
// failures are isolated.
func (s *Scheduler) runTaskLogIngest() {
	ctx := context.Background()
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list tenants for tasklog ingest")
		return
	}
	for _, tenant := range tenants {
		scope := models.Scope(tenant.ID)
		if err := s.reconciler.IngestTenantTaskLogs(ctx, scope); err != nil {
			s.logger.Error().Err(err).Str("tenant", tenant.Slug).Msg("tasklog ingest failed")
		}
	}
}

func (s *Scheduler) runProjection() {
	s.projector.Run(context.Background())
}

func (s *Scheduler) runLoopGuard() {
	s.guard.Run(context.Background())
}

// RunReconcileNow triggers an immediate reconciliation pass.
func (s *Scheduler) RunReconcileNow() {
	s.runReconcile()
}

// RunTaskLogIngestNow triggers an immediate tasklog ingest pass.
func (s *Scheduler) RunTaskLogIngestNow() {
	s.runTaskLogIngest()
}
