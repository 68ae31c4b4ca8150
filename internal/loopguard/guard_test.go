package loopguard

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/models"
)

type fakeStore struct {
	tenants      []*models.Tenant
	plans        []*models.Plan
	repos        map[uuid.UUID]*models.Repository
	servers      map[uuid.UUID]*models.Server
	recentCounts map[uuid.UUID]int
	disabled     []uuid.UUID
}

func (s *fakeStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	return s.tenants, nil
}

func (s *fakeStore) ListEnabledPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error) {
	var out []*models.Plan
	for _, p := range s.plans {
		if p.TenantID == scope.TenantID && p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) CountRecentBackupOperations(ctx context.Context, scope models.TenantScope, planID uuid.UUID, since time.Time) (int, error) {
	return s.recentCounts[planID], nil
}

func (s *fakeStore) GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error) {
	r, ok := s.repos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error) {
	srv, ok := s.servers[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return srv, nil
}

func (s *fakeStore) UpdatePlanEnabled(ctx context.Context, scope models.TenantScope, planID uuid.UUID, enabled bool) error {
	if !enabled {
		s.disabled = append(s.disabled, planID)
	}
	return nil
}

type fakeAgent struct {
	cfg        *agentapi.Config
	setConfigs []*agentapi.Config
}

func (a *fakeAgent) GetConfig(ctx context.Context) (*agentapi.Config, error) {
	clone := *a.cfg
	return &clone, nil
}

func (a *fakeAgent) SetConfig(ctx context.Context, cfg *agentapi.Config) (*agentapi.Config, error) {
	a.setConfigs = append(a.setConfigs, cfg)
	return cfg, nil
}

func newGuardEnv() (*Guard, *fakeStore, *fakeAgent, models.TenantScope, *models.Plan) {
	store := &fakeStore{
		repos:        make(map[uuid.UUID]*models.Repository),
		servers:      make(map[uuid.UUID]*models.Server),
		recentCounts: make(map[uuid.UUID]int),
	}
	tenant := models.NewTenant("Acme", "acme")
	store.tenants = append(store.tenants, tenant)
	scope := models.Scope(tenant.ID)

	server := models.NewServer(scope, "host1.example.com", "root", uuid.New())
	server.MarkInstalled("1.9.1")
	store.servers[server.ID] = server

	repo := models.NewRepository(scope, server.ID, "Primary", "primary_repo", "s3:bucket", "enc")
	store.repos[repo.ID] = repo

	plan := models.NewPlan(scope, repo.ID, "Web Daily", "web_daily", []string{"/srv/www"}, "0 2 * * *")
	store.plans = append(store.plans, plan)

	agent := &fakeAgent{cfg: &agentapi.Config{
		Modno: 3,
		Plans: []agentapi.Plan{
			{ID: "web_daily", Repo: "primary_repo", Schedule: agentapi.CronSchedule("0 2 * * *")},
			{ID: "db_hourly", Repo: "primary_repo", Schedule: agentapi.CronSchedule("0 * * * *")},
		},
	}}

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	guard := New(store, func(*models.Server) AgentClient { return agent }, DefaultConfig(), logger)
	return guard, store, agent, scope, plan
}

func TestGuardDisablesLoopingSchedule(t *testing.T) {
	guard, store, agent, scope, plan := newGuardEnv()
	store.recentCounts[plan.ID] = 6

	tripped, err := guard.CheckTenant(context.Background(), scope)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if tripped != 1 {
		t.Fatalf("tripped = %d, want 1", tripped)
	}

	if len(agent.setConfigs) != 1 {
		t.Fatalf("SetConfig called %d times, want 1", len(agent.setConfigs))
	}
	sent := agent.setConfigs[0]
	if sent.Modno != 3 {
		t.Errorf("modno = %d, want 3", sent.Modno)
	}
	if p := sent.FindPlan("web_daily"); p == nil || p.Schedule == nil || !p.Schedule.Disabled {
		t.Error("looping schedule not disabled in agent config")
	}
	if p := sent.FindPlan("db_hourly"); p == nil || p.Schedule == nil || p.Schedule.Disabled || p.Schedule.Cron != "0 * * * *" {
		t.Error("unrelated plan was touched")
	}

	if len(store.disabled) != 1 || store.disabled[0] != plan.ID {
		t.Error("plan not disabled locally")
	}
}

func TestGuardBelowThresholdDoesNothing(t *testing.T) {
	guard, store, agent, scope, plan := newGuardEnv()
	store.recentCounts[plan.ID] = 4

	tripped, err := guard.CheckTenant(context.Background(), scope)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if tripped != 0 || len(agent.setConfigs) != 0 || len(store.disabled) != 0 {
		t.Fatal("guard acted below threshold")
	}
}
