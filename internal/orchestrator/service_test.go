package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/models"
)

type fakeStore struct {
	servers    map[uuid.UUID]*models.Server
	repos      map[uuid.UUID]*models.Repository
	plans      map[uuid.UUID]*models.Plan
	operations []*models.Operation
	createdRepos []*models.Repository
	createdPlans []*models.Plan
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		servers: make(map[uuid.UUID]*models.Server),
		repos:   make(map[uuid.UUID]*models.Repository),
		plans:   make(map[uuid.UUID]*models.Plan),
	}
}

func (s *fakeStore) GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error) {
	srv, ok := s.servers[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return srv, nil
}

func (s *fakeStore) GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error) {
	r, ok := s.repos[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) CreateRepository(ctx context.Context, scope models.TenantScope, repo *models.Repository) error {
	s.repos[repo.ID] = repo
	s.createdRepos = append(s.createdRepos, repo)
	return nil
}

func (s *fakeStore) GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) CreatePlan(ctx context.Context, scope models.TenantScope, plan *models.Plan) error {
	s.plans[plan.ID] = plan
	s.createdPlans = append(s.createdPlans, plan)
	return nil
}

func (s *fakeStore) CreateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error {
	s.operations = append(s.operations, op)
	return nil
}

type fakeAgent struct {
	backupErr  error
	backupCalls []string
	cfg        *agentapi.Config
	setConfigs []*agentapi.Config
	addedRepos []agentapi.Repo
	snapshots  []agentapi.Snapshot
}

func (a *fakeAgent) Backup(ctx context.Context, planID string) error {
	a.backupCalls = append(a.backupCalls, planID)
	return a.backupErr
}

func (a *fakeAgent) AddRepo(ctx context.Context, repo agentapi.Repo) (*agentapi.Config, error) {
	a.addedRepos = append(a.addedRepos, repo)
	return a.cfg, nil
}

func (a *fakeAgent) GetConfig(ctx context.Context) (*agentapi.Config, error) {
	clone := *a.cfg
	return &clone, nil
}

func (a *fakeAgent) SetConfig(ctx context.Context, cfg *agentapi.Config) (*agentapi.Config, error) {
	a.setConfigs = append(a.setConfigs, cfg)
	return cfg, nil
}

func (a *fakeAgent) ListSnapshots(ctx context.Context, repoID, planID string) ([]agentapi.Snapshot, error) {
	return a.snapshots, nil
}

func testCipher(t *testing.T) crypto.SecretCipher {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c, err := crypto.NewAESCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return c
}

func newEnv(t *testing.T) (*Service, *fakeStore, *fakeAgent, models.TenantScope, *models.Plan) {
	t.Helper()
	store := newFakeStore()
	scope := models.Scope(uuid.New())

	server := models.NewServer(scope, "host1.example.com", "root", uuid.New())
	server.MarkInstalled("1.9.1")
	store.servers[server.ID] = server

	repo := models.NewRepository(scope, server.ID, "Primary", "primary_repo", "s3:bucket/path", "enc")
	store.repos[repo.ID] = repo

	plan := models.NewPlan(scope, repo.ID, "Web Daily", "web_daily", []string{"/srv/www"}, "0 2 * * *")
	store.plans[plan.ID] = plan

	agent := &fakeAgent{cfg: &agentapi.Config{Modno: 7}}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	svc := New(store, func(*models.Server) AgentClient { return agent }, testCipher(t), logger)
	return svc, store, agent, scope, plan
}

func TestTriggerBackupStarted(t *testing.T) {
	svc, store, agent, scope, plan := newEnv(t)

	res, err := svc.TriggerBackup(context.Background(), scope, plan.ID)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.Reported != "started" {
		t.Errorf("reported = %q, want started", res.Reported)
	}
	if len(agent.backupCalls) != 1 || agent.backupCalls[0] != "web_daily" {
		t.Fatalf("backup calls = %v", agent.backupCalls)
	}
	if len(store.operations) != 1 {
		t.Fatalf("operations = %d, want 1", len(store.operations))
	}
	op := store.operations[0]
	if op.Status != models.OperationStatusRunning {
		t.Errorf("status = %s, want running", op.Status)
	}
	if !strings.HasPrefix(op.OperationID, models.TriggeredOpPrefix+"web_daily_") {
		t.Errorf("operation_id = %q lacks triggered prefix", op.OperationID)
	}
	if op.StartedAt == nil {
		t.Error("started_at not set")
	}
}

func TestTriggerBackupTimeoutSynthesizes(t *testing.T) {
	svc, store, _, scope, plan := newEnv(t)

	// Unreachable agent: the run may still have started, so the trigger
	// reports initiated and a running record is created locally.
	slow := &fakeAgent{backupErr: fmt.Errorf("%w: dial tcp: connection refused", agentapi.ErrAgentUnavailable)}
	svc.clients = func(*models.Server) AgentClient { return slow }

	res, err := svc.TriggerBackup(context.Background(), scope, plan.ID)
	if err != nil {
		t.Fatalf("trigger should not fail on unreachable agent: %v", err)
	}
	if res.Reported != "initiated" {
		t.Errorf("reported = %q, want initiated", res.Reported)
	}
	if len(store.operations) != 1 {
		t.Fatalf("operations = %d, want 1", len(store.operations))
	}
	op := store.operations[0]
	if op.Status != models.OperationStatusRunning {
		t.Errorf("status = %s, want running", op.Status)
	}
	if !models.OwnsOperationID(op.OperationID) {
		t.Errorf("synthesized id %q is not owned", op.OperationID)
	}
	if op.PlanID == nil || *op.PlanID != plan.ID {
		t.Error("operation not attached to plan")
	}
}

func TestTriggerBackupRejectionSurfaces(t *testing.T) {
	svc, store, agent, scope, plan := newEnv(t)
	agent.backupErr = &agentapi.RejectedError{StatusCode: 400, Detail: "unknown plan"}

	_, err := svc.TriggerBackup(context.Background(), scope, plan.ID)
	if err == nil {
		t.Fatal("expected error on agent rejection")
	}
	if _, ok := agentapi.IsRejected(err); !ok {
		t.Errorf("error %v is not a rejection", err)
	}
	if len(store.operations) != 0 {
		t.Error("rejected trigger must not create a record")
	}
}

func TestCreateRepositoryRegistersAndRecords(t *testing.T) {
	svc, store, agent, scope, _ := newEnv(t)
	var serverID uuid.UUID
	for id := range store.servers {
		serverID = id
	}

	repo, err := svc.CreateRepository(context.Background(), scope, serverID, "Offsite Copy", "s3:bucket/offsite", "secret")
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	if repo.RepositoryID != "offsite_copy" {
		t.Errorf("repository_id = %q, want offsite_copy", repo.RepositoryID)
	}
	if len(agent.addedRepos) != 1 {
		t.Fatalf("AddRepo calls = %d, want 1", len(agent.addedRepos))
	}
	added := agent.addedRepos[0]
	if added.ID != "offsite_copy" || added.Password != "secret" {
		t.Errorf("agent repo = %+v", added)
	}
	if added.PrunePolicy == nil || added.PrunePolicy.MaxUnusedPercent != 10 {
		t.Error("default prune policy missing")
	}
	if repo.PasswordEncrypted == "secret" || repo.PasswordEncrypted == "" {
		t.Error("password stored unencrypted")
	}
}

func TestCreateRepositoryValidation(t *testing.T) {
	svc, store, _, scope, _ := newEnv(t)

	_, err := svc.CreateRepository(context.Background(), scope, uuid.New(), "", "s3:bucket", "pw")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(store.createdRepos) != 0 {
		t.Error("invalid input created a record")
	}
}

func TestCreatePlanRoundTripsConfig(t *testing.T) {
	svc, store, agent, scope, _ := newEnv(t)
	var repoID uuid.UUID
	for id := range store.repos {
		repoID = id
	}

	retention := models.RetentionPolicy{KeepDaily: 14, KeepWeekly: 4}
	plan, err := svc.CreatePlan(context.Background(), scope, repoID, "DB Hourly", []string{"/var/lib/db"}, nil, "0 * * * *", retention)
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if plan.PlanID != "db_hourly" || !plan.Enabled {
		t.Errorf("plan = %+v", plan)
	}

	if len(agent.setConfigs) != 1 {
		t.Fatalf("SetConfig calls = %d, want 1", len(agent.setConfigs))
	}
	sent := agent.setConfigs[0]
	if sent.Modno != 7 {
		t.Errorf("modno = %d, want 7", sent.Modno)
	}
	ap := sent.FindPlan("db_hourly")
	if ap == nil {
		t.Fatal("plan missing from agent config")
	}
	if ap.Repo != "primary_repo" {
		t.Errorf("plan repo = %q", ap.Repo)
	}
	if ap.Schedule == nil || ap.Schedule.Cron != "0 * * * *" || ap.Schedule.Clock != agentapi.ClockLocal {
		t.Errorf("schedule = %+v", ap.Schedule)
	}
	if ap.Retention == nil {
		t.Fatal("retention missing")
	}
	got := ap.Retention.PolicyTimeBucketed
	if got.Daily != 14 || got.Weekly != 4 || got.KeepLastN != 0 {
		t.Errorf("retention = %+v", got)
	}
}

func TestCreatePlanWithoutScheduleIsDisabled(t *testing.T) {
	svc, store, agent, scope, _ := newEnv(t)
	var repoID uuid.UUID
	for id := range store.repos {
		repoID = id
	}

	plan, err := svc.CreatePlan(context.Background(), scope, repoID, "Manual Only", []string{"/etc"}, nil, "", models.RetentionPolicy{})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if plan.Enabled {
		t.Error("plan without schedule should be disabled")
	}
	ap := agent.setConfigs[0].FindPlan("manual_only")
	if ap == nil || ap.Schedule == nil || !ap.Schedule.Disabled {
		t.Error("agent schedule not disabled")
	}
	// Empty retention defaults to keepLastN 7, never an empty policy.
	if ap.Retention.PolicyTimeBucketed.KeepLastN != 7 {
		t.Errorf("default retention = %+v", ap.Retention.PolicyTimeBucketed)
	}
}

func TestListSnapshots(t *testing.T) {
	svc, store, agent, scope, _ := newEnv(t)
	agent.snapshots = []agentapi.Snapshot{{ID: "abc123", Time: time.Now().Format(time.RFC3339)}}
	var repoID uuid.UUID
	for id := range store.repos {
		repoID = id
	}

	snaps, err := svc.ListSnapshots(context.Background(), scope, repoID, "")
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != "abc123" {
		t.Fatalf("snapshots = %+v", snaps)
	}
}
