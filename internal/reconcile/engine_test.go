package reconcile

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	mu         sync.Mutex
	tenants    []*models.Tenant
	repos      []*models.Repository
	servers    map[uuid.UUID]*models.Server
	plans      map[uuid.UUID]*models.Plan
	operations map[string]*models.Operation
	logEntries []*models.LogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		servers:    make(map[uuid.UUID]*models.Server),
		plans:      make(map[uuid.UUID]*models.Plan),
		operations: make(map[string]*models.Operation),
	}
}

func (s *fakeStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	return s.tenants, nil
}

func (s *fakeStore) ListRepositories(ctx context.Context, scope models.TenantScope) ([]*models.Repository, error) {
	var out []*models.Repository
	for _, r := range s.repos {
		if r.TenantID == scope.TenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error) {
	for _, r := range s.repos {
		if r.ID == id && r.TenantID == scope.TenantID {
			return r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error) {
	srv, ok := s.servers[id]
	if !ok || srv.TenantID != scope.TenantID {
		return nil, db.ErrNotFound
	}
	return srv, nil
}

func (s *fakeStore) ListServers(ctx context.Context, scope models.TenantScope) ([]*models.Server, error) {
	var out []*models.Server
	for _, srv := range s.servers {
		if srv.TenantID == scope.TenantID {
			out = append(out, srv)
		}
	}
	return out, nil
}

func (s *fakeStore) GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error) {
	p, ok := s.plans[id]
	if !ok || p.TenantID != scope.TenantID {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) GetPlanByExternalID(ctx context.Context, scope models.TenantScope, planID string) (*models.Plan, error) {
	for _, p := range s.plans {
		if p.PlanID == planID && p.TenantID == scope.TenantID {
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) GetOperationByExternalID(ctx context.Context, scope models.TenantScope, operationID string) (*models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operations[operationID]
	if !ok || op.TenantID != scope.TenantID {
		return nil, db.ErrNotFound
	}
	clone := *op
	return &clone, nil
}

func (s *fakeStore) CreateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operations[op.OperationID]; exists {
		return db.ErrDuplicate
	}
	clone := *op
	s.operations[op.OperationID] = &clone
	return nil
}

func (s *fakeStore) UpdateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *op
	s.operations[op.OperationID] = &clone
	return nil
}

func (s *fakeStore) ListActiveOperations(ctx context.Context, scope models.TenantScope) ([]*models.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Operation
	for _, op := range s.operations {
		if op.TenantID != scope.TenantID {
			continue
		}
		switch op.Status {
		case models.OperationStatusPending, models.OperationStatusScheduled, models.OperationStatusRunning:
			out = append(out, op)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertLogEntries(ctx context.Context, scope models.TenantScope, entries []*models.LogEntry) (int, error) {
	s.logEntries = append(s.logEntries, entries...)
	return len(entries), nil
}

// fakeAgent serves canned operation lists.
type fakeAgent struct {
	ops   []agentapi.Operation
	err   error
	calls int
}

func (a *fakeAgent) GetOperations(ctx context.Context, sel agentapi.OperationSelector) ([]agentapi.Operation, error) {
	a.calls++
	return a.ops, a.err
}

// fakeFetcher serves canned log evidence.
type fakeFetcher struct {
	processLog []byte
	taskLogs   []TaskLogEntry
}

func (f *fakeFetcher) FetchProcessLog(ctx context.Context, server *models.Server, maxLines int) ([]byte, error) {
	return f.processLog, nil
}

func (f *fakeFetcher) FetchTaskLogs(ctx context.Context, server *models.Server) ([]TaskLogEntry, error) {
	return f.taskLogs, nil
}

type testEnv struct {
	store   *fakeStore
	agent   *fakeAgent
	fetcher *fakeFetcher
	engine  *Engine
	scope   models.TenantScope
	repo    *models.Repository
	plan    *models.Plan
	server  *models.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	tenant := models.NewTenant("Acme", "acme")
	store.tenants = append(store.tenants, tenant)
	scope := models.Scope(tenant.ID)

	cred := models.NewCredential(scope, "deploy", "root", "ciphertext")
	server := models.NewServer(scope, "host1.example.com", "root", cred.ID)
	server.MarkInstalled("1.9.1")
	store.servers[server.ID] = server

	repo := models.NewRepository(scope, server.ID, "Primary", "primary_repo", "s3:bucket/path", "enc")
	store.repos = append(store.repos, repo)

	plan := models.NewPlan(scope, repo.ID, "Web Daily", "web_daily", []string{"/srv/www"}, "0 2 * * *")
	store.plans[plan.ID] = plan

	agent := &fakeAgent{}
	fetcher := &fakeFetcher{}
	engine := New(store, func(*models.Server) AgentClient { return agent }, fetcher, DefaultConfig(), testLogger())

	return &testEnv{store: store, agent: agent, fetcher: fetcher, engine: engine, scope: scope, repo: repo, plan: plan, server: server}
}

func TestReconcileCreatesOwnedOperations(t *testing.T) {
	env := newTestEnv(t)
	env.agent.ops = []agentapi.Operation{
		{ID: "op_web_daily_1700000000_ab", Type: "TYPE_BACKUP", Status: "STATUS_INPROGRESS", PlanID: "web_daily"},
		{ID: "9912", Type: "TYPE_BACKUP", Status: "STATUS_SUCCESS"},       // foreign, agent-native id
		{ID: "manual-run-3", Type: "TYPE_PRUNE", Status: "STATUS_SUCCESS"}, // foreign
	}

	summary, err := env.engine.ReconcileTenant(context.Background(), env.scope)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if summary.Created != 1 || summary.Updated != 0 {
		t.Fatalf("summary = %+v, want 1 created", summary)
	}

	op, err := env.store.GetOperationByExternalID(context.Background(), env.scope, "op_web_daily_1700000000_ab")
	if err != nil {
		t.Fatalf("created operation missing: %v", err)
	}
	if op.Status != models.OperationStatusRunning {
		t.Errorf("status = %s, want running", op.Status)
	}
	if op.PlanID == nil || *op.PlanID != env.plan.ID {
		t.Error("plan not attached by external plan id")
	}

	if len(env.store.operations) != 1 {
		t.Fatalf("foreign operations persisted: %d rows", len(env.store.operations))
	}
}

func TestReconcileMergeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.agent.ops = []agentapi.Operation{
		{ID: "op_web_daily_1700000000_ab", Status: "STATUS_INPROGRESS", PlanID: "web_daily"},
	}

	for i := 0; i < 2; i++ {
		if _, err := env.engine.ReconcileTenant(context.Background(), env.scope); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if len(env.store.operations) != 1 {
		t.Fatalf("duplicate rows for one external id: %d", len(env.store.operations))
	}
}

func TestReconcileWriteOnceAcrossPasses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}
	if _, err := env.engine.ReconcileTenant(ctx, env.scope); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_SUCCESS", PlanID: "web_daily", SnapshotID: "abc123", Stats: map[string]int64{"files_new": 10}}}
	if _, err := env.engine.ReconcileTenant(ctx, env.scope); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusCompleted || op.CompletedAt == nil || op.SnapshotID != "abc123" {
		t.Fatalf("terminal transition not applied: %+v", op)
	}
	completedAt := *op.CompletedAt

	// Third pass reports success again with a different snapshot id.
	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_SUCCESS", PlanID: "web_daily", SnapshotID: "zzz999"}}
	summary, err := env.engine.ReconcileTenant(ctx, env.scope)
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if summary.Updated != 0 {
		t.Errorf("terminal record updated again: %+v", summary)
	}

	op, _ = env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.SnapshotID != "abc123" {
		t.Errorf("snapshot_id overwritten: %q", op.SnapshotID)
	}
	if !op.CompletedAt.Equal(completedAt) {
		t.Errorf("completed_at overwritten: %v", op.CompletedAt)
	}
}

func TestReconcileUnknownStatusIsNotTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_SOMETHING_NEW", PlanID: "web_daily"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusRunning {
		t.Fatalf("unknown status changed record to %s", op.Status)
	}
	if op.CompletedAt != nil {
		t.Fatal("unknown status finalized the record")
	}
}

func TestReconcileSkipsServersWithoutAgent(t *testing.T) {
	env := newTestEnv(t)
	env.server.Status = models.ServerStatusPending
	env.agent.ops = []agentapi.Operation{{ID: "op_web_daily_1_aa", Status: "STATUS_SUCCESS"}}

	summary, err := env.engine.ReconcileTenant(context.Background(), env.scope)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if env.agent.calls != 0 {
		t.Error("agent polled before installation finished")
	}
	if summary.Created != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCorroborateAdvancesRunningOperation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	env.fetcher.processLog = []byte(
		`{"ts":1700000100,"level":"info","msg":"starting backup","plan":"web_daily"}` + "\n" +
			`not json at all` + "\n" +
			`{"ts":1700000200,"level":"info","msg":"backup complete","plan":"web_daily","summary":"snapshot_id:\"abc123\" files_new:42 total_bytes:1048576"}` + "\n")

	if err := env.engine.CorroborateTenantLogs(ctx, env.scope); err != nil {
		t.Fatalf("corroborate: %v", err)
	}

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusCompleted {
		t.Fatalf("status = %s, want completed", op.Status)
	}
	if op.SnapshotID != "abc123" {
		t.Errorf("snapshot_id = %q", op.SnapshotID)
	}
	if op.Stats["files_new"] != 42 || op.Stats["total_bytes"] != 1048576 {
		t.Errorf("stats = %v", op.Stats)
	}
	if op.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestCorroborateIgnoresScheduledPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	// Projected placeholder for the same plan's next fire. Completion
	// evidence belongs to the running operation, never to the future slot.
	placeholder := models.NewOperation(env.scope, env.repo.ID, &env.plan.ID, "scheduled_web_daily_1700006400", models.OperationTypeBackup, models.OperationStatusScheduled)
	fireAt := time.Unix(1700006400, 0).UTC()
	placeholder.ScheduledAt = &fireAt
	if err := env.store.CreateOperation(ctx, env.scope, placeholder); err != nil {
		t.Fatalf("create placeholder: %v", err)
	}

	env.fetcher.processLog = []byte(`{"ts":1700000200,"level":"info","msg":"backup complete","plan":"web_daily","summary":"snapshot_id:\"abc123\" files_new:42"}` + "\n")
	if err := env.engine.CorroborateTenantLogs(ctx, env.scope); err != nil {
		t.Fatalf("corroborate: %v", err)
	}

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusCompleted || op.SnapshotID != "abc123" {
		t.Fatalf("running operation not corroborated: %+v", op)
	}

	ph, _ := env.store.GetOperationByExternalID(ctx, env.scope, "scheduled_web_daily_1700006400")
	if ph.Status != models.OperationStatusScheduled {
		t.Fatalf("placeholder status = %s, want scheduled", ph.Status)
	}
	if ph.CompletedAt != nil || ph.SnapshotID != "" {
		t.Fatalf("placeholder absorbed completion evidence: %+v", ph)
	}
}

func TestIngestTaskLogsIgnoresScheduledPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	placeholder := models.NewOperation(env.scope, env.repo.ID, &env.plan.ID, "scheduled_web_daily_1700006400", models.OperationTypeBackup, models.OperationStatusScheduled)
	if err := env.store.CreateOperation(ctx, env.scope, placeholder); err != nil {
		t.Fatalf("create placeholder: %v", err)
	}

	env.fetcher.taskLogs = []TaskLogEntry{
		{Timestamp: time.Now().UTC(), Level: "error", Message: "plan web_daily aborted", Error: "repository locked"},
	}
	if err := env.engine.IngestTenantTaskLogs(ctx, env.scope); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	ph, _ := env.store.GetOperationByExternalID(ctx, env.scope, "scheduled_web_daily_1700006400")
	if ph.Status != models.OperationStatusScheduled {
		t.Fatalf("placeholder status = %s, want scheduled", ph.Status)
	}
}

func TestReconcileWarningFinalizesAsFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_WARNING", PlanID: "web_daily", DisplayMessage: "partial read"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if op.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
	if op.Error != "partial read" {
		t.Errorf("error = %q", op.Error)
	}
}

func TestCorroborateNeverRegressesTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_SUCCESS", PlanID: "web_daily", SnapshotID: "abc123"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	// A stale failure line must not move the completed record.
	env.fetcher.processLog = []byte(`{"ts":1699999999,"level":"error","msg":"backup failed","plan":"web_daily","error":"stale"}` + "\n")
	if err := env.engine.CorroborateTenantLogs(ctx, env.scope); err != nil {
		t.Fatalf("corroborate: %v", err)
	}

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusCompleted || op.SnapshotID != "abc123" {
		t.Fatalf("terminal record regressed: %+v", op)
	}
}

func TestIngestTaskLogsFailsRunningOperationOnError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opID := "op_web_daily_1700000000_ab"

	env.agent.ops = []agentapi.Operation{{ID: opID, Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}
	env.engine.ReconcileTenant(ctx, env.scope)

	env.fetcher.taskLogs = []TaskLogEntry{
		{Timestamp: time.Now().UTC(), Level: "info", Message: "run started for web_daily"},
		{Timestamp: time.Now().UTC(), Level: "error", Message: "plan web_daily aborted", Error: "repository locked"},
	}

	if err := env.engine.IngestTenantTaskLogs(ctx, env.scope); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	op, _ := env.store.GetOperationByExternalID(ctx, env.scope, opID)
	if op.Status != models.OperationStatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if op.Error != "repository locked" {
		t.Errorf("error = %q", op.Error)
	}
	if len(env.store.logEntries) == 0 {
		t.Error("no log entries ingested")
	}
}

func TestRunIsolatesTenantFailures(t *testing.T) {
	env := newTestEnv(t)

	// Second tenant whose repository points at a missing server, which
	// fails its pass.
	broken := models.NewTenant("Broken", "broken")
	env.store.tenants = append(env.store.tenants, broken)
	brokenScope := models.Scope(broken.ID)
	repo := models.NewRepository(brokenScope, uuid.New(), "Orphan", "orphan_repo", "s3:x", "enc")
	env.store.repos = append(env.store.repos, repo)

	env.agent.ops = []agentapi.Operation{{ID: "op_web_daily_1700000000_ab", Status: "STATUS_INPROGRESS", PlanID: "web_daily"}}

	env.engine.Run(context.Background())

	if _, err := env.store.GetOperationByExternalID(context.Background(), env.scope, "op_web_daily_1700000000_ab"); err != nil {
		t.Fatalf("healthy tenant not reconciled: %v", err)
	}
}
