package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/backhaul/internal/api/middleware"
	"github.com/MacJediWizard/backhaul/internal/db"
	"github.com/MacJediWizard/backhaul/internal/models"
	"github.com/MacJediWizard/backhaul/internal/orchestrator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

type fakePlanStore struct {
	plans map[uuid.UUID]*models.Plan
}

func (s *fakePlanStore) ListPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error) {
	var out []*models.Plan
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakePlanStore) GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

type fakePlanOrchestrator struct {
	created    *models.Plan
	createErr  error
	triggered  []uuid.UUID
	triggerRes *orchestrator.TriggerResult
	triggerErr error
}

func (o *fakePlanOrchestrator) CreatePlan(ctx context.Context, scope models.TenantScope, repositoryID uuid.UUID, name string, paths, excludes []string, schedule string, retention models.RetentionPolicy) (*models.Plan, error) {
	if o.createErr != nil {
		return nil, o.createErr
	}
	o.created = models.NewPlan(scope, repositoryID, name, "plan_x", paths, schedule)
	return o.created, nil
}

func (o *fakePlanOrchestrator) TriggerBackup(ctx context.Context, scope models.TenantScope, planID uuid.UUID) (*orchestrator.TriggerResult, error) {
	o.triggered = append(o.triggered, planID)
	if o.triggerErr != nil {
		return nil, o.triggerErr
	}
	return o.triggerRes, nil
}

func planRouter(store *fakePlanStore, orch *fakePlanOrchestrator, scope models.TenantScope) *gin.Engine {
	r := gin.New()
	group := r.Group("/api/v1")
	group.Use(middleware.WithScope(scope))
	NewPlansHandler(store, orch, testLogger()).RegisterRoutes(group)
	return r
}

func TestCreatePlanHandler(t *testing.T) {
	scope := models.Scope(uuid.New())
	orch := &fakePlanOrchestrator{}
	r := planRouter(&fakePlanStore{}, orch, scope)

	body, _ := json.Marshal(gin.H{
		"repository_id": uuid.New(),
		"name":          "Web Daily",
		"paths":         []string{"/srv/www"},
		"schedule":      "0 2 * * *",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, orch.created)
	assert.Equal(t, scope.TenantID, orch.created.TenantID)
}

func TestCreatePlanHandlerRejectsMissingPaths(t *testing.T) {
	scope := models.Scope(uuid.New())
	r := planRouter(&fakePlanStore{}, &fakePlanOrchestrator{}, scope)

	body, _ := json.Marshal(gin.H{"repository_id": uuid.New(), "name": "No Paths"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerBackupHandlerAccepted(t *testing.T) {
	scope := models.Scope(uuid.New())
	plan := models.NewPlan(scope, uuid.New(), "Web Daily", "web_daily", []string{"/srv/www"}, "0 2 * * *")
	op := models.NewOperation(scope, plan.RepositoryID, &plan.ID, "op_web_daily_1700000000_ab12", models.OperationTypeBackup, models.OperationStatusRunning)
	orch := &fakePlanOrchestrator{triggerRes: &orchestrator.TriggerResult{Operation: op, Reported: "initiated"}}
	r := planRouter(&fakePlanStore{plans: map[uuid.UUID]*models.Plan{plan.ID: plan}}, orch, scope)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/"+plan.ID.String()+"/backup", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var res struct {
		Operation models.Operation `json:"operation"`
		Reported  string           `json:"reported"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "initiated", res.Reported)
	assert.Equal(t, "op_web_daily_1700000000_ab12", res.Operation.OperationID)
	require.Len(t, orch.triggered, 1)
	assert.Equal(t, plan.ID, orch.triggered[0])
}

func TestGetPlanHandlerNotFound(t *testing.T) {
	scope := models.Scope(uuid.New())
	r := planRouter(&fakePlanStore{plans: map[uuid.UUID]*models.Plan{}}, &fakePlanOrchestrator{}, scope)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/"+uuid.NewString(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
