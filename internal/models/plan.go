package models

import (
	"time"

	"github.com/google/uuid"
)

// RetentionPolicy controls how many snapshots the agent keeps per period
// bucket. All buckets must always be present when serialized; the agent
// rejects incomplete policies, so zero values are explicit, not omitted.
type RetentionPolicy struct {
	KeepLastN   int `json:"keep_last_n"`
	KeepHourly  int `json:"keep_hourly"`
	KeepDaily   int `json:"keep_daily"`
	KeepWeekly  int `json:"keep_weekly"`
	KeepMonthly int `json:"keep_monthly"`
	KeepYearly  int `json:"keep_yearly"`
}

// Plan is a backup configuration bound to one repository. PlanID is the
// external identifier shared with the agent.
type Plan struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	RepositoryID uuid.UUID       `json:"repository_id"`
	Name         string          `json:"name"`
	PlanID       string          `json:"plan_id"`
	Paths        []string        `json:"paths"`
	Excludes     []string        `json:"excludes,omitempty"`
	Schedule     string          `json:"schedule"`
	Enabled      bool            `json:"enabled"`
	Retention    RetentionPolicy `json:"retention"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewPlan creates an enabled plan record.
func NewPlan(scope TenantScope, repositoryID uuid.UUID, name, planID string, paths []string, schedule string) *Plan {
	return &Plan{
		ID:           uuid.New(),
		TenantID:     scope.TenantID,
		RepositoryID: repositoryID,
		Name:         name,
		PlanID:       planID,
		Paths:        paths,
		Schedule:     schedule,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}
}
