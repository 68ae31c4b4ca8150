package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationType classifies what the agent executed.
type OperationType string

const (
	OperationTypeBackup OperationType = "backup"
	OperationTypePrune  OperationType = "prune"
	OperationTypeForget OperationType = "forget"
	OperationTypeCheck  OperationType = "check"
)

// OperationStatus is the local lifecycle state of an operation.
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusScheduled OperationStatus = "scheduled"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"

	// OperationStatusUnknown is a normalization result for agent status
	// strings this system does not recognize. It is never persisted and
	// never terminal, so an unrecognized status cannot finalize a record.
	OperationStatusUnknown OperationStatus = "unknown"
)

// IsTerminal reports whether the status ends an operation's lifecycle.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	}
	return false
}

// External identifier prefixes. Operations carrying one of these prefixes
// were initiated by this system; everything else an agent reports is
// foreign and is never adopted into the local ledger.
const (
	TriggeredOpPrefix = "op_"
	ScheduledOpPrefix = "scheduled_"
)

// OwnsOperationID reports whether an agent-reported identifier belongs to
// this system.
func OwnsOperationID(operationID string) bool {
	return strings.HasPrefix(operationID, TriggeredOpPrefix) ||
		strings.HasPrefix(operationID, ScheduledOpPrefix)
}

// SynthesizeOperationID builds an identifier for a backup this system
// triggered but whose agent-side ID was never observed (trigger timeout).
func SynthesizeOperationID(planID string, now time.Time) string {
	suffix := make([]byte, 2)
	rand.Read(suffix)
	return fmt.Sprintf("%s%s_%d_%s", TriggeredOpPrefix, planID, now.Unix(), hex.EncodeToString(suffix))
}

// ScheduledOperationID builds the identifier for a projected placeholder.
func ScheduledOperationID(planID string, fireAt time.Time) string {
	return fmt.Sprintf("%s%s_%d", ScheduledOpPrefix, planID, fireAt.Unix())
}

// Operation is the canonical local record of one externally-executed unit
// of work. OperationID is the single join key across all observation
// channels; there is exactly one row per external identifier.
type Operation struct {
	ID           uuid.UUID       `json:"id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	RepositoryID uuid.UUID       `json:"repository_id"`
	PlanID       *uuid.UUID      `json:"plan_id,omitempty"`
	OperationID  string          `json:"operation_id"`
	Type         OperationType   `json:"type"`
	Status       OperationStatus `json:"status"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ScheduledAt  *time.Time      `json:"scheduled_at,omitempty"`
	SnapshotID   string          `json:"snapshot_id,omitempty"`
	Stats        map[string]int64 `json:"stats,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewOperation creates an operation record in the given status.
func NewOperation(scope TenantScope, repositoryID uuid.UUID, planID *uuid.UUID, operationID string, opType OperationType, status OperationStatus) *Operation {
	now := time.Now().UTC()
	return &Operation{
		ID:           uuid.New(),
		TenantID:     scope.TenantID,
		RepositoryID: repositoryID,
		PlanID:       planID,
		OperationID:  operationID,
		Type:         opType,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewScheduledOperation creates a projected placeholder for a future run.
// StartedAt stays nil until real execution evidence appears.
func NewScheduledOperation(scope TenantScope, repositoryID uuid.UUID, planID uuid.UUID, externalPlanID string, fireAt time.Time) *Operation {
	op := NewOperation(scope, repositoryID, &planID, ScheduledOperationID(externalPlanID, fireAt), OperationTypeBackup, OperationStatusScheduled)
	op.ScheduledAt = &fireAt
	return op
}

// IsTerminal reports whether the operation has reached a final state.
func (o *Operation) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Advance applies an observed status to the record, enforcing the ledger
// rules: terminal states are sticky, completed_at is stamped exactly once,
// and snapshot_id/stats are write-once. It reports whether anything
// changed. Unknown statuses are ignored.
func (o *Operation) Advance(status OperationStatus, snapshotID string, stats map[string]int64, errMsg string, now time.Time) bool {
	if status == OperationStatusUnknown {
		return false
	}
	if o.IsTerminal() {
		return false
	}
	changed := false
	if o.Status != status {
		o.Status = status
		changed = true
		if status == OperationStatusRunning && o.StartedAt == nil {
			t := now
			o.StartedAt = &t
		}
	}
	if status.IsTerminal() {
		if o.CompletedAt == nil {
			t := now
			o.CompletedAt = &t
			changed = true
		}
		if snapshotID != "" && o.SnapshotID == "" {
			o.SnapshotID = snapshotID
			changed = true
		}
		if len(stats) > 0 && o.Stats == nil {
			o.Stats = stats
			changed = true
		}
		if errMsg != "" && o.Error == "" && status == OperationStatusFailed {
			o.Error = errMsg
			changed = true
		}
	}
	if changed {
		o.UpdatedAt = now
	}
	return changed
}
