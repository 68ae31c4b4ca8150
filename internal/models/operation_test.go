package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestOwnsOperationID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"op_plan1_1700000000_ab12", true},
		{"scheduled_plan1_1700000000", true},
		{"12345", false},
		{"prune-7", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := OwnsOperationID(tc.id); got != tc.want {
			t.Errorf("OwnsOperationID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestAdvanceStampsCompletedAtOnce(t *testing.T) {
	scope := Scope(uuid.New())
	op := NewOperation(scope, uuid.New(), nil, "op_p_1_aa", OperationTypeBackup, OperationStatusRunning)

	now := time.Now().UTC()
	if !op.Advance(OperationStatusCompleted, "abc123", map[string]int64{"files_new": 3}, "", now) {
		t.Fatal("expected first terminal advance to report a change")
	}
	if op.CompletedAt == nil || !op.CompletedAt.Equal(now) {
		t.Fatalf("completed_at not stamped: %v", op.CompletedAt)
	}
	if op.SnapshotID != "abc123" {
		t.Fatalf("snapshot_id = %q, want abc123", op.SnapshotID)
	}

	// A later pass reporting success again with a different snapshot must
	// not touch the record.
	later := now.Add(time.Minute)
	if op.Advance(OperationStatusCompleted, "zzz999", nil, "", later) {
		t.Fatal("terminal record advanced a second time")
	}
	if op.SnapshotID != "abc123" {
		t.Fatalf("snapshot_id overwritten: %q", op.SnapshotID)
	}
	if !op.CompletedAt.Equal(now) {
		t.Fatalf("completed_at overwritten: %v", op.CompletedAt)
	}
}

func TestAdvanceTerminalIsSticky(t *testing.T) {
	scope := Scope(uuid.New())
	op := NewOperation(scope, uuid.New(), nil, "op_p_2_bb", OperationTypeBackup, OperationStatusRunning)
	now := time.Now().UTC()

	op.Advance(OperationStatusFailed, "", nil, "disk full", now)
	if op.Status != OperationStatusFailed || op.Error != "disk full" {
		t.Fatalf("failed transition not applied: %s %q", op.Status, op.Error)
	}

	for _, s := range []OperationStatus{OperationStatusRunning, OperationStatusPending, OperationStatusCompleted} {
		if op.Advance(s, "", nil, "", now.Add(time.Minute)) {
			t.Errorf("terminal record moved to %s", s)
		}
	}
	if op.Status != OperationStatusFailed {
		t.Fatalf("status regressed to %s", op.Status)
	}
}

func TestAdvanceIgnoresUnknown(t *testing.T) {
	scope := Scope(uuid.New())
	op := NewOperation(scope, uuid.New(), nil, "op_p_3_cc", OperationTypeBackup, OperationStatusRunning)

	if op.Advance(OperationStatusUnknown, "", nil, "", time.Now().UTC()) {
		t.Fatal("unknown status changed the record")
	}
	if op.Status != OperationStatusRunning {
		t.Fatalf("status = %s, want running", op.Status)
	}
}

func TestAdvanceRunningSetsStartedAt(t *testing.T) {
	scope := Scope(uuid.New())
	op := NewOperation(scope, uuid.New(), nil, "op_p_4_dd", OperationTypeBackup, OperationStatusPending)

	now := time.Now().UTC()
	op.Advance(OperationStatusRunning, "", nil, "", now)
	if op.StartedAt == nil || !op.StartedAt.Equal(now) {
		t.Fatalf("started_at not set: %v", op.StartedAt)
	}
	if op.CompletedAt != nil {
		t.Fatal("completed_at set on a non-terminal status")
	}
}

func TestScheduledOperationID(t *testing.T) {
	fireAt := time.Unix(1700000000, 0).UTC()
	got := ScheduledOperationID("web_daily", fireAt)
	want := "scheduled_web_daily_1700000000"
	if got != want {
		t.Fatalf("ScheduledOperationID = %q, want %q", got, want)
	}
}
