package reconcile

import (
	"testing"

	"github.com/MacJediWizard/backhaul/internal/models"
)

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want models.OperationStatus
	}{
		{"STATUS_PENDING", models.OperationStatusPending},
		{"STATUS_INPROGRESS", models.OperationStatusRunning},
		{"STATUS_SUCCESS", models.OperationStatusCompleted},
		{"STATUS_ERROR", models.OperationStatusFailed},
		{"STATUS_USERCANCELLED", models.OperationStatusCancelled},
		{"STATUS_SYSTEMCANCELLED", models.OperationStatusCancelled},
		{"STATUS_WARNING", models.OperationStatusFailed},
		{"something_else", models.OperationStatusUnknown},
		{"", models.OperationStatusUnknown},
	}
	for _, tc := range cases {
		if got := NormalizeStatus(tc.raw); got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeType(t *testing.T) {
	cases := []struct {
		raw  string
		want models.OperationType
	}{
		{"TYPE_BACKUP", models.OperationTypeBackup},
		{"TYPE_PRUNE", models.OperationTypePrune},
		{"TYPE_FORGET", models.OperationTypeForget},
		{"TYPE_CHECK", models.OperationTypeCheck},
		{"", models.OperationTypeBackup},
	}
	for _, tc := range cases {
		if got := NormalizeType(tc.raw); got != tc.want {
			t.Errorf("NormalizeType(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestParseProcessLogSkipsGarbage(t *testing.T) {
	data := []byte(`{"ts":1700000000,"level":"info","msg":"scheduler started"}
plain text restart banner
{"ts":1700000010,"level":"info","msg":"backup complete","plan":"web_daily","summary":"snapshot_id:\"deadbeef\" files_new:1"}

`)
	lines := ParseProcessLog(data)
	if len(lines) != 2 {
		t.Fatalf("parsed %d lines, want 2", len(lines))
	}
	if lines[1].Plan != "web_daily" || lines[1].Message != "backup complete" {
		t.Fatalf("unexpected line: %+v", lines[1])
	}
}

func TestParseSummary(t *testing.T) {
	snapshotID, stats := ParseSummary(`snapshot_id:"abc123" files_new:42 files_changed:7 total_bytes:1048576`)
	if snapshotID != "abc123" {
		t.Errorf("snapshot_id = %q", snapshotID)
	}
	if stats["files_new"] != 42 || stats["files_changed"] != 7 || stats["total_bytes"] != 1048576 {
		t.Errorf("stats = %v", stats)
	}

	snapshotID, stats = ParseSummary("")
	if snapshotID != "" || stats != nil {
		t.Errorf("empty summary produced %q %v", snapshotID, stats)
	}
}
