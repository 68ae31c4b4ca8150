package reconcile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// ProcessLogLine is one parsed JSON line from the agent's process log.
type ProcessLogLine struct {
	Timestamp float64 `json:"ts"`
	Level     string  `json:"level"`
	Message   string  `json:"msg"`
	Logger    string  `json:"logger"`
	Plan      string  `json:"plan"`
	Summary   string  `json:"summary"`
	Error     string  `json:"error"`
}

// Process log completion markers.
const (
	msgBackupComplete = "backup complete"
	msgBackupFailed   = "backup failed"
)

var (
	snapshotIDRe = regexp.MustCompile(`snapshot_id:"([^"]+)"`)
	statPairRe   = regexp.MustCompile(`(\w+):(\d+)`)
)

// ParseProcessLog parses JSON lines from the agent's process log.
// Non-JSON lines are skipped; the log interleaves plain text on agent
// restarts.
func ParseProcessLog(data []byte) []ProcessLogLine {
	var lines []ProcessLogLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line ProcessLogLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseSummary extracts the snapshot ID and numeric stats from a
// completion line's summary text.
func ParseSummary(summary string) (snapshotID string, stats map[string]int64) {
	if m := snapshotIDRe.FindStringSubmatch(summary); m != nil {
		snapshotID = m[1]
	}
	for _, m := range statPairRe.FindAllStringSubmatch(summary, -1) {
		n, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		if stats == nil {
			stats = make(map[string]int64)
		}
		stats[m[1]] = n
	}
	return snapshotID, stats
}

// CorroborateTenantLogs advances running operations from process log
// evidence. A definitive completion or failure line for a known plan may
// move a running operation to its terminal state ahead of the next poll;
// it can never move a record backward.
func (e *Engine) CorroborateTenantLogs(ctx context.Context, scope models.TenantScope) error {
	active, err := e.store.ListActiveOperations(ctx, scope)
	if err != nil {
		return fmt.Errorf("list active operations: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	opsByServer, opsByPlan, err := e.groupRunningOperations(ctx, scope, active)
	if err != nil {
		return err
	}

	for serverID := range opsByServer {
		server, err := e.store.GetServerByID(ctx, scope, serverID)
		if err != nil {
			e.logger.Error().Err(err).Str("server", serverID.String()).Msg("get server for log corroboration")
			continue
		}
		data, err := e.fetcher.FetchProcessLog(ctx, server, e.cfg.ProcessLogLines)
		if err != nil {
			e.logger.Error().Err(err).Str("server", server.Hostname).Msg("fetch process log")
			continue
		}

		updated := 0
		for _, line := range ParseProcessLog(data) {
			if e.applyProcessLine(ctx, scope, line, opsByPlan) {
				updated++
			}
		}
		if updated > 0 {
			metrics.OperationsUpdated.Add(float64(updated))
			e.logger.Info().Str("server", server.Hostname).Int("updated", updated).Msg("operations advanced from process log")
		}
	}
	return nil
}

// groupRunningOperations indexes running operations by owning server and
// by external plan identifier. Pending rows and scheduled placeholders
// are excluded; log evidence only ever advances a running operation.
func (e *Engine) groupRunningOperations(ctx context.Context, scope models.TenantScope, active []*models.Operation) (map[uuid.UUID][]*models.Operation, map[string]*models.Operation, error) {
	opsByServer := make(map[uuid.UUID][]*models.Operation)
	opsByPlan := make(map[string]*models.Operation)

	for _, op := range active {
		if op.Status != models.OperationStatusRunning {
			continue
		}
		repo, err := e.store.GetRepositoryByID(ctx, scope, op.RepositoryID)
		if err != nil {
			e.logger.Warn().Err(err).Str("operation", op.OperationID).Msg("repository missing for active operation")
			continue
		}
		opsByServer[repo.ServerID] = append(opsByServer[repo.ServerID], op)

		if op.PlanID != nil {
			plan, err := e.store.GetPlanByID(ctx, scope, *op.PlanID)
			if err == nil {
				opsByPlan[plan.PlanID] = op
			}
		}
	}
	return opsByServer, opsByPlan, nil
}

func (e *Engine) applyProcessLine(ctx context.Context, scope models.TenantScope, line ProcessLogLine, opsByPlan map[string]*models.Operation) bool {
	if line.Message != msgBackupComplete && line.Message != msgBackupFailed {
		return false
	}
	if line.Plan == "" {
		return false
	}
	op, ok := opsByPlan[line.Plan]
	if !ok {
		return false
	}

	status := models.OperationStatusCompleted
	if line.Message == msgBackupFailed {
		status = models.OperationStatusFailed
	}
	snapshotID, stats := ParseSummary(line.Summary)

	now := time.Now().UTC()
	if !op.Advance(status, snapshotID, stats, line.Error, now) {
		return false
	}
	if err := e.store.UpdateOperation(ctx, scope, op); err != nil {
		e.logger.Error().Err(err).Str("operation", op.OperationID).Msg("persist log-corroborated update")
		return false
	}
	return true
}
