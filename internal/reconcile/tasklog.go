package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
)

// TaskLogEntry is one row from an agent's per-run SQLite log store.
type TaskLogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Logger    string
	Error     string
}

// taskLogQueryLimit bounds how many rows are read per tasklog database.
const taskLogQueryLimit = 1000

// ReadTaskLogEntries reads the logs table from a local copy of an agent
// tasklog SQLite database.
func ReadTaskLogEntries(path string) ([]TaskLogEntry, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tasklog db: %w", err)
	}
	defer database.Close()

	rows, err := database.Query(
		`SELECT timestamp, level, message, logger, error
		 FROM logs
		 ORDER BY timestamp DESC
		 LIMIT ?`, taskLogQueryLimit)
	if err != nil {
		return nil, fmt.Errorf("query tasklog db: %w", err)
	}
	defer rows.Close()

	var entries []TaskLogEntry
	for rows.Next() {
		var (
			ts                  float64
			level, msg          string
			loggerName, errText sql.NullString
		)
		if err := rows.Scan(&ts, &level, &msg, &loggerName, &errText); err != nil {
			return nil, fmt.Errorf("scan tasklog row: %w", err)
		}
		entries = append(entries, TaskLogEntry{
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			Level:     level,
			Message:   msg,
			Logger:    loggerName.String,
			Error:     errText.String,
		})
	}
	return entries, rows.Err()
}

// IngestTenantTaskLogs pulls tasklog and process log evidence from every
// server of a tenant into the log entry table, and fails running
// operations whose plan shows an error-level tasklog entry. Insertion is
// idempotent; re-ingesting the same window adds nothing.
func (e *Engine) IngestTenantTaskLogs(ctx context.Context, scope models.TenantScope) error {
	servers, err := e.store.ListServers(ctx, scope)
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}

	for _, server := range servers {
		if server.Status != models.ServerStatusAgentInstalled {
			continue
		}
		if err := e.ingestServerLogs(ctx, scope, server); err != nil {
			e.logger.Error().Err(err).Str("server", server.Hostname).Msg("log ingestion failed")
		}
	}
	return nil
}

func (e *Engine) ingestServerLogs(ctx context.Context, scope models.TenantScope, server *models.Server) error {
	taskEntries, err := e.fetcher.FetchTaskLogs(ctx, server)
	if err != nil {
		return fmt.Errorf("fetch tasklogs: %w", err)
	}

	entries := make([]*models.LogEntry, 0, len(taskEntries))
	for _, te := range taskEntries {
		entry := models.NewLogEntry(scope, server.ID, models.LogSourceTaskLog, te.Level, te.Message, te.Timestamp)
		entry.LoggerName = te.Logger
		entry.Error = te.Error
		entries = append(entries, entry)
	}

	if data, err := e.fetcher.FetchProcessLog(ctx, server, e.cfg.ProcessLogLines); err == nil {
		for _, line := range ParseProcessLog(data) {
			loggedAt := time.Unix(int64(line.Timestamp), 0).UTC()
			entry := models.NewLogEntry(scope, server.ID, models.LogSourceProcessLog, line.Level, line.Message, loggedAt)
			entry.LoggerName = line.Logger
			entry.Error = line.Error
			entries = append(entries, entry)
		}
	} else {
		e.logger.Warn().Err(err).Str("server", server.Hostname).Msg("process log unavailable during ingestion")
	}

	if len(entries) > 0 {
		added, err := e.store.InsertLogEntries(ctx, scope, entries)
		if err != nil {
			return fmt.Errorf("insert log entries: %w", err)
		}
		metrics.LogEntriesIngested.Add(float64(added))
	}

	return e.failFromTaskLogErrors(ctx, scope, taskEntries)
}

// failFromTaskLogErrors marks running operations failed when an
// error-level tasklog entry names their plan. Terminal records are
// untouched; this channel obeys the same write-once rules as the rest.
func (e *Engine) failFromTaskLogErrors(ctx context.Context, scope models.TenantScope, taskEntries []TaskLogEntry) error {
	active, err := e.store.ListActiveOperations(ctx, scope)
	if err != nil {
		return fmt.Errorf("list active operations: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	planOf := make(map[*models.Operation]string)
	for _, op := range active {
		if op.Status != models.OperationStatusRunning || op.PlanID == nil {
			continue
		}
		plan, err := e.store.GetPlanByID(ctx, scope, *op.PlanID)
		if err != nil {
			continue
		}
		planOf[op] = plan.PlanID
	}

	now := time.Now().UTC()
	for _, te := range taskEntries {
		if !strings.EqualFold(te.Level, "error") {
			continue
		}
		for op, planID := range planOf {
			if planID == "" || !strings.Contains(te.Message, planID) {
				continue
			}
			if op.Advance(models.OperationStatusFailed, "", nil, firstNonEmpty(te.Error, te.Message), now) {
				if err := e.store.UpdateOperation(ctx, scope, op); err != nil {
					e.logger.Error().Err(err).Str("operation", op.OperationID).Msg("persist tasklog failure")
				}
			}
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
