package models

import (
	"time"

	"github.com/google/uuid"
)

// LogSource identifies which evidence channel a log entry came from.
type LogSource string

const (
	LogSourceProcessLog LogSource = "process_log"
	LogSourceTaskLog    LogSource = "tasklog"
)

// LogEntry is raw timestamped evidence scraped from an agent host. It is
// used to corroborate operation status; the Operation record stays the
// ledger of truth.
type LogEntry struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	ServerID   uuid.UUID `json:"server_id"`
	Source     LogSource `json:"source"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	LoggerName string    `json:"logger_name,omitempty"`
	Error      string    `json:"error,omitempty"`
	LoggedAt   time.Time `json:"logged_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewLogEntry creates a log entry record.
func NewLogEntry(scope TenantScope, serverID uuid.UUID, source LogSource, level, message string, loggedAt time.Time) *LogEntry {
	return &LogEntry{
		ID:        uuid.New(),
		TenantID:  scope.TenantID,
		ServerID:  serverID,
		Source:    source,
		Level:     level,
		Message:   message,
		LoggedAt:  loggedAt,
		CreatedAt: time.Now().UTC(),
	}
}
