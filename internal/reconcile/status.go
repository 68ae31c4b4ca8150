package reconcile

import (
	"strings"

	"github.com/MacJediWizard/backhaul/internal/models"
)

// NormalizeStatus maps the agent's raw status vocabulary to the local
// enum. Unrecognized values become OperationStatusUnknown, which is
// non-terminal, so an unexpected status string can never finalize a
// record.
func NormalizeStatus(raw string) models.OperationStatus {
	switch strings.TrimPrefix(strings.ToUpper(raw), "STATUS_") {
	case "PENDING":
		return models.OperationStatusPending
	case "INPROGRESS":
		return models.OperationStatusRunning
	case "SUCCESS":
		return models.OperationStatusCompleted
	case "ERROR", "WARNING":
		return models.OperationStatusFailed
	case "USERCANCELLED", "SYSTEMCANCELLED":
		return models.OperationStatusCancelled
	default:
		return models.OperationStatusUnknown
	}
}

// NormalizeType maps the agent's operation type to the local enum.
// Operations this system initiates are backups, so that is the default
// for anything unrecognized.
func NormalizeType(raw string) models.OperationType {
	switch strings.TrimPrefix(strings.ToUpper(raw), "TYPE_") {
	case "PRUNE":
		return models.OperationTypePrune
	case "FORGET":
		return models.OperationTypeForget
	case "CHECK":
		return models.OperationTypeCheck
	default:
		return models.OperationTypeBackup
	}
}
