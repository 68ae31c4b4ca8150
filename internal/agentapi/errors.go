package agentapi

import (
	"errors"
	"fmt"
)

// ErrAgentUnavailable indicates a transport-level failure reaching the
// agent (connection refused, timeout). Callers decide whether that means
// failure or indeterminate; the client never retries.
var ErrAgentUnavailable = errors.New("agent unavailable")

// RejectedError indicates the agent answered with a non-200 status. It is
// a clear remote error and should not be blindly retried.
type RejectedError struct {
	StatusCode int
	Detail     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("agent rejected request: %d %s", e.StatusCode, e.Detail)
}

// IsRejected reports whether err is a RejectedError and returns it.
func IsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
