package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ServerStatus tracks provisioning progress for a customer server.
type ServerStatus string

const (
	ServerStatusPending        ServerStatus = "pending"
	ServerStatusConnected      ServerStatus = "connected"
	ServerStatusFailed         ServerStatus = "failed"
	ServerStatusAgentInstalled ServerStatus = "agent_installed"
)

// DefaultAgentPort is the port the backup agent's control API listens on.
const DefaultAgentPort = 9898

// Server is a customer-owned machine that runs (or will run) a backup agent.
type Server struct {
	ID           uuid.UUID    `json:"id"`
	TenantID     uuid.UUID    `json:"tenant_id"`
	Hostname     string       `json:"hostname"`
	SSHPort      int          `json:"ssh_port"`
	SSHUser      string       `json:"ssh_user"`
	CredentialID uuid.UUID    `json:"credential_id"`
	Status       ServerStatus `json:"status"`
	AgentPort    int          `json:"agent_port"`
	AgentVersion string       `json:"agent_version,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	InstanceID   string       `json:"instance_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewServer creates a server in pending state with default ports.
func NewServer(scope TenantScope, hostname, sshUser string, credentialID uuid.UUID) *Server {
	now := time.Now().UTC()
	return &Server{
		ID:           uuid.New(),
		TenantID:     scope.TenantID,
		Hostname:     hostname,
		SSHPort:      22,
		SSHUser:      sshUser,
		CredentialID: credentialID,
		Status:       ServerStatusPending,
		AgentPort:    DefaultAgentPort,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AgentURL returns the base URL of the agent's control API.
func (s *Server) AgentURL() string {
	return fmt.Sprintf("http://%s:%d", s.Hostname, s.AgentPort)
}

// MarkConnected records a successful SSH reachability check.
func (s *Server) MarkConnected() {
	s.Status = ServerStatusConnected
	s.ErrorMessage = ""
	s.UpdatedAt = time.Now().UTC()
}

// MarkInstalled records a successful agent installation.
func (s *Server) MarkInstalled(version string) {
	s.Status = ServerStatusAgentInstalled
	s.AgentVersion = version
	s.ErrorMessage = ""
	s.UpdatedAt = time.Now().UTC()
}

// MarkFailed records an unrecoverable provisioning error.
func (s *Server) MarkFailed(msg string) {
	s.Status = ServerStatusFailed
	s.ErrorMessage = msg
	s.UpdatedAt = time.Now().UTC()
}
