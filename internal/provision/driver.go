// Package provision installs and configures backup agents on customer
// servers over SSH. It drives the server state machine
// pending -> connected -> agent_installed, with failed reachable from
// every step.
package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
	"github.com/MacJediWizard/backhaul/internal/sshexec"
)

// Store defines the data access the driver needs.
type Store interface {
	GetCredentialByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Credential, error)
	UpdateServer(ctx context.Context, scope models.TenantScope, server *models.Server) error
}

// Runner is one established SSH connection. It matches *sshexec.Client
// and exists so tests can substitute a scripted remote host.
type Runner interface {
	Run(command string) (*sshexec.Result, error)
	Output(command string) (string, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, mode string) error
	Close() error
}

// Dialer opens an SSH connection to a server with decrypted key material.
type Dialer func(ctx context.Context, server *models.Server, privateKey []byte) (Runner, error)

// ConfigClient is the slice of the agent API the driver consumes.
type ConfigClient interface {
	GetConfig(ctx context.Context) (*agentapi.Config, error)
	SetConfig(ctx context.Context, cfg *agentapi.Config) (*agentapi.Config, error)
}

// ClientFactory builds an agent client for a server.
type ClientFactory func(server *models.Server) ConfigClient

// Config holds installation settings.
type Config struct {
	// AgentVersion is the release to install, e.g. "1.9.1".
	AgentVersion string
	// DownloadURL is the release tarball URL template; %s is the version.
	DownloadURL string
	// UseAnsible selects the playbook install path over the direct one.
	UseAnsible bool
	// PlaybookPath locates the install playbook when UseAnsible is set.
	PlaybookPath string
	// ConfigureAttempts bounds SetConfig retries against a booting agent.
	ConfigureAttempts int
	// ConfigureBackoff is the initial retry delay; it doubles per attempt.
	ConfigureBackoff time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AgentVersion:      "1.9.1",
		DownloadURL:       "https://github.com/garethgeorge/backrest/releases/download/v%s/backrest_Linux_x86_64.tar.gz",
		ConfigureAttempts: 5,
		ConfigureBackoff:  3 * time.Second,
	}
}

// Driver provisions agents on servers.
type Driver struct {
	store   Store
	cipher  crypto.SecretCipher
	dial    Dialer
	clients ClientFactory
	cfg     Config
	logger  zerolog.Logger

	// sleep is swappable in tests to skip real backoff waits.
	sleep func(time.Duration)
}

// New creates a provisioning driver.
func New(store Store, cipher crypto.SecretCipher, dial Dialer, clients ClientFactory, cfg Config, logger zerolog.Logger) *Driver {
	return &Driver{
		store:   store,
		cipher:  cipher,
		dial:    dial,
		clients: clients,
		cfg:     cfg,
		logger:  logger.With().Str("component", "provision").Logger(),
		sleep:   time.Sleep,
	}
}

// DefaultDialer opens real SSH connections.
func DefaultDialer(ctx context.Context, server *models.Server, privateKey []byte) (Runner, error) {
	return sshexec.Dial(ctx, server.Hostname, server.SSHPort, server.SSHUser, privateKey)
}

// connect decrypts the server's credential and dials it.
func (d *Driver) connect(ctx context.Context, scope models.TenantScope, server *models.Server) (Runner, []byte, error) {
	cred, err := d.store.GetCredentialByID(ctx, scope, server.CredentialID)
	if err != nil {
		return nil, nil, fmt.Errorf("get credential: %w", err)
	}
	key, err := d.cipher.DecryptString(cred.PrivateKeyEncrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt private key: %w", err)
	}
	conn, err := d.dial(ctx, server, []byte(key))
	if err != nil {
		return nil, nil, err
	}
	return conn, []byte(key), nil
}

// TestConnection verifies SSH reachability and records the outcome.
func (d *Driver) TestConnection(ctx context.Context, scope models.TenantScope, server *models.Server) error {
	conn, _, err := d.connect(ctx, scope, server)
	if err != nil {
		d.fail(ctx, scope, server, "connect", err)
		return err
	}
	defer conn.Close()

	uname, err := conn.Output("uname -a")
	if err != nil {
		d.fail(ctx, scope, server, "connect", err)
		return err
	}

	d.logger.Info().
		Str("server", server.Hostname).
		Str("uname", strings.TrimSpace(uname)).
		Msg("connection verified")

	server.MarkConnected()
	metrics.ProvisioningResults.WithLabelValues("connect", "ok").Inc()
	return d.store.UpdateServer(ctx, scope, server)
}

// InstallAgent installs the backup agent. A server already running the
// agent is recorded as installed without reinstalling.
func (d *Driver) InstallAgent(ctx context.Context, scope models.TenantScope, server *models.Server) error {
	conn, key, err := d.connect(ctx, scope, server)
	if err != nil {
		d.fail(ctx, scope, server, "install", err)
		return err
	}
	defer conn.Close()

	if version, ok := d.agentActive(conn); ok {
		d.logger.Info().Str("server", server.Hostname).Str("version", version).Msg("agent already installed")
		server.MarkInstalled(version)
		metrics.ProvisioningResults.WithLabelValues("install", "already_installed").Inc()
		return d.store.UpdateServer(ctx, scope, server)
	}

	if d.cfg.UseAnsible {
		err = d.installWithPlaybook(ctx, server, key)
	} else {
		err = d.installDirect(conn)
	}
	if err != nil {
		d.fail(ctx, scope, server, "install", err)
		return err
	}

	version, ok := d.agentActive(conn)
	if !ok {
		err := fmt.Errorf("agent not active after install")
		d.fail(ctx, scope, server, "install", err)
		return err
	}

	server.MarkInstalled(version)
	metrics.ProvisioningResults.WithLabelValues("install", "ok").Inc()
	return d.store.UpdateServer(ctx, scope, server)
}

// agentActive reports whether the backrest service is running and, if so,
// the binary's version.
func (d *Driver) agentActive(conn Runner) (string, bool) {
	res, err := conn.Run("systemctl is-active backrest")
	if err != nil || res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "active" {
		return "", false
	}
	out, err := conn.Output("/opt/backrest/backrest --version 2>/dev/null || true")
	if err != nil {
		return "unknown", true
	}
	return parseVersion(out), true
}

// parseVersion extracts the version token from `backrest --version`
// output, falling back to "unknown".
func parseVersion(out string) string {
	fields := strings.Fields(strings.TrimSpace(out))
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return strings.TrimPrefix(fields[i+1], "v")
		}
	}
	if len(fields) == 1 {
		return strings.TrimPrefix(fields[0], "v")
	}
	return "unknown"
}

// fail records a failed provisioning step on the server row.
func (d *Driver) fail(ctx context.Context, scope models.TenantScope, server *models.Server, step string, cause error) {
	d.logger.Error().Err(cause).Str("server", server.Hostname).Str("step", step).Msg("provisioning step failed")
	metrics.ProvisioningResults.WithLabelValues(step, "failed").Inc()
	server.MarkFailed(cause.Error())
	if err := d.store.UpdateServer(ctx, scope, server); err != nil {
		d.logger.Error().Err(err).Str("server", server.Hostname).Msg("persist failed status")
	}
}
