package reconcile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/backhaul/internal/crypto"
	"github.com/MacJediWizard/backhaul/internal/models"
	"github.com/MacJediWizard/backhaul/internal/sshexec"
)

// Agent host log locations.
const (
	processLogPath = "/opt/backrest/data/processlogs/backrest.log"
	taskLogGlob    = "/opt/backrest/data/tasklogs/*.sqlite"
)

// CredentialStore resolves SSH credentials for log retrieval.
type CredentialStore interface {
	GetCredentialByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Credential, error)
}

// SSHLogFetcher retrieves agent logs over SSH.
type SSHLogFetcher struct {
	credentials CredentialStore
	cipher      crypto.SecretCipher
	logger      zerolog.Logger
}

// NewSSHLogFetcher creates a log fetcher.
func NewSSHLogFetcher(credentials CredentialStore, cipher crypto.SecretCipher, logger zerolog.Logger) *SSHLogFetcher {
	return &SSHLogFetcher{
		credentials: credentials,
		cipher:      cipher,
		logger:      logger.With().Str("component", "log_fetcher").Logger(),
	}
}

func (f *SSHLogFetcher) connect(ctx context.Context, server *models.Server) (*sshexec.Client, error) {
	scope := models.Scope(server.TenantID)
	cred, err := f.credentials.GetCredentialByID(ctx, scope, server.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	key, err := f.cipher.DecryptString(cred.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}
	client, err := sshexec.Dial(ctx, server.Hostname, server.SSHPort, server.SSHUser, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", server.Hostname, err)
	}
	return client, nil
}

// FetchProcessLog returns the tail of the agent's process log.
func (f *SSHLogFetcher) FetchProcessLog(ctx context.Context, server *models.Server, maxLines int) ([]byte, error) {
	client, err := f.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	out, err := client.Output(fmt.Sprintf("tail -n %d %s", maxLines, processLogPath))
	if err != nil {
		return nil, fmt.Errorf("tail process log: %w", err)
	}
	return []byte(out), nil
}

// FetchTaskLogs copies each tasklog SQLite store to a local temp file and
// reads its rows. Temp files are removed before returning.
func (f *SSHLogFetcher) FetchTaskLogs(ctx context.Context, server *models.Server) ([]TaskLogEntry, error) {
	client, err := f.connect(ctx, server)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	res, err := client.Run(fmt.Sprintf("ls -1 %s 2>/dev/null", taskLogGlob))
	if err != nil {
		return nil, fmt.Errorf("list tasklogs: %w", err)
	}
	paths := strings.Fields(res.Stdout)
	if len(paths) == 0 {
		return nil, nil
	}

	var entries []TaskLogEntry
	for _, remotePath := range paths {
		data, err := client.ReadFile(remotePath)
		if err != nil {
			f.logger.Warn().Err(err).Str("path", remotePath).Str("server", server.Hostname).Msg("tasklog download failed")
			continue
		}
		rows, err := readTaskLogCopy(data)
		if err != nil {
			f.logger.Warn().Err(err).Str("path", remotePath).Str("server", server.Hostname).Msg("tasklog read failed")
			continue
		}
		entries = append(entries, rows...)
	}
	return entries, nil
}

func readTaskLogCopy(data []byte) ([]TaskLogEntry, error) {
	tmp, err := os.CreateTemp("", "backhaul-tasklog-*.sqlite")
	if err != nil {
		return nil, fmt.Errorf("create temp tasklog: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp tasklog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp tasklog: %w", err)
	}
	return ReadTaskLogEntries(tmp.Name())
}
