package provision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/MacJediWizard/backhaul/internal/agentapi"
	"github.com/MacJediWizard/backhaul/internal/metrics"
	"github.com/MacJediWizard/backhaul/internal/models"
)

const agentConfigPath = "/opt/backrest/config/config.json"

// ConfigureInstance sets the agent's instance id and login user. A fresh
// agent may still be booting, so the API write is retried with doubling
// backoff; when every attempt fails the config file is written directly
// over SSH and the service restarted.
func (d *Driver) ConfigureInstance(ctx context.Context, scope models.TenantScope, server *models.Server, instanceID, username, password string) error {
	client := d.clients(server)

	var lastErr error
	delay := d.cfg.ConfigureBackoff
	for attempt := 1; attempt <= d.cfg.ConfigureAttempts; attempt++ {
		lastErr = d.configureViaAPI(ctx, client, instanceID, username, password)
		if lastErr == nil {
			server.InstanceID = instanceID
			metrics.ProvisioningResults.WithLabelValues("configure", "ok").Inc()
			return d.store.UpdateServer(ctx, scope, server)
		}
		d.logger.Warn().
			Err(lastErr).
			Str("server", server.Hostname).
			Int("attempt", attempt).
			Msg("configure attempt failed")
		if attempt < d.cfg.ConfigureAttempts {
			d.sleep(delay)
			delay *= 2
		}
	}

	d.logger.Warn().Str("server", server.Hostname).Msg("configure via API exhausted, writing config over ssh")
	if err := d.configureViaFile(ctx, scope, server, instanceID, username, password); err != nil {
		d.fail(ctx, scope, server, "configure", fmt.Errorf("api: %v; file fallback: %w", lastErr, err))
		return err
	}

	server.InstanceID = instanceID
	metrics.ProvisioningResults.WithLabelValues("configure", "fallback").Inc()
	return d.store.UpdateServer(ctx, scope, server)
}

// configureViaAPI round-trips the config document with the instance id
// and a needsBcrypt user; the agent hashes the password itself.
func (d *Driver) configureViaAPI(ctx context.Context, client ConfigClient, instanceID, username, password string) error {
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	cfg.Instance = instanceID
	cfg.SetUsers([]agentapi.User{{Name: username, Password: password, NeedsBcrypt: true}}, false)
	if _, err := client.SetConfig(ctx, cfg); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// configureViaFile writes a minimal config document directly, hashing the
// password locally, then restarts the agent to pick it up.
func (d *Driver) configureViaFile(ctx context.Context, scope models.TenantScope, server *models.Server, instanceID, username, password string) error {
	conn, _, err := d.connect(ctx, scope, server)
	if err != nil {
		return err
	}
	defer conn.Close()

	users, err := BcryptUsers(username, password)
	if err != nil {
		return err
	}
	doc := agentapi.Config{
		Modno:    1,
		Version:  4,
		Instance: instanceID,
		Auth:     &agentapi.Auth{Users: users},
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := conn.WriteFile(agentConfigPath, raw, "0600"); err != nil {
		return err
	}
	return d.remote(conn, "restart service", "systemctl restart backrest")
}

// BcryptUsers builds the agent user list with a locally-hashed password.
// The agent stores bcrypt hashes base64-encoded.
func BcryptUsers(username, password string) ([]agentapi.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return []agentapi.User{{
		Name:           username,
		PasswordBcrypt: base64.StdEncoding.EncodeToString(hash),
	}}, nil
}
