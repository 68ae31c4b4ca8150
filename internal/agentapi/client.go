// Package agentapi is a typed HTTP client for the backup agent's control
// API. Every RPC is a single POST with a JSON body; the client performs
// no retries, leaving retry policy to callers.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds control-plane calls to the agent.
const DefaultTimeout = 30 * time.Second

// Client talks to one agent instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     zerolog.Logger
}

// NewClient creates a client for the agent at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "agent_client").Str("agent", baseURL).Logger(),
	}
}

// Login authenticates against the agent and stores the bearer token for
// subsequent calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	req := map[string]string{"username": username, "password": password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/v1.Authentication/Login", req, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = resp.Token
	return nil
}

// GetConfig fetches the agent's full configuration document.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := c.post(ctx, "/v1.Backrest/GetConfig", struct{}{}, &cfg); err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &cfg, nil
}

// SetConfig writes the full configuration document back to the agent.
// The document must carry the modno obtained from GetConfig.
func (c *Client) SetConfig(ctx context.Context, cfg *Config) (*Config, error) {
	var updated Config
	if err := c.post(ctx, "/v1.Backrest/SetConfig", cfg, &updated); err != nil {
		return nil, fmt.Errorf("set config: %w", err)
	}
	return &updated, nil
}

// AddRepo registers a repository on the agent.
func (c *Client) AddRepo(ctx context.Context, repo Repo) (*Config, error) {
	var cfg Config
	if err := c.post(ctx, "/v1.Backrest/AddRepo", repo, &cfg); err != nil {
		return nil, fmt.Errorf("add repo: %w", err)
	}
	return &cfg, nil
}

// Backup triggers a backup for a plan. The agent executes asynchronously;
// a successful response only means the run was accepted.
func (c *Client) Backup(ctx context.Context, planID string) error {
	req := map[string]string{"value": planID}
	if err := c.post(ctx, "/v1.Backrest/Backup", req, nil); err != nil {
		return fmt.Errorf("trigger backup: %w", err)
	}
	return nil
}

// GetOperations lists operations matching the selector.
func (c *Client) GetOperations(ctx context.Context, sel OperationSelector) ([]Operation, error) {
	req := struct {
		Selector OperationSelector `json:"selector"`
	}{Selector: sel}
	var resp struct {
		Operations []Operation `json:"operations"`
	}
	if err := c.post(ctx, "/v1.Backrest/GetOperations", req, &resp); err != nil {
		return nil, fmt.Errorf("get operations: %w", err)
	}
	return resp.Operations, nil
}

// GetOperation fetches a single operation by external identifier.
func (c *Client) GetOperation(ctx context.Context, operationID string) (*Operation, error) {
	req := map[string]string{"value": operationID}
	var op Operation
	if err := c.post(ctx, "/v1.Backrest/GetOperation", req, &op); err != nil {
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return &op, nil
}

// ListSnapshots lists snapshots stored in a repository, optionally
// narrowed to one plan.
func (c *Client) ListSnapshots(ctx context.Context, repoID, planID string) ([]Snapshot, error) {
	req := map[string]string{"repo_id": repoID}
	if planID != "" {
		req["plan_id"] = planID
	}
	var resp struct {
		Snapshots []Snapshot `json:"snapshots"`
	}
	if err := c.post(ctx, "/v1.Backrest/ListSnapshots", req, &resp); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return resp.Snapshots, nil
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrAgentUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("agent rejected request")
		return &RejectedError{StatusCode: resp.StatusCode, Detail: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
