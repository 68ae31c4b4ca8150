package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MacJediWizard/backhaul/internal/models"
)

// wrapErr maps pgx errors onto the package sentinels.
func wrapErr(verb string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", verb, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", verb, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", verb, err)
}

// Tenant methods

// CreateTenant creates a tenant.
func (db *DB) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO tenants (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)
	`, tenant.ID, tenant.Name, tenant.Slug, tenant.CreatedAt)
	if err != nil {
		return wrapErr("create tenant", err)
	}
	return nil
}

// ListTenants returns all tenants.
func (db *DB) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, slug, created_at
		FROM tenants
		ORDER BY name
	`)
	if err != nil {
		return nil, wrapErr("list tenants", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// GetTenantBySlug returns a tenant by its slug.
func (db *DB) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		return nil, wrapErr("get tenant by slug", err)
	}
	return &t, nil
}

// GetTenantByID returns a tenant by ID.
func (db *DB) GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, slug, created_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		return nil, wrapErr("get tenant", err)
	}
	return &t, nil
}

// Credential methods

// CreateCredential creates a credential.
func (db *DB) CreateCredential(ctx context.Context, scope models.TenantScope, cred *models.Credential) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO credentials (id, tenant_id, name, ssh_user, private_key_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cred.ID, scope.TenantID, cred.Name, cred.SSHUser, cred.PrivateKeyEncrypted, cred.CreatedAt)
	if err != nil {
		return wrapErr("create credential", err)
	}
	return nil
}

// GetCredentialByID returns a credential within the tenant.
func (db *DB) GetCredentialByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Credential, error) {
	var c models.Credential
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, ssh_user, private_key_encrypted, created_at
		FROM credentials
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID).Scan(&c.ID, &c.TenantID, &c.Name, &c.SSHUser, &c.PrivateKeyEncrypted, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr("get credential", err)
	}
	return &c, nil
}

// ListCredentials returns all credentials for the tenant.
func (db *DB) ListCredentials(ctx context.Context, scope models.TenantScope) ([]*models.Credential, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, name, ssh_user, private_key_encrypted, created_at
		FROM credentials
		WHERE tenant_id = $1
		ORDER BY name
	`, scope.TenantID)
	if err != nil {
		return nil, wrapErr("list credentials", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.SSHUser, &c.PrivateKeyEncrypted, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, &c)
	}
	return creds, rows.Err()
}

// Server methods

const serverColumns = `id, tenant_id, hostname, ssh_port, ssh_user, credential_id,
	status, agent_port, agent_version, error_message, instance_id, created_at, updated_at`

func scanServer(row pgx.Row) (*models.Server, error) {
	var s models.Server
	var status string
	err := row.Scan(
		&s.ID, &s.TenantID, &s.Hostname, &s.SSHPort, &s.SSHUser, &s.CredentialID,
		&status, &s.AgentPort, &s.AgentVersion, &s.ErrorMessage, &s.InstanceID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = models.ServerStatus(status)
	return &s, nil
}

// CreateServer creates a server.
func (db *DB) CreateServer(ctx context.Context, scope models.TenantScope, server *models.Server) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO servers (id, tenant_id, hostname, ssh_port, ssh_user, credential_id,
			status, agent_port, agent_version, error_message, instance_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, server.ID, scope.TenantID, server.Hostname, server.SSHPort, server.SSHUser,
		server.CredentialID, string(server.Status), server.AgentPort, server.AgentVersion,
		server.ErrorMessage, server.InstanceID, server.CreatedAt, server.UpdatedAt)
	if err != nil {
		return wrapErr("create server", err)
	}
	return nil
}

// GetServerByID returns a server within the tenant.
func (db *DB) GetServerByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Server, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+serverColumns+`
		FROM servers
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID)
	server, err := scanServer(row)
	if err != nil {
		return nil, wrapErr("get server", err)
	}
	return server, nil
}

// ListServers returns all servers for the tenant.
func (db *DB) ListServers(ctx context.Context, scope models.TenantScope) ([]*models.Server, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+serverColumns+`
		FROM servers
		WHERE tenant_id = $1
		ORDER BY hostname
	`, scope.TenantID)
	if err != nil {
		return nil, wrapErr("list servers", err)
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

// UpdateServer persists mutable server fields.
func (db *DB) UpdateServer(ctx context.Context, scope models.TenantScope, server *models.Server) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE servers
		SET status = $1, agent_version = $2, error_message = $3, instance_id = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7
	`, string(server.Status), server.AgentVersion, server.ErrorMessage, server.InstanceID,
		server.UpdatedAt, server.ID, scope.TenantID)
	if err != nil {
		return wrapErr("update server", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update server: %w", ErrNotFound)
	}
	return nil
}

// Repository methods

// CreateRepository creates a repository. repository_id is globally unique
// and immutable; a conflict reports ErrDuplicate.
func (db *DB) CreateRepository(ctx context.Context, scope models.TenantScope, repo *models.Repository) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO repositories (id, tenant_id, server_id, name, repository_id, uri, password_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, repo.ID, scope.TenantID, repo.ServerID, repo.Name, repo.RepositoryID, repo.URI,
		repo.PasswordEncrypted, repo.CreatedAt)
	if err != nil {
		return wrapErr("create repository", err)
	}
	return nil
}

// GetRepositoryByID returns a repository within the tenant.
func (db *DB) GetRepositoryByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Repository, error) {
	var r models.Repository
	err := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, server_id, name, repository_id, uri, password_encrypted, created_at
		FROM repositories
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID).Scan(&r.ID, &r.TenantID, &r.ServerID, &r.Name, &r.RepositoryID,
		&r.URI, &r.PasswordEncrypted, &r.CreatedAt)
	if err != nil {
		return nil, wrapErr("get repository", err)
	}
	return &r, nil
}

// ListRepositories returns all repositories for the tenant.
func (db *DB) ListRepositories(ctx context.Context, scope models.TenantScope) ([]*models.Repository, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, server_id, name, repository_id, uri, password_encrypted, created_at
		FROM repositories
		WHERE tenant_id = $1
		ORDER BY name
	`, scope.TenantID)
	if err != nil {
		return nil, wrapErr("list repositories", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		var r models.Repository
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ServerID, &r.Name, &r.RepositoryID,
			&r.URI, &r.PasswordEncrypted, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, &r)
	}
	return repos, rows.Err()
}

// Plan methods

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var p models.Plan
	var paths, excludes, retention []byte
	err := row.Scan(&p.ID, &p.TenantID, &p.RepositoryID, &p.Name, &p.PlanID,
		&paths, &excludes, &p.Schedule, &p.Enabled, &retention, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(paths, &p.Paths); err != nil {
		return nil, fmt.Errorf("decode plan paths: %w", err)
	}
	if err := json.Unmarshal(excludes, &p.Excludes); err != nil {
		return nil, fmt.Errorf("decode plan excludes: %w", err)
	}
	if err := json.Unmarshal(retention, &p.Retention); err != nil {
		return nil, fmt.Errorf("decode plan retention: %w", err)
	}
	return &p, nil
}

const planColumns = `id, tenant_id, repository_id, name, plan_id, paths, excludes, schedule, enabled, retention, created_at`

// CreatePlan creates a plan. plan_id is unique; a conflict reports
// ErrDuplicate.
func (db *DB) CreatePlan(ctx context.Context, scope models.TenantScope, plan *models.Plan) error {
	paths, err := json.Marshal(plan.Paths)
	if err != nil {
		return fmt.Errorf("encode plan paths: %w", err)
	}
	excludes, err := json.Marshal(plan.Excludes)
	if err != nil {
		return fmt.Errorf("encode plan excludes: %w", err)
	}
	retention, err := json.Marshal(plan.Retention)
	if err != nil {
		return fmt.Errorf("encode plan retention: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO plans (id, tenant_id, repository_id, name, plan_id, paths, excludes, schedule, enabled, retention, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, plan.ID, scope.TenantID, plan.RepositoryID, plan.Name, plan.PlanID,
		paths, excludes, plan.Schedule, plan.Enabled, retention, plan.CreatedAt)
	if err != nil {
		return wrapErr("create plan", err)
	}
	return nil
}

// GetPlanByID returns a plan within the tenant.
func (db *DB) GetPlanByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Plan, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID)
	plan, err := scanPlan(row)
	if err != nil {
		return nil, wrapErr("get plan", err)
	}
	return plan, nil
}

// GetPlanByExternalID returns a plan by its agent-side identifier.
func (db *DB) GetPlanByExternalID(ctx context.Context, scope models.TenantScope, planID string) (*models.Plan, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE plan_id = $1 AND tenant_id = $2
	`, planID, scope.TenantID)
	plan, err := scanPlan(row)
	if err != nil {
		return nil, wrapErr("get plan by external id", err)
	}
	return plan, nil
}

// ListPlans returns all plans for the tenant.
func (db *DB) ListPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error) {
	return db.listPlans(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE tenant_id = $1
		ORDER BY name
	`, scope.TenantID)
}

// ListEnabledPlans returns plans with schedules still active.
func (db *DB) ListEnabledPlans(ctx context.Context, scope models.TenantScope) ([]*models.Plan, error) {
	return db.listPlans(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE tenant_id = $1 AND enabled
		ORDER BY name
	`, scope.TenantID)
}

func (db *DB) listPlans(ctx context.Context, query string, args ...any) ([]*models.Plan, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list plans", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// UpdatePlanEnabled flips a plan's enabled flag.
func (db *DB) UpdatePlanEnabled(ctx context.Context, scope models.TenantScope, planID uuid.UUID, enabled bool) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE plans
		SET enabled = $1
		WHERE id = $2 AND tenant_id = $3
	`, enabled, planID, scope.TenantID)
	if err != nil {
		return wrapErr("update plan enabled", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update plan enabled: %w", ErrNotFound)
	}
	return nil
}

// Operation methods

const operationColumns = `id, tenant_id, repository_id, plan_id, operation_id, type, status,
	started_at, completed_at, scheduled_at, snapshot_id, stats, error, created_at, updated_at`

func scanOperation(row pgx.Row) (*models.Operation, error) {
	var o models.Operation
	var opType, status string
	var stats []byte
	err := row.Scan(&o.ID, &o.TenantID, &o.RepositoryID, &o.PlanID, &o.OperationID,
		&opType, &status, &o.StartedAt, &o.CompletedAt, &o.ScheduledAt,
		&o.SnapshotID, &stats, &o.Error, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Type = models.OperationType(opType)
	o.Status = models.OperationStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &o.Stats); err != nil {
			return nil, fmt.Errorf("decode operation stats: %w", err)
		}
	}
	return &o, nil
}

func encodeStats(stats map[string]int64) ([]byte, error) {
	if stats == nil {
		return nil, nil
	}
	return json.Marshal(stats)
}

// CreateOperation inserts an operation. operation_id is unique; a
// conflict reports ErrDuplicate.
func (db *DB) CreateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error {
	stats, err := encodeStats(op.Stats)
	if err != nil {
		return fmt.Errorf("encode operation stats: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO operations (id, tenant_id, repository_id, plan_id, operation_id, type, status,
			started_at, completed_at, scheduled_at, snapshot_id, stats, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, op.ID, scope.TenantID, op.RepositoryID, op.PlanID, op.OperationID,
		string(op.Type), string(op.Status), op.StartedAt, op.CompletedAt, op.ScheduledAt,
		op.SnapshotID, stats, op.Error, op.CreatedAt, op.UpdatedAt)
	if err != nil {
		return wrapErr("create operation", err)
	}
	return nil
}

// UpdateOperation persists an advanced operation.
func (db *DB) UpdateOperation(ctx context.Context, scope models.TenantScope, op *models.Operation) error {
	stats, err := encodeStats(op.Stats)
	if err != nil {
		return fmt.Errorf("encode operation stats: %w", err)
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE operations
		SET status = $1, started_at = $2, completed_at = $3, snapshot_id = $4,
			stats = $5, error = $6, plan_id = $7, updated_at = $8
		WHERE id = $9 AND tenant_id = $10
	`, string(op.Status), op.StartedAt, op.CompletedAt, op.SnapshotID,
		stats, op.Error, op.PlanID, op.UpdatedAt, op.ID, scope.TenantID)
	if err != nil {
		return wrapErr("update operation", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update operation: %w", ErrNotFound)
	}
	return nil
}

// GetOperationByID returns an operation by local ID.
func (db *DB) GetOperationByID(ctx context.Context, scope models.TenantScope, id uuid.UUID) (*models.Operation, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID)
	op, err := scanOperation(row)
	if err != nil {
		return nil, wrapErr("get operation", err)
	}
	return op, nil
}

// GetOperationByExternalID returns the single row for an external id.
func (db *DB) GetOperationByExternalID(ctx context.Context, scope models.TenantScope, operationID string) (*models.Operation, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE operation_id = $1 AND tenant_id = $2
	`, operationID, scope.TenantID)
	op, err := scanOperation(row)
	if err != nil {
		return nil, wrapErr("get operation by external id", err)
	}
	return op, nil
}

// ListOperations returns recent operations for the tenant, newest first.
func (db *DB) ListOperations(ctx context.Context, scope models.TenantScope, limit int) ([]*models.Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.listOperations(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, scope.TenantID, limit)
}

// ListActiveOperations returns non-terminal operations for the tenant.
func (db *DB) ListActiveOperations(ctx context.Context, scope models.TenantScope) ([]*models.Operation, error) {
	return db.listOperations(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE tenant_id = $1 AND status IN ('pending', 'scheduled', 'running')
		ORDER BY created_at
	`, scope.TenantID)
}

func (db *DB) listOperations(ctx context.Context, query string, args ...any) ([]*models.Operation, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list operations", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// HasUpcomingOperation reports whether a scheduled or pending operation
// for the plan already targets the given minute.
func (db *DB) HasUpcomingOperation(ctx context.Context, scope models.TenantScope, planID uuid.UUID, minute time.Time) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM operations
			WHERE tenant_id = $1 AND plan_id = $2
			  AND status IN ('scheduled', 'pending')
			  AND date_trunc('minute', scheduled_at) = $3
		)
	`, scope.TenantID, planID, minute).Scan(&exists)
	if err != nil {
		return false, wrapErr("check upcoming operation", err)
	}
	return exists, nil
}

// CountRecentBackupOperations counts backup operations created for the
// plan since the given instant.
func (db *DB) CountRecentBackupOperations(ctx context.Context, scope models.TenantScope, planID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM operations
		WHERE tenant_id = $1 AND plan_id = $2 AND type = 'backup' AND created_at >= $3
	`, scope.TenantID, planID, since).Scan(&count)
	if err != nil {
		return 0, wrapErr("count recent operations", err)
	}
	return count, nil
}

// Log entry methods

// InsertLogEntries stores scraped log evidence, ignoring rows already
// ingested. It returns how many rows were actually inserted.
func (db *DB) InsertLogEntries(ctx context.Context, scope models.TenantScope, entries []*models.LogEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		tag, err := db.Pool.Exec(ctx, `
			INSERT INTO log_entries (id, tenant_id, server_id, source, level, message, logger_name, error, logged_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT DO NOTHING
		`, e.ID, scope.TenantID, e.ServerID, string(e.Source), e.Level, e.Message,
			e.LoggerName, e.Error, e.LoggedAt, e.CreatedAt)
		if err != nil {
			return inserted, wrapErr("insert log entry", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListLogEntries returns recent log evidence for a server, newest first.
func (db *DB) ListLogEntries(ctx context.Context, scope models.TenantScope, serverID uuid.UUID, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, server_id, source, level, message, logger_name, error, logged_at, created_at
		FROM log_entries
		WHERE tenant_id = $1 AND server_id = $2
		ORDER BY logged_at DESC
		LIMIT $3
	`, scope.TenantID, serverID, limit)
	if err != nil {
		return nil, wrapErr("list log entries", err)
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var source string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ServerID, &source, &e.Level,
			&e.Message, &e.LoggerName, &e.Error, &e.LoggedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Source = models.LogSource(source)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
