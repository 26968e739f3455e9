package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mcpflow/backend/internal/engine"
	"mcpflow/backend/pkg/models"
)

// Schema creates the tables the store needs. Applied by the seed command
// and the integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS organizations (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS tool_servers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	user_id TEXT,
	organization_id UUID REFERENCES organizations(id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_definitions (
	id UUID PRIMARY KEY,
	user_id TEXT,
	organization_id UUID REFERENCES organizations(id),
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	nodes JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id UUID PRIMARY KEY,
	workflow_id UUID NOT NULL,
	user_id TEXT,
	organization_id UUID,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	node_logs JSONB NOT NULL DEFAULT '[]',
	result JSONB,
	failed_node_id TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions (workflow_id, started_at DESC);
`

// PostgresStore is the PostgreSQL implementation of the Repository
// interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the store's schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// GetOrganizationByDomain retrieves an organization by its email domain.
func (s *PostgresStore) GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.QueryRow(ctx,
		"SELECT id, name, domain FROM organizations WHERE domain = $1", domain,
	).Scan(&org.ID, &org.Name, &org.Domain)
	if err != nil {
		return nil, wrapNotFound(err, "organization", domain)
	}
	return &org, nil
}

// CreateOrganization stores a new organization.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO organizations (id, name, domain) VALUES ($1, $2, $3)",
		org.ID, org.Name, org.Domain,
	)
	return err
}

// CreateToolServer registers a tool server.
func (s *PostgresStore) CreateToolServer(ctx context.Context, srv *models.ToolServer) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tool_servers (id, name, url, user_id, organization_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		srv.ID, srv.Name, srv.URL, srv.UserID, srv.OrganizationID, srv.CreatedAt,
	)
	return err
}

// GetToolServer retrieves a tool server by ID.
func (s *PostgresStore) GetToolServer(ctx context.Context, id string) (*models.ToolServer, error) {
	var srv models.ToolServer
	err := s.db.QueryRow(ctx,
		"SELECT id, name, url, user_id, organization_id, created_at FROM tool_servers WHERE id = $1", id,
	).Scan(&srv.ID, &srv.Name, &srv.URL, &srv.UserID, &srv.OrganizationID, &srv.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "tool server", id)
	}
	return &srv, nil
}

// ListToolServers lists the tool servers the principal's scopes own.
func (s *PostgresStore) ListToolServers(ctx context.Context, p models.Principal) ([]*models.ToolServer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, url, user_id, organization_id, created_at FROM tool_servers
		 WHERE user_id = $1 OR organization_id::text = $2
		 ORDER BY created_at`,
		p.UserID, p.OrganizationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []*models.ToolServer
	for rows.Next() {
		var srv models.ToolServer
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.URL, &srv.UserID, &srv.OrganizationID, &srv.CreatedAt); err != nil {
			return nil, err
		}
		servers = append(servers, &srv)
	}
	return servers, rows.Err()
}

// CreateWorkflow stores a validated definition. Nodes are stored as JSONB.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, def *models.WorkflowDefinition) error {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_definitions (id, user_id, organization_id, name, description, category, nodes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		def.ID, def.UserID, def.OrganizationID, def.Name, def.Description, def.Category, nodes, def.CreatedAt, def.UpdatedAt,
	)
	return err
}

// GetWorkflow retrieves a definition by ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	var def models.WorkflowDefinition
	var nodes []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, organization_id, name, description, category, nodes, created_at, updated_at
		 FROM workflow_definitions WHERE id = $1`, id,
	).Scan(&def.ID, &def.UserID, &def.OrganizationID, &def.Name, &def.Description, &def.Category, &nodes, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "workflow", id)
	}
	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes of workflow %q: %w", id, err)
	}
	return &def, nil
}

// ListWorkflows lists the definitions owned by the principal's scopes,
// optionally filtered by category.
func (s *PostgresStore) ListWorkflows(ctx context.Context, p models.Principal, category string) ([]*models.WorkflowDefinition, error) {
	query := `SELECT id, user_id, organization_id, name, description, category, nodes, created_at, updated_at
		 FROM workflow_definitions
		 WHERE (user_id = $1 OR organization_id::text = $2)`
	args := []any{p.UserID, p.OrganizationID}
	if category != "" {
		query += " AND category = $3"
		args = append(args, category)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*models.WorkflowDefinition
	for rows.Next() {
		var def models.WorkflowDefinition
		var nodes []byte
		if err := rows.Scan(&def.ID, &def.UserID, &def.OrganizationID, &def.Name, &def.Description, &def.Category, &nodes, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
			return nil, fmt.Errorf("failed to decode nodes of workflow %q: %w", def.ID, err)
		}
		defs = append(defs, &def)
	}
	return defs, rows.Err()
}

// UpdateWorkflow replaces the stored definition in full.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, def *models.WorkflowDefinition) error {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_definitions
		 SET name = $2, description = $3, category = $4, nodes = $5, updated_at = $6
		 WHERE id = $1`,
		def.ID, def.Name, def.Description, def.Category, nodes, def.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %q: %w", def.ID, engine.ErrNotFound)
	}
	return nil
}

// DeleteWorkflow removes a definition.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflow_definitions WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %q: %w", id, engine.ErrNotFound)
	}
	return nil
}

// CreateExecution stores a fresh execution record.
func (s *PostgresStore) CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	logs, result, err := encodeExecution(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO workflow_executions (id, workflow_id, user_id, organization_id, status, started_at, completed_at, node_logs, result, failed_node_id, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.WorkflowID, rec.UserID, rec.OrganizationID, rec.Status, rec.StartedAt, rec.CompletedAt, logs, result, rec.FailedNodeID, rec.Error,
	)
	return err
}

// GetExecution retrieves an execution record by ID.
func (s *PostgresStore) GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	rec, err := scanExecution(s.db.QueryRow(ctx,
		`SELECT id, workflow_id, user_id, organization_id, status, started_at, completed_at, node_logs, result, failed_node_id, error
		 FROM workflow_executions WHERE id = $1`, id,
	))
	if err != nil {
		return nil, wrapNotFound(err, "execution", id)
	}
	return rec, nil
}

// ListExecutionsByWorkflow lists every run of one definition, newest first.
func (s *PostgresStore) ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	return s.listExecutions(ctx,
		`SELECT id, workflow_id, user_id, organization_id, status, started_at, completed_at, node_logs, result, failed_node_id, error
		 FROM workflow_executions WHERE workflow_id = $1 ORDER BY started_at DESC`, workflowID)
}

// ListExecutionsByOwner lists every run owned by the principal's scopes,
// newest first.
func (s *PostgresStore) ListExecutionsByOwner(ctx context.Context, p models.Principal) ([]*models.ExecutionRecord, error) {
	return s.listExecutions(ctx,
		`SELECT id, workflow_id, user_id, organization_id, status, started_at, completed_at, node_logs, result, failed_node_id, error
		 FROM workflow_executions WHERE user_id = $1 OR organization_id::text = $2 ORDER BY started_at DESC`,
		p.UserID, p.OrganizationID)
}

func (s *PostgresStore) listExecutions(ctx context.Context, query string, args ...any) ([]*models.ExecutionRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateExecution persists the record's current status, ledger, and result.
func (s *PostgresStore) UpdateExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	logs, result, err := encodeExecution(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE workflow_executions
		 SET status = $2, completed_at = $3, node_logs = $4, result = $5, failed_node_id = $6, error = $7
		 WHERE id = $1`,
		rec.ID, rec.Status, rec.CompletedAt, logs, result, rec.FailedNodeID, rec.Error,
	)
	return err
}

// AppendNodeLog appends one ledger entry to a running execution, so a
// read-only observer polling the record sees per-node progress.
func (s *PostgresStore) AppendNodeLog(ctx context.Context, executionID string, entry models.NodeExecutionLog) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	_, err = s.db.Exec(ctx,
		"UPDATE workflow_executions SET node_logs = node_logs || $2::jsonb WHERE id = $1",
		executionID, encoded,
	)
	return err
}

func encodeExecution(rec *models.ExecutionRecord) (logs, result []byte, err error) {
	if rec.Logs == nil {
		logs = []byte("[]")
	} else if logs, err = json.Marshal(rec.Logs); err != nil {
		return nil, nil, fmt.Errorf("failed to encode ledger: %w", err)
	}
	if rec.Result != nil {
		if result, err = json.Marshal(rec.Result); err != nil {
			return nil, nil, fmt.Errorf("failed to encode result: %w", err)
		}
	}
	return logs, result, nil
}

func scanExecution(row pgx.Row) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	var logs, result []byte
	err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.UserID, &rec.OrganizationID, &rec.Status, &rec.StartedAt, &rec.CompletedAt, &logs, &result, &rec.FailedNodeID, &rec.Error)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(logs, &rec.Logs); err != nil {
		return nil, fmt.Errorf("failed to decode ledger of execution %q: %w", rec.ID, err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of execution %q: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func wrapNotFound(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", resource, id, engine.ErrNotFound)
	}
	return err
}
