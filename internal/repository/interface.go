package repository

import (
	"context"

	"mcpflow/backend/pkg/models"
)

// Repository is the persistence collaborator for workflow definitions,
// execution records, tool servers, and organizations. The engine never
// manages storage directly, only shapes what must be persisted.
type Repository interface {
	// Organizations
	GetOrganizationByDomain(ctx context.Context, domain string) (*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error

	// Tool servers
	CreateToolServer(ctx context.Context, srv *models.ToolServer) error
	GetToolServer(ctx context.Context, id string) (*models.ToolServer, error)
	ListToolServers(ctx context.Context, p models.Principal) ([]*models.ToolServer, error)

	// Workflow definitions
	CreateWorkflow(ctx context.Context, def *models.WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, p models.Principal, category string) ([]*models.WorkflowDefinition, error)
	// UpdateWorkflow replaces the stored definition in full.
	UpdateWorkflow(ctx context.Context, def *models.WorkflowDefinition) error
	DeleteWorkflow(ctx context.Context, id string) error

	// Execution records
	CreateExecution(ctx context.Context, rec *models.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error)
	ListExecutionsByOwner(ctx context.Context, p models.Principal) ([]*models.ExecutionRecord, error)
	// UpdateExecution persists the record's current status, ledger, and
	// result. Called at least at terminal status.
	UpdateExecution(ctx context.Context, rec *models.ExecutionRecord) error
	// AppendNodeLog appends one ledger entry to a running execution.
	AppendNodeLog(ctx context.Context, executionID string, entry models.NodeExecutionLog) error
}
