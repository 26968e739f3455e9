// Package services contains the application services that sit between the
// API surfaces and the engine.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mcpflow/backend/internal/engine"
	"mcpflow/backend/internal/repository"
	"mcpflow/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application
// logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// WorkflowService owns the workflow lifecycle: validate-then-persist for
// definitions, ownership checks for every operation, and run orchestration.
type WorkflowService struct {
	repo   repository.Repository
	engine *engine.Engine
	logger Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(repo repository.Repository, eng *engine.Engine, logger Logger) *WorkflowService {
	return &WorkflowService{repo: repo, engine: eng, logger: logger}
}

// Validate runs the structural checks on a definition without persisting
// anything. A nil slice means the definition is valid.
func (s *WorkflowService) Validate(def *models.WorkflowDefinition) []engine.ValidationIssue {
	return engine.Validate(def)
}

// Create validates a definition and persists it under a scope the principal
// owns. A definition naming no owner defaults to the principal's user scope;
// one naming a foreign owner is rejected. A failing validation blocks
// persistence entirely.
func (s *WorkflowService) Create(ctx context.Context, def *models.WorkflowDefinition, p models.Principal) error {
	if def.UserID == nil && def.OrganizationID == nil {
		def.UserID = &p.UserID
	}
	if issues := engine.Validate(def); len(issues) > 0 {
		return &engine.ValidationError{Issues: issues}
	}
	if !p.OwnsWorkflow(def) {
		return &engine.AccessError{Resource: "workflow", ID: def.ID}
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := s.repo.CreateWorkflow(ctx, def); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	s.logger.Info("workflow created", "workflow_id", def.ID, "name", def.Name)
	return nil
}

// Get retrieves a definition the principal owns.
func (s *WorkflowService) Get(ctx context.Context, id string, p models.Principal) (*models.WorkflowDefinition, error) {
	def, err := s.repo.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.OwnsWorkflow(def) {
		return nil, &engine.AccessError{Resource: "workflow", ID: id}
	}
	return def, nil
}

// List lists the principal's definitions, optionally filtered by category.
func (s *WorkflowService) List(ctx context.Context, p models.Principal, category string) ([]*models.WorkflowDefinition, error) {
	return s.repo.ListWorkflows(ctx, p, category)
}

// Update replaces a stored definition in full after revalidating it. The
// owning scope of the stored definition is kept; an update cannot move a
// workflow between owners.
func (s *WorkflowService) Update(ctx context.Context, def *models.WorkflowDefinition, p models.Principal) error {
	existing, err := s.Get(ctx, def.ID, p)
	if err != nil {
		return err
	}
	def.UserID = existing.UserID
	def.OrganizationID = existing.OrganizationID

	if issues := engine.Validate(def); len(issues) > 0 {
		return &engine.ValidationError{Issues: issues}
	}
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now()

	if err := s.repo.UpdateWorkflow(ctx, def); err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	s.logger.Info("workflow updated", "workflow_id", def.ID)
	return nil
}

// Delete removes a definition the principal owns.
func (s *WorkflowService) Delete(ctx context.Context, id string, p models.Principal) error {
	if _, err := s.Get(ctx, id, p); err != nil {
		return err
	}
	return s.repo.DeleteWorkflow(ctx, id)
}

// Execute runs a definition the principal owns and returns the finished
// execution record. Each invocation creates a fresh record owned
// exclusively by that run; the definition is loaded once at start, so
// concurrent edits only affect runs started after they commit.
//
// A node failure does not surface as a service error: the returned record
// carries the failed status, the failing node, and its message.
func (s *WorkflowService) Execute(ctx context.Context, workflowID string, p models.Principal) (*models.ExecutionRecord, error) {
	def, err := s.Get(ctx, workflowID, p)
	if err != nil {
		return nil, err
	}
	if err := s.checkToolServers(ctx, def, p); err != nil {
		return nil, err
	}

	rec := &models.ExecutionRecord{
		ID:             uuid.New().String(),
		WorkflowID:     def.ID,
		UserID:         def.UserID,
		OrganizationID: def.OrganizationID,
		Status:         models.ExecutionStatusPending,
		StartedAt:      time.Now(),
		Logs:           []models.NodeExecutionLog{},
	}
	if err := s.repo.CreateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	rec.Status = models.ExecutionStatusRunning
	if err := s.repo.UpdateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to mark execution running: %w", err)
	}

	runErr := s.engine.Run(ctx, def, rec, s.repo)

	// Terminal flush is mandatory regardless of the run's outcome.
	if err := s.repo.UpdateExecution(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist execution record: %w", err)
	}
	if runErr != nil {
		s.logger.Error("workflow run failed",
			"workflow_id", def.ID,
			"execution_id", rec.ID,
			"failed_node", rec.FailedNodeID,
		)
	}
	return rec, nil
}

// GetExecution retrieves an execution record the principal owns.
func (s *WorkflowService) GetExecution(ctx context.Context, id string, p models.Principal) (*models.ExecutionRecord, error) {
	rec, err := s.repo.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.OwnsExecution(rec) {
		return nil, &engine.AccessError{Resource: "execution", ID: id}
	}
	return rec, nil
}

// ListExecutions lists runs visible to the principal. With a workflow ID it
// lists the runs of that definition (after an ownership check); without one
// it lists every run the principal owns.
func (s *WorkflowService) ListExecutions(ctx context.Context, p models.Principal, workflowID string) ([]*models.ExecutionRecord, error) {
	if workflowID == "" {
		return s.repo.ListExecutionsByOwner(ctx, p)
	}
	if _, err := s.Get(ctx, workflowID, p); err != nil {
		return nil, err
	}
	return s.repo.ListExecutionsByWorkflow(ctx, workflowID)
}

// checkToolServers verifies, before any node runs, that the principal owns
// every tool server referenced by the definition's fetch nodes.
func (s *WorkflowService) checkToolServers(ctx context.Context, def *models.WorkflowDefinition, p models.Principal) error {
	checked := make(map[string]bool)
	for _, n := range def.Nodes {
		cfg, ok := n.Config.(models.FetchConfig)
		if !ok || checked[cfg.ServerID] {
			continue
		}
		checked[cfg.ServerID] = true

		srv, err := s.repo.GetToolServer(ctx, cfg.ServerID)
		if err != nil {
			return err
		}
		if !p.OwnsToolServer(srv) {
			return &engine.AccessError{Resource: "tool server", ID: cfg.ServerID}
		}
	}
	return nil
}
