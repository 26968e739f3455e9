package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"mcpflow/backend/internal/auth"
	"mcpflow/backend/internal/engine"
	"mcpflow/backend/internal/services"
	"mcpflow/backend/pkg/models"
)

// Server holds the dependencies for the API server.
type Server struct {
	Workflows *services.WorkflowService
}

// NewServer creates a new Server.
func NewServer(workflows *services.WorkflowService) *Server {
	return &Server{Workflows: workflows}
}

// RegisterRoutes mounts every API handler on the given group.
func RegisterRoutes(g *echo.Group, s *Server) {
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.POST("/workflows/validate", s.ValidateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	g.GET("/executions", s.ListExecutions)
	g.GET("/executions/:id", s.GetExecution)
}

// ValidationResult is the response of the validate endpoint.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Errors []engine.ValidationIssue `json:"errors"`
}

// ListWorkflows returns the caller's workflows, optionally filtered by the
// category query parameter.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	workflows, err := s.Workflows.List(ctx, principal, c.QueryParam("category"))
	if err != nil {
		return serviceError(c, err)
	}
	if workflows == nil {
		workflows = []*models.WorkflowDefinition{}
	}
	return c.JSON(http.StatusOK, workflows)
}

// CreateWorkflow validates and persists a new workflow owned by the caller.
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	var def models.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}

	if err := s.Workflows.Create(ctx, &def, principal); err != nil {
		var valErr *engine.ValidationError
		if errors.As(err, &valErr) {
			return c.JSON(http.StatusUnprocessableEntity, ValidationResult{Valid: false, Errors: valErr.Issues})
		}
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, def)
}

// ValidateWorkflow runs the structural checks on the submitted definition
// without persisting anything and reports the complete error list.
// (POST /api/v1/workflows/validate)
func (s *Server) ValidateWorkflow(c echo.Context) error {
	principal, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	var def models.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}
	if def.UserID == nil && def.OrganizationID == nil {
		def.UserID = &principal.UserID
	}

	issues := s.Workflows.Validate(&def)
	if issues == nil {
		issues = []engine.ValidationIssue{}
	}
	return c.JSON(http.StatusOK, ValidationResult{Valid: len(issues) == 0, Errors: issues})
}

// GetWorkflow returns one workflow the caller owns.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	def, err := s.Workflows.Get(ctx, c.Param("id"), principal)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, def)
}

// UpdateWorkflow replaces a workflow definition in full after revalidation.
// (PUT /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	var def models.WorkflowDefinition
	if err := c.Bind(&def); err != nil {
		return problem(c, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
	}
	def.ID = c.Param("id")

	if err := s.Workflows.Update(ctx, &def, principal); err != nil {
		var valErr *engine.ValidationError
		if errors.As(err, &valErr) {
			return c.JSON(http.StatusUnprocessableEntity, ValidationResult{Valid: false, Errors: valErr.Issues})
		}
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, def)
}

// DeleteWorkflow removes a workflow the caller owns.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	if err := s.Workflows.Delete(ctx, c.Param("id"), principal); err != nil {
		return serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ExecuteWorkflow starts a run of the workflow and returns the finished
// execution record. A failed run is still a 200: the record carries the
// failed status and the failing node.
// (POST /api/v1/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	rec, err := s.Workflows.Execute(ctx, c.Param("id"), principal)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// GetExecution returns one execution record the caller owns.
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	rec, err := s.Workflows.GetExecution(ctx, c.Param("id"), principal)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ListExecutions lists the caller's runs, optionally restricted to one
// workflow with the workflow_id query parameter.
// (GET /api/v1/executions)
func (s *Server) ListExecutions(c echo.Context) error {
	ctx := c.Request().Context()
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no principal in context")
	}

	recs, err := s.Workflows.ListExecutions(ctx, principal, c.QueryParam("workflow_id"))
	if err != nil {
		return serviceError(c, err)
	}
	if recs == nil {
		recs = []*models.ExecutionRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}
