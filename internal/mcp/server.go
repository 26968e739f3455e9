// Package mcp exposes the workflow service as MCP tools, so MCP-native
// clients can list, run, and inspect workflows.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mcpflow/backend/internal/auth"
	"mcpflow/backend/internal/services"
	"mcpflow/backend/pkg/models"
)

// Server wraps an MCP server around the workflow service. The MCP transport
// carries no OIDC session, so every tool call runs as the configured
// principal.
type Server struct {
	mcpServer *server.MCPServer
	workflows *services.WorkflowService
	principal models.Principal
}

// NewServer creates the MCP surface for the given service.
func NewServer(workflows *services.WorkflowService, principal models.Principal) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"mcpflow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
		principal: principal,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List the stored workflow definitions"),
			mcp.WithString("category", mcp.Description("Optional category filter")),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_workflow",
			mcp.WithDescription("Run a workflow and return its execution record"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow to run")),
		),
		s.handleExecuteWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_execution",
			mcp.WithDescription("Fetch an execution record with its per-node ledger"),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("The ID of the execution")),
		),
		s.handleGetExecution,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := ""
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		category, _ = args["category"].(string)
	}

	ctx = auth.WithPrincipal(ctx, s.principal)
	workflows, err := s.workflows.List(ctx, s.principal, category)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(workflows)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	ctx = auth.WithPrincipal(ctx, s.principal)
	rec, err := s.workflows.Execute(ctx, workflowID, s.principal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to execute workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(rec)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	executionID, ok := args["execution_id"].(string)
	if !ok || executionID == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_id"), nil
	}

	ctx = auth.WithPrincipal(ctx, s.principal)
	rec, err := s.workflows.GetExecution(ctx, executionID, s.principal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get execution: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(rec)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers mounts the MCP endpoints on the given mux.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
