package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpflow/backend/pkg/models"
)

// ServerResolver looks up a registered tool server by ID. The repository
// satisfies this interface.
type ServerResolver interface {
	GetToolServer(ctx context.Context, id string) (*models.ToolServer, error)
}

// Logger matches the application logger's call shape.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// MCPToolCaller invokes tools on registered MCP servers over SSE. Clients
// are created lazily per server and reused across calls.
type MCPToolCaller struct {
	resolver ServerResolver
	logger   Logger

	mu      sync.Mutex
	clients map[string]*client.Client
}

// NewMCPToolCaller creates an MCPToolCaller resolving servers through the
// given resolver.
func NewMCPToolCaller(resolver ServerResolver, logger Logger) *MCPToolCaller {
	return &MCPToolCaller{
		resolver: resolver,
		logger:   logger,
		clients:  make(map[string]*client.Client),
	}
}

// Call invokes toolName on the server registered under serverID. A result
// flagged as an error by the server fails the call with the tool's reported
// message. Text results that parse as JSON are returned as structured data,
// otherwise as the raw text.
func (m *MCPToolCaller) Call(ctx context.Context, serverID, toolName string, params map[string]any) (any, error) {
	c, err := m.clientFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = params

	m.logger.Debug("calling tool", "server_id", serverID, "tool", toolName)

	res, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tool call %q on server %q failed: %w", toolName, serverID, err)
	}

	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, fmt.Errorf("tool %q: %s", toolName, text)
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}
	return text, nil
}

// clientFor returns a connected, initialized client for the server,
// creating one on first use.
func (m *MCPToolCaller) clientFor(ctx context.Context, serverID string) (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[serverID]; ok {
		return c, nil
	}

	srv, err := m.resolver.GetToolServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tool server %q: %w", serverID, err)
	}

	c, err := client.NewSSEMCPClient(srv.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for server %q: %w", serverID, err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to server %q: %w", serverID, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "mcpflow",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize session with server %q: %w", serverID, err)
	}

	m.logger.Info("connected to tool server", "server_id", serverID, "name", srv.Name)
	m.clients[serverID] = c
	return c, nil
}

// Close shuts down every open client connection.
func (m *MCPToolCaller) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Error("failed to close tool server client", "server_id", id, "error", err)
		}
	}
	m.clients = make(map[string]*client.Client)
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
