// Package api contains the HTTP handlers for the workflow service
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"mcpflow/backend/internal/engine"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "mcpflow",
		Version:   "1.0.0",
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// NodeID is set when the problem is attributed to a workflow node.
	NodeID string `json:"node_id,omitempty"`
}

// problem writes an RFC 7807 Problem Details JSON error response.
func problem(c echo.Context, status int, title, detail string) error {
	return problemWithNode(c, status, title, detail, "")
}

func problemWithNode(c echo.Context, status int, title, detail, nodeID string) error {
	p := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		NodeID:   nodeID,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, p)
}

// serviceError maps the engine's error kinds onto HTTP statuses.
func serviceError(c echo.Context, err error) error {
	var accessErr *engine.AccessError
	var nodeErr *engine.NodeExecutionError

	switch {
	case errors.Is(err, engine.ErrNotFound):
		return problem(c, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &accessErr):
		return problem(c, http.StatusForbidden, "Forbidden", accessErr.Error())
	case errors.As(err, &nodeErr):
		return problemWithNode(c, http.StatusInternalServerError, "Node Execution Failed", nodeErr.Error(), nodeErr.NodeID)
	default:
		return problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}
