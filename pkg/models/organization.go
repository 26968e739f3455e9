package models

import "time"

// Organization groups users by email domain for shared workflow ownership.
type Organization struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// ToolServer is a registered MCP server that fetch nodes may invoke.
// Ownership follows the same user-or-organization scoping as workflows.
type ToolServer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	UserID         *string   `json:"user_id,omitempty"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Principal identifies the authenticated caller of an API operation.
type Principal struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
}

// OwnsWorkflow reports whether the principal owns the definition's scope.
func (p Principal) OwnsWorkflow(d *WorkflowDefinition) bool {
	return ownsScope(p, d.UserID, d.OrganizationID)
}

// OwnsExecution reports whether the principal owns the run's scope.
func (p Principal) OwnsExecution(r *ExecutionRecord) bool {
	return ownsScope(p, r.UserID, r.OrganizationID)
}

// OwnsToolServer reports whether the principal owns the server's scope.
func (p Principal) OwnsToolServer(s *ToolServer) bool {
	return ownsScope(p, s.UserID, s.OrganizationID)
}

func ownsScope(p Principal, userID, orgID *string) bool {
	if userID != nil && *userID == p.UserID {
		return true
	}
	if orgID != nil && p.OrganizationID != "" && *orgID == p.OrganizationID {
		return true
	}
	return false
}
