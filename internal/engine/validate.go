package engine

import (
	"fmt"
	"strings"

	"mcpflow/backend/pkg/models"
)

// Validation issue codes.
const (
	IssueMissingName      = "missing_name"
	IssueMissingOwner     = "missing_owner"
	IssueConflictingOwner = "conflicting_owner"
	IssueNoNodes          = "no_nodes"
	IssueDuplicateNode    = "duplicate_node"
	IssueUnknownInput     = "unknown_input"
	IssueMissingConfig    = "missing_config"
	IssueCycle            = "cycle"
)

// Validate runs every structural check on a definition and accumulates all
// violations instead of stopping at the first, so callers can present the
// complete list. A nil return means the definition is valid.
func Validate(def *models.WorkflowDefinition) []ValidationIssue {
	var issues []ValidationIssue

	if strings.TrimSpace(def.Name) == "" {
		issues = append(issues, ValidationIssue{
			Code:    IssueMissingName,
			Message: "workflow name is required",
		})
	}

	hasUser := def.UserID != nil && *def.UserID != ""
	hasOrg := def.OrganizationID != nil && *def.OrganizationID != ""
	switch {
	case !hasUser && !hasOrg:
		issues = append(issues, ValidationIssue{
			Code:    IssueMissingOwner,
			Message: "workflow must be owned by a user or an organization",
		})
	case hasUser && hasOrg:
		issues = append(issues, ValidationIssue{
			Code:    IssueConflictingOwner,
			Message: "workflow ownership is mutually exclusive: set user or organization, not both",
		})
	}

	if len(def.Nodes) == 0 {
		issues = append(issues, ValidationIssue{
			Code:    IssueNoNodes,
			Message: "workflow must contain at least one node",
		})
	}

	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if seen[n.ID] {
			issues = append(issues, ValidationIssue{
				Code:    IssueDuplicateNode,
				NodeID:  n.ID,
				Message: fmt.Sprintf("duplicate node id %q", n.ID),
			})
		}
		seen[n.ID] = true
	}

	for _, n := range def.Nodes {
		for _, input := range n.Inputs {
			if !seen[input] {
				issues = append(issues, ValidationIssue{
					Code:    IssueUnknownInput,
					NodeID:  n.ID,
					Message: fmt.Sprintf("node %q references unknown input %q", n.ID, input),
				})
			}
		}
		if n.Config == nil {
			issues = append(issues, ValidationIssue{
				Code:    IssueMissingConfig,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node %q has no configuration", n.ID),
			})
		}
	}

	issues = append(issues, findCycles(def.Nodes)...)

	return issues
}

// findCycles walks the dependency graph depth-first with a recursion stack.
// Any node reachable from itself is reported, naming the offending chain.
func findCycles(nodes []models.Node) []ValidationIssue {
	inputs := make(map[string][]string, len(nodes))
	exists := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if exists[n.ID] {
			continue
		}
		exists[n.ID] = true
		inputs[n.ID] = n.Inputs
	}

	var issues []ValidationIssue
	visited := make(map[string]bool, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	var stack []string

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, dep := range inputs[id] {
			if !exists[dep] {
				continue // dangling reference, reported separately
			}
			if onStack[dep] {
				issues = append(issues, ValidationIssue{
					Code:    IssueCycle,
					NodeID:  dep,
					Message: "cycle detected: " + formatCycle(stack, dep),
				})
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
	}

	for _, n := range nodes {
		if !visited[n.ID] {
			visit(n.ID)
		}
	}
	return issues
}

// formatCycle renders the chain from the first occurrence of start on the
// stack back around to start, e.g. "a -> b -> c -> a".
func formatCycle(stack []string, start string) string {
	from := 0
	for i, id := range stack {
		if id == start {
			from = i
			break
		}
	}
	chain := append(append([]string{}, stack[from:]...), start)
	return strings.Join(chain, " -> ")
}
