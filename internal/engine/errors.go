package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a referenced definition, execution, or tool
// server does not exist.
var ErrNotFound = errors.New("not found")

// ErrCycle is the defensive pre-execution check: the scheduler could not
// order every node, so the graph contains a cycle. The validator should have
// rejected the definition before it was ever persisted.
var ErrCycle = errors.New("workflow graph contains a cycle")

// ValidationIssue is a single structural problem found in a definition.
type ValidationIssue struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// ValidationError carries the complete list of structural problems found in
// a workflow definition. It blocks persistence entirely; a definition that
// fails validation is never partially accepted.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return "workflow validation failed: " + strings.Join(msgs, "; ")
}

// NodeExecutionError attributes a failure to the node that raised it. The
// first such error terminates the run.
type NodeExecutionError struct {
	NodeID string
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.NodeID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// AccessError reports that the requesting principal does not own the scope
// associated with a definition, execution, or tool server.
type AccessError struct {
	Resource string
	ID       string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied to %s %q", e.Resource, e.ID)
}
