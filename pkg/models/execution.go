package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow run. Completed and
// failed are terminal and never left again.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// NodeStatus is the recorded outcome of a single node within a run.
type NodeStatus string

const (
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// NodeExecutionLog is one ledger entry: the outcome of one node in one run.
type NodeExecutionLog struct {
	NodeID      string     `json:"node_id"`
	Status      NodeStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Output      any        `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ExecutionRecord is one run of a workflow definition. Each run owns its
// record exclusively; the ledger is append-only and ordered by execution.
// Result holds the output of the last node that actually ran, which is the
// final node of the schedule for a completed run.
type ExecutionRecord struct {
	ID             string             `json:"id"`
	WorkflowID     string             `json:"workflow_id"`
	UserID         *string            `json:"user_id,omitempty"`
	OrganizationID *string            `json:"organization_id,omitempty"`
	Status         ExecutionStatus    `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	Logs           []NodeExecutionLog `json:"logs"`
	Result         any                `json:"result,omitempty"`
	FailedNodeID   string             `json:"failed_node_id,omitempty"`
	Error          string             `json:"error,omitempty"`
}
