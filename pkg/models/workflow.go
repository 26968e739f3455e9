// Package models defines the domain models for the workflow service
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType is the closed set of node kinds a workflow may contain.
type NodeType string

const (
	NodeTypeFetch       NodeType = "fetch"
	NodeTypeTransform   NodeType = "transform"
	NodeTypeFilter      NodeType = "filter"
	NodeTypeMerge       NodeType = "merge"
	NodeTypeAction      NodeType = "action"
	NodeTypeConditional NodeType = "conditional"
)

// MergeStrategy selects how a merge node combines its inputs.
type MergeStrategy string

const (
	MergeStrategyConcat       MergeStrategy = "concat"
	MergeStrategyDeduplicate  MergeStrategy = "deduplicate"
	MergeStrategyMergeObjects MergeStrategy = "merge_objects"
)

// ActionType names the terminal side effect an action node performs.
type ActionType string

const (
	ActionSave      ActionType = "save"
	ActionNotify    ActionType = "notify"
	ActionSendEmail ActionType = "send_email"
	ActionWebhook   ActionType = "webhook"
)

// ConditionOperator is the comparison applied by a single filter condition.
type ConditionOperator string

const (
	OperatorEquals   ConditionOperator = "equals"
	OperatorContains ConditionOperator = "contains"
	OperatorGt       ConditionOperator = "gt"
	OperatorLt       ConditionOperator = "lt"
)

// NodeConfig is the type-specific configuration payload of a node. The set of
// implementations is closed; the executor dispatches on the concrete type.
type NodeConfig interface {
	nodeConfig()
}

// FetchConfig configures a fetch node: one tool call against a registered
// MCP tool server. Parameter values may reference upstream outputs with
// $input / $input[N] templates.
type FetchConfig struct {
	ServerID   string         `json:"server_id"`
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TransformConfig configures a transform node: an LLM prompt applied to the
// serialized inputs.
type TransformConfig struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// FilterCondition is one predicate on a field of each item in the input
// sequence. All conditions of a filter node must hold for an item to pass.
type FilterCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
}

// FilterConfig configures a filter node.
type FilterConfig struct {
	Conditions []FilterCondition `json:"conditions"`
}

// MergeConfig configures a merge node. Key is required for the deduplicate
// strategy and ignored otherwise.
type MergeConfig struct {
	Strategy MergeStrategy `json:"strategy"`
	Key      string        `json:"key,omitempty"`
}

// ActionConfig configures a terminal action node.
type ActionConfig struct {
	Action  ActionType `json:"action"`
	Message string     `json:"message,omitempty"`
}

// ConditionalConfig configures a conditional node. Expression is evaluated
// against the node's first input; TrueNodeID/FalseNodeID name the intended
// next node for the routing annotation.
type ConditionalConfig struct {
	Expression  string `json:"expression"`
	TrueNodeID  string `json:"true_node_id,omitempty"`
	FalseNodeID string `json:"false_node_id,omitempty"`
}

func (FetchConfig) nodeConfig()       {}
func (TransformConfig) nodeConfig()   {}
func (FilterConfig) nodeConfig()      {}
func (MergeConfig) nodeConfig()       {}
func (ActionConfig) nodeConfig()      {}
func (ConditionalConfig) nodeConfig() {}

// Node is one typed unit of work in a workflow. Inputs lists the node IDs
// whose outputs this node consumes, in the order it consumes them.
type Node struct {
	ID     string     `json:"id"`
	Type   NodeType   `json:"type"`
	Config NodeConfig `json:"config"`
	Inputs []string   `json:"inputs,omitempty"`
}

// nodeJSON is the wire shape of a Node; Config is decoded according to Type.
type nodeJSON struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
	Inputs []string        `json:"inputs,omitempty"`
}

// MarshalJSON encodes the node with its type-specific config payload.
func (n Node) MarshalJSON() ([]byte, error) {
	raw := nodeJSON{ID: n.ID, Type: n.Type, Inputs: n.Inputs}
	if n.Config != nil {
		cfg, err := json.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config of node %q: %w", n.ID, err)
		}
		raw.Config = cfg
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes the config payload into the concrete type named by
// the node's type tag. A missing or null config leaves Config nil; the
// validator reports that as a missing configuration.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.ID = raw.ID
	n.Type = raw.Type
	n.Inputs = raw.Inputs
	n.Config = nil

	if len(raw.Config) == 0 || string(raw.Config) == "null" {
		return nil
	}

	switch raw.Type {
	case NodeTypeFetch:
		var cfg FetchConfig
		if err := json.Unmarshal(raw.Config, &cfg); err != nil {
			return fmt.Errorf("invalid fetch config for node %q: %w", raw.ID, err)
		}
		n.Config = cfg
	case NodeTypeTransform:
		var cfg TransformConfig
		if err := json.Unmarshal(raw.Config, &cfg); err != nil {
			return fmt.Errorf("invalid transform config for node %q: %w", raw.ID, err)
		}
		n.Config = cfg
	case NodeTypeFilter:
		var cfg FilterConfig
		if err := json.Unmarshal(raw.Config, &cfg); err != nil {
			return fmt.Errorf("invalid filter config for node %q: %w", raw.ID, err)
		}
		n.Config = cfg
	case NodeTypeMerge:
		var cfg MergeConfig
		if err := json.Unmarshal(raw.Config, &cfg); err != nil {
			return fmt.Errorf("invalid merge config for node %q: %w", raw.ID, err)
		}
		n.Config = cfg
	case NodeTypeAction:
		var cfg ActionConfig
		if err := json.Unmarshal(raw.Config, &cfg); err != nil {
			return fmt.Errorf("invalid action config for node %q: %w", raw.ID, err)
		}
		n.Config = cfg
	case NodeTypeConditional:
		var cfg ConditionalConfig
		if err := json.Unmarshal(raw.Config, &cfg); err != nil {
			return fmt.Errorf("invalid conditional config for node %q: %w", raw.ID, err)
		}
		n.Config = cfg
	default:
		return fmt.Errorf("unknown node type %q for node %q", raw.Type, raw.ID)
	}
	return nil
}

// WorkflowDefinition is the stored definition of a workflow DAG. Exactly one
// of UserID and OrganizationID owns the definition. Node IDs are unique
// within a definition and every input reference resolves to a node in Nodes.
// A persisted definition is only changed by full replace-and-revalidate.
type WorkflowDefinition struct {
	ID             string    `json:"id"`
	UserID         *string   `json:"user_id,omitempty"`
	OrganizationID *string   `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category,omitempty"`
	Nodes          []Node    `json:"nodes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Node returns the node with the given ID, or nil.
func (d *WorkflowDefinition) Node(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}
