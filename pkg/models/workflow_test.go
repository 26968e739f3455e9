package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeUnmarshalDecodesTypedConfig(t *testing.T) {
	raw := `{
		"id": "fetch_issues",
		"type": "fetch",
		"config": {"server_id": "srv-1", "tool_name": "list_issues", "parameters": {"state": "open"}},
		"inputs": []
	}`

	var n Node
	require.NoError(t, json.Unmarshal([]byte(raw), &n))

	cfg, ok := n.Config.(FetchConfig)
	require.True(t, ok, "expected FetchConfig, got %T", n.Config)
	assert.Equal(t, "srv-1", cfg.ServerID)
	assert.Equal(t, "list_issues", cfg.ToolName)
	assert.Equal(t, map[string]any{"state": "open"}, cfg.Parameters)
}

func TestNodeUnmarshalConfigByType(t *testing.T) {
	cases := []struct {
		nodeType NodeType
		config   string
		want     any
	}{
		{NodeTypeTransform, `{"prompt": "Summarize", "max_tokens": 200}`, TransformConfig{Prompt: "Summarize", MaxTokens: 200}},
		{NodeTypeFilter, `{"conditions": [{"field": "x", "operator": "gt", "value": 3}]}`, FilterConfig{Conditions: []FilterCondition{{Field: "x", Operator: OperatorGt, Value: float64(3)}}}},
		{NodeTypeMerge, `{"strategy": "deduplicate", "key": "id"}`, MergeConfig{Strategy: MergeStrategyDeduplicate, Key: "id"}},
		{NodeTypeAction, `{"action": "notify", "message": "hi"}`, ActionConfig{Action: ActionNotify, Message: "hi"}},
		{NodeTypeConditional, `{"expression": "input.x > 1", "true_node_id": "a"}`, ConditionalConfig{Expression: "input.x > 1", TrueNodeID: "a"}},
	}

	for _, tc := range cases {
		t.Run(string(tc.nodeType), func(t *testing.T) {
			raw := `{"id": "n", "type": "` + string(tc.nodeType) + `", "config": ` + tc.config + `}`
			var n Node
			require.NoError(t, json.Unmarshal([]byte(raw), &n))
			assert.Equal(t, tc.want, n.Config)
		})
	}
}

func TestNodeUnmarshalUnknownType(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"id": "n", "type": "teleport", "config": {}}`), &n)
	assert.ErrorContains(t, err, "unknown node type")
}

func TestNodeUnmarshalMissingConfigLeavesNil(t *testing.T) {
	var n Node
	require.NoError(t, json.Unmarshal([]byte(`{"id": "n", "type": "fetch"}`), &n))
	assert.Nil(t, n.Config)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "n", "type": "fetch", "config": null}`), &n))
	assert.Nil(t, n.Config)
}

func TestNodeMarshalRoundTrip(t *testing.T) {
	in := Node{
		ID:     "gate",
		Type:   NodeTypeConditional,
		Config: ConditionalConfig{Expression: `input.ok`, TrueNodeID: "yes", FalseNodeID: "no"},
		Inputs: []string{"upstream"},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Node
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestWorkflowDefinitionNodeLookup(t *testing.T) {
	def := WorkflowDefinition{
		Nodes: []Node{
			{ID: "a", Type: NodeTypeFetch, Config: FetchConfig{}},
			{ID: "b", Type: NodeTypeAction, Config: ActionConfig{Action: ActionSave}},
		},
	}

	require.NotNil(t, def.Node("b"))
	assert.Equal(t, NodeTypeAction, def.Node("b").Type)
	assert.Nil(t, def.Node("missing"))
}
