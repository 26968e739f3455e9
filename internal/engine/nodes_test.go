package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpflow/backend/pkg/models"
)

func TestExecFilter(t *testing.T) {
	items := []any{
		map[string]any{"x": float64(1), "name": "alpha"},
		map[string]any{"x": float64(5), "name": "beta"},
		map[string]any{"x": float64(9), "name": "gamma"},
	}

	t.Run("gt keeps items above threshold", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{{Field: "x", Operator: models.OperatorGt, Value: 3}},
		}, []any{items})
		require.NoError(t, err)
		assert.Equal(t, []any{items[1], items[2]}, out)
	})

	t.Run("lt keeps items below threshold", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{{Field: "x", Operator: models.OperatorLt, Value: 5}},
		}, []any{items})
		require.NoError(t, err)
		assert.Equal(t, []any{items[0]}, out)
	})

	t.Run("equals compares numbers loosely", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{{Field: "x", Operator: models.OperatorEquals, Value: 5}},
		}, []any{items})
		require.NoError(t, err)
		assert.Equal(t, []any{items[1]}, out)
	})

	t.Run("contains matches substrings", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{{Field: "name", Operator: models.OperatorContains, Value: "am"}},
		}, []any{items})
		require.NoError(t, err)
		assert.Equal(t, []any{items[2]}, out)
	})

	t.Run("all conditions must hold", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{
				{Field: "x", Operator: models.OperatorGt, Value: 3},
				{Field: "name", Operator: models.OperatorEquals, Value: "beta"},
			},
		}, []any{items})
		require.NoError(t, err)
		assert.Equal(t, []any{items[1]}, out)
	})

	t.Run("missing field fails the condition", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{{Field: "ghost", Operator: models.OperatorEquals, Value: 1}},
		}, []any{items})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("unsupported operator means condition false", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{
			Conditions: []models.FilterCondition{{Field: "x", Operator: "regex", Value: 1}},
		}, []any{items})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("no conditions keeps everything", func(t *testing.T) {
		out, err := execFilter(models.FilterConfig{}, []any{items})
		require.NoError(t, err)
		assert.Equal(t, items, out)
	})

	t.Run("non-sequence input is a type error", func(t *testing.T) {
		_, err := execFilter(models.FilterConfig{}, []any{map[string]any{"x": 1}})
		assert.Error(t, err)
	})

	t.Run("wrong input count is an error", func(t *testing.T) {
		_, err := execFilter(models.FilterConfig{}, []any{items, items})
		assert.Error(t, err)
	})
}

func TestExecMergeConcat(t *testing.T) {
	out, err := execMerge(models.MergeConfig{Strategy: models.MergeStrategyConcat}, []any{
		[]any{"a", "b"},
		"scalar",
		[]any{"c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "scalar", "c"}, out)
}

func TestExecMergeDeduplicate(t *testing.T) {
	t.Run("requires a key", func(t *testing.T) {
		_, err := execMerge(models.MergeConfig{Strategy: models.MergeStrategyDeduplicate}, nil)
		assert.Error(t, err)
	})

	t.Run("keeps first occurrence per key", func(t *testing.T) {
		out, err := execMerge(models.MergeConfig{Strategy: models.MergeStrategyDeduplicate, Key: "id"}, []any{
			[]any{
				map[string]any{"id": float64(1), "src": "a"},
				map[string]any{"id": float64(2), "src": "a"},
			},
			[]any{
				map[string]any{"id": float64(2), "src": "b"},
				map[string]any{"id": float64(3), "src": "b"},
			},
		})
		require.NoError(t, err)

		kept, ok := out.([]any)
		require.True(t, ok)
		require.Len(t, kept, 3)
		assert.Equal(t, "a", kept[1].(map[string]any)["src"])
	})
}

func TestExecMergeObjects(t *testing.T) {
	t.Run("later inputs win on key collisions", func(t *testing.T) {
		out, err := execMerge(models.MergeConfig{Strategy: models.MergeStrategyMergeObjects}, []any{
			map[string]any{"a": 1, "b": 1},
			map[string]any{"b": 2, "c": 3},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, out)
	})

	t.Run("non-object input is an error", func(t *testing.T) {
		_, err := execMerge(models.MergeConfig{Strategy: models.MergeStrategyMergeObjects}, []any{
			map[string]any{"a": 1},
			[]any{"not", "an", "object"},
		})
		assert.Error(t, err)
	})
}

func TestExecMergeUnknownStrategy(t *testing.T) {
	_, err := execMerge(models.MergeConfig{Strategy: "zip"}, nil)
	assert.Error(t, err)
}

func TestExecAction(t *testing.T) {
	e := New(nil, nil, noopLogger{})

	t.Run("save passes through first input", func(t *testing.T) {
		out, err := e.execAction(models.ActionConfig{Action: models.ActionSave}, []any{"payload", "ignored"})
		require.NoError(t, err)
		assert.Equal(t, "payload", out)
	})

	t.Run("notify passes through first input", func(t *testing.T) {
		out, err := e.execAction(models.ActionConfig{Action: models.ActionNotify, Message: "done"}, []any{42})
		require.NoError(t, err)
		assert.Equal(t, 42, out)
	})

	t.Run("send_email fails loudly", func(t *testing.T) {
		_, err := e.execAction(models.ActionConfig{Action: models.ActionSendEmail}, nil)
		assert.ErrorContains(t, err, "not supported")
	})

	t.Run("webhook fails loudly", func(t *testing.T) {
		_, err := e.execAction(models.ActionConfig{Action: models.ActionWebhook}, nil)
		assert.ErrorContains(t, err, "not supported")
	})

	t.Run("unknown action is an error", func(t *testing.T) {
		_, err := e.execAction(models.ActionConfig{Action: "launch"}, nil)
		assert.Error(t, err)
	})
}

func TestExecConditional(t *testing.T) {
	cfg := models.ConditionalConfig{
		Expression:  `input.status == "done"`,
		TrueNodeID:  "archive",
		FalseNodeID: "remind",
	}

	t.Run("true branch", func(t *testing.T) {
		out, err := execConditional(cfg, []any{map[string]any{"status": "done"}})
		require.NoError(t, err)
		decision := out.(RouteDecision)
		assert.True(t, decision.ConditionMet)
		assert.Equal(t, "archive", decision.NextNodeID)
		assert.Equal(t, map[string]any{"status": "done"}, decision.Data)
	})

	t.Run("false branch", func(t *testing.T) {
		out, err := execConditional(cfg, []any{map[string]any{"status": "open"}})
		require.NoError(t, err)
		decision := out.(RouteDecision)
		assert.False(t, decision.ConditionMet)
		assert.Equal(t, "remind", decision.NextNodeID)
	})

	t.Run("invalid expression fails the node", func(t *testing.T) {
		_, err := execConditional(models.ConditionalConfig{Expression: "input. =="}, nil)
		assert.Error(t, err)
	})

	t.Run("no inputs evaluates against nil", func(t *testing.T) {
		out, err := execConditional(cfg, nil)
		require.NoError(t, err)
		assert.False(t, out.(RouteDecision).ConditionMet)
	})
}
