package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"mcpflow/backend/internal/capability"
	"mcpflow/backend/pkg/models"
)

// RouteDecision is the output of a conditional node. It is a routing
// annotation only: downstream nodes may inspect it, but the executor runs
// every scheduled node regardless of the decision.
type RouteDecision struct {
	ConditionMet bool   `json:"condition_met"`
	NextNodeID   string `json:"next_node_id,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// execFetch resolves parameter templates against the node's inputs and
// invokes the tool. A tool-level failure fails the node with the tool's
// reported message.
func (e *Engine) execFetch(ctx context.Context, cfg models.FetchConfig, inputs []any) (any, error) {
	params := ResolveParameters(cfg.Parameters, inputs)
	return e.tools.Call(ctx, cfg.ServerID, cfg.ToolName, params)
}

// execTransform prompts the text-generation capability with the configured
// template plus the serialized inputs. The returned text is parsed strictly
// as JSON when possible; otherwise the raw text is forwarded unchanged, so
// transform output is either structured data or opaque text and downstream
// nodes must tolerate both.
func (e *Engine) execTransform(ctx context.Context, cfg models.TransformConfig, inputs []any) (any, error) {
	serialized, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize inputs: %w", err)
	}

	prompt := cfg.Prompt + "\n\nInput data:\n" + string(serialized)
	completion, err := e.llm.Complete(ctx,
		[]capability.Message{{Role: "user", Content: prompt}},
		capability.CompletionOptions{Model: cfg.Model, MaxTokens: cfg.MaxTokens},
	)
	if err != nil {
		return nil, err
	}

	var parsed any
	if json.Unmarshal([]byte(strings.TrimSpace(completion.Content)), &parsed) == nil {
		return parsed, nil
	}
	return completion.Content, nil
}

// execFilter keeps the items of its single sequence input that satisfy
// every condition. An unsupported operator makes a condition false, not an
// error; a non-sequence input is a type error for the node.
func execFilter(cfg models.FilterConfig, inputs []any) (any, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("filter requires exactly one input, got %d", len(inputs))
	}
	seq, ok := toSlice(inputs[0])
	if !ok {
		return nil, fmt.Errorf("filter input must be a sequence, got %T", inputs[0])
	}

	kept := make([]any, 0, len(seq))
	for _, item := range seq {
		if matchesAll(item, cfg.Conditions) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func matchesAll(item any, conditions []models.FilterCondition) bool {
	for _, cond := range conditions {
		value, ok := itemField(item, cond.Field)
		if !ok {
			return false
		}
		if !matches(value, cond) {
			return false
		}
	}
	return true
}

func matches(value any, cond models.FilterCondition) bool {
	switch cond.Operator {
	case models.OperatorEquals:
		return looseEqual(value, cond.Value)
	case models.OperatorContains:
		return strings.Contains(stringify(value), stringify(cond.Value))
	case models.OperatorGt:
		a, okA := toFloat(value)
		b, okB := toFloat(cond.Value)
		return okA && okB && a > b
	case models.OperatorLt:
		a, okA := toFloat(value)
		b, okB := toFloat(cond.Value)
		return okA && okB && a < b
	default:
		return false
	}
}

// execMerge combines the resolved inputs in declaration order using the
// configured strategy.
func execMerge(cfg models.MergeConfig, inputs []any) (any, error) {
	switch cfg.Strategy {
	case models.MergeStrategyConcat:
		return flatten(inputs), nil

	case models.MergeStrategyDeduplicate:
		if cfg.Key == "" {
			return nil, fmt.Errorf("deduplicate strategy requires a key field")
		}
		seen := make(map[string]bool)
		var kept []any
		for _, item := range flatten(inputs) {
			k := dedupeKey(item, cfg.Key)
			if seen[k] {
				continue
			}
			seen[k] = true
			kept = append(kept, item)
		}
		if kept == nil {
			kept = []any{}
		}
		return kept, nil

	case models.MergeStrategyMergeObjects:
		merged := make(map[string]any)
		for i, input := range inputs {
			obj, ok := input.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("merge_objects requires object inputs, input %d is %T", i, input)
			}
			for k, v := range obj {
				merged[k] = v
			}
		}
		return merged, nil

	default:
		return nil, fmt.Errorf("unknown merge strategy %q", cfg.Strategy)
	}
}

// execAction performs a terminal side effect and passes through its first
// input. Email and webhook delivery are not wired up and fail loudly
// rather than silently dropping the request.
func (e *Engine) execAction(cfg models.ActionConfig, inputs []any) (any, error) {
	var passthrough any
	if len(inputs) > 0 {
		passthrough = inputs[0]
	}

	switch cfg.Action {
	case models.ActionSave:
		e.logger.Info("action node: save", "message", cfg.Message)
		return passthrough, nil
	case models.ActionNotify:
		e.logger.Info("action node: notify", "message", cfg.Message)
		return passthrough, nil
	case models.ActionSendEmail, models.ActionWebhook:
		return nil, fmt.Errorf("action %q is not supported", cfg.Action)
	default:
		return nil, fmt.Errorf("unsupported action %q", cfg.Action)
	}
}

// execConditional evaluates the configured expression against the first
// input and returns a routing annotation. See RouteDecision.
func execConditional(cfg models.ConditionalConfig, inputs []any) (any, error) {
	expr, err := ParseBoolExpr(cfg.Expression)
	if err != nil {
		return nil, err
	}

	var first any
	if len(inputs) > 0 {
		first = inputs[0]
	}

	met := expr.Eval(first)
	next := cfg.FalseNodeID
	if met {
		next = cfg.TrueNodeID
	}
	return RouteDecision{ConditionMet: met, NextNodeID: next, Data: first}, nil
}

// flatten expands slice inputs into their elements and keeps scalar inputs
// as single elements, preserving declaration order and duplicates.
func flatten(inputs []any) []any {
	var out []any
	for _, input := range inputs {
		if s, ok := toSlice(input); ok {
			out = append(out, s...)
			continue
		}
		out = append(out, input)
	}
	if out == nil {
		out = []any{}
	}
	return out
}

func dedupeKey(item any, key string) string {
	if m, ok := item.(map[string]any); ok {
		return fmt.Sprintf("%v", m[key])
	}
	return fmt.Sprintf("%v", item)
}

func itemField(item any, field string) (any, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

func looseEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return stringify(a) == stringify(b)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toSlice normalizes sequence inputs. Strings and byte slices are not
// sequences here.
func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
