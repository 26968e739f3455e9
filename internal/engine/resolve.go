package engine

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// inputRefPattern matches the full template strings $input and $input[N].
var inputRefPattern = regexp.MustCompile(`^\$input(?:\[(\d+)\])?$`)

// paramExpr is the parsed form of one string-valued parameter. A parameter
// is either a literal passed through unchanged or a reference to one of the
// node's resolved inputs. src always holds the original parameter string so
// an unresolvable reference can be returned verbatim.
type paramExpr struct {
	src   string
	index int
	isRef bool
}

// parseParamExpr parses a parameter string into its typed representation.
func parseParamExpr(s string) paramExpr {
	m := inputRefPattern.FindStringSubmatch(s)
	if m == nil {
		return paramExpr{src: s}
	}
	idx := 0
	if m[1] != "" {
		idx, _ = strconv.Atoi(m[1])
	}
	return paramExpr{src: s, index: idx, isRef: true}
}

// eval resolves the expression against the read-only input list. A reference
// to a string input passes it through as-is; any other input is serialized
// to its JSON text. An out-of-range index leaves the original template
// string unresolved rather than failing.
func (x paramExpr) eval(inputs []any) any {
	if !x.isRef {
		return x.src
	}
	if x.index >= len(inputs) {
		return x.src
	}
	v := inputs[x.index]
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(b)
}

// ResolveParameters substitutes upstream outputs into a fetch node's
// parameters. Only top-level string values are considered; numbers,
// booleans, and nested objects or arrays pass through unchanged.
// Substitution is one level deep and never recursive.
func ResolveParameters(params map[string]any, inputs []any) map[string]any {
	if params == nil {
		return nil
	}
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			resolved[k] = parseParamExpr(s).eval(inputs)
			continue
		}
		resolved[k] = v
	}
	return resolved
}
