package engine

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// BoolExpr is a sandboxed boolean expression for conditional nodes. The
// grammar is HCL's expression syntax evaluated with a single `input`
// variable and no functions, so caller-supplied expressions can never reach
// the host runtime. Examples:
//
//	input.status == "done"
//	input.count > 3 && input.kind != "draft"
type BoolExpr struct {
	expr hcl.Expression
	src  string
}

// ParseBoolExpr parses the expression source. A syntactically invalid
// expression is a configuration error and reported loudly.
func ParseBoolExpr(src string) (*BoolExpr, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid condition expression %q: %s", src, diags.Error())
	}
	return &BoolExpr{expr: expr, src: src}, nil
}

// Eval evaluates the expression against the given input value. Evaluation
// problems (unknown attribute, type mismatch, non-boolean result that
// cannot be converted) yield false rather than an error, matching the
// filter node's "unsupported means condition false" posture.
func (b *BoolExpr) Eval(input any) bool {
	val, err := toCty(input)
	if err != nil {
		return false
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"input": val},
	}
	result, diags := b.expr.Value(evalCtx)
	if diags.HasErrors() {
		return false
	}

	boolVal, err := convert.Convert(result, cty.Bool)
	if err != nil || boolVal.IsNull() || !boolVal.IsKnown() {
		return false
	}
	return boolVal.True()
}

// String returns the original expression source.
func (b *BoolExpr) String() string { return b.src }

// toCty converts an arbitrary value through its JSON representation into a
// cty value with an implied type.
func toCty(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, ty)
}
