package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

var binaryOps = map[*hclsyntax.Operation]string{
	hclsyntax.OpAdd:                OpAdd,
	hclsyntax.OpSubtract:           OpSub,
	hclsyntax.OpMultiply:           OpMul,
	hclsyntax.OpDivide:             OpDiv,
	hclsyntax.OpModulo:             OpMod,
	hclsyntax.OpGreaterThan:        OpGt,
	hclsyntax.OpGreaterThanOrEqual: OpGe,
	hclsyntax.OpLessThan:           OpLt,
	hclsyntax.OpLessThanOrEqual:    OpLe,
	hclsyntax.OpEqual:              OpEq,
	hclsyntax.OpNotEqual:           OpNe,
	hclsyntax.OpLogicalAnd:         OpAnd,
	hclsyntax.OpLogicalOr:          OpOr,
}

// Parse reads an infix expression such as "(u - r) / tau + sigmoid(v)".
// The grammar is the HCL expression grammar; conditionals become where(...)
// and index expressions become index(...).
func Parse(src string) (Expr, error) {
	syn, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse expression %q: %w", src, diags)
	}
	e, err := FromSyntax(syn)
	if err != nil {
		return nil, fmt.Errorf("unsupported expression %q: %w", src, err)
	}
	return e, nil
}

// MustParse is like Parse but panics on error. It is meant for literals in
// tests and presets.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// FromSyntax converts an HCL syntax tree into an expression tree.
func FromSyntax(syn hclsyntax.Expression) (Expr, error) {
	switch e := syn.(type) {
	case *hclsyntax.LiteralValueExpr:
		return literal(e.Val)
	case *hclsyntax.ParenthesesExpr:
		return FromSyntax(e.Expression)
	case *hclsyntax.ScopeTraversalExpr:
		return traversal(e.Traversal)
	case *hclsyntax.BinaryOpExpr:
		op, ok := binaryOps[e.Op]
		if !ok {
			return nil, fmt.Errorf("unknown binary operator at %s", e.SrcRange)
		}
		return apply(op, e.LHS, e.RHS)
	case *hclsyntax.UnaryOpExpr:
		switch e.Op {
		case hclsyntax.OpNegate:
			// Fold negative literals so "-1" stays a constant.
			if lit, ok := e.Val.(*hclsyntax.LiteralValueExpr); ok {
				c, err := literal(lit.Val)
				if err != nil {
					return nil, err
				}
				return Num(-c.(*Const).Value), nil
			}
			return apply(OpNeg, e.Val)
		case hclsyntax.OpLogicalNot:
			return apply(OpNot, e.Val)
		}
		return nil, fmt.Errorf("unknown unary operator at %s", e.SrcRange)
	case *hclsyntax.FunctionCallExpr:
		if e.ExpandFinal {
			return nil, fmt.Errorf("argument expansion is not supported in call to %s", e.Name)
		}
		return apply(e.Name, e.Args...)
	case *hclsyntax.ConditionalExpr:
		return apply(OpWhere, e.Condition, e.TrueResult, e.FalseResult)
	case *hclsyntax.IndexExpr:
		return apply(OpIndex, e.Collection, e.Key)
	case *hclsyntax.TupleConsExpr:
		// [a, b] is only supported as a literal index list.
		return nil, fmt.Errorf("tuple constructors are not supported at %s", e.SrcRange)
	}
	return nil, fmt.Errorf("unsupported syntax %T at %s", syn, syn.Range())
}

func apply(op string, operands ...hclsyntax.Expression) (Expr, error) {
	args := make([]Expr, len(operands))
	for i, o := range operands {
		a, err := FromSyntax(o)
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return Call(op, args...), nil
}

func literal(v cty.Value) (Expr, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, fmt.Errorf("literal must be a known value")
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return Num(f), nil
	case cty.Bool:
		if v.True() {
			return Num(1), nil
		}
		return Num(0), nil
	}
	return nil, fmt.Errorf("literal of type %s is not numeric", v.Type().FriendlyName())
}

// traversal turns "x" into a symbol and "x[2]" into index(x, 2).
func traversal(t hcl.Traversal) (Expr, error) {
	var out Expr = Sym(t.RootName())
	for _, step := range t[1:] {
		switch s := step.(type) {
		case hcl.TraverseIndex:
			key, err := literal(s.Key)
			if err != nil {
				return nil, err
			}
			out = Call(OpIndex, out, key)
		default:
			return nil, fmt.Errorf("attribute access is not supported in %q", t.RootName())
		}
	}
	return out, nil
}
