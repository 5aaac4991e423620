package circuit

import (
	"context"
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/backend"
	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/graph"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// opLabels names the nodes created for infix operators.
var opLabels = map[string]string{
	expr.OpAdd: "add",
	expr.OpSub: "sub",
	expr.OpMul: "mul",
	expr.OpDiv: "div",
	expr.OpMod: "mod",
	expr.OpNot: "not",
	expr.OpGt:  "gt",
	expr.OpGe:  "ge",
	expr.OpLt:  "lt",
	expr.OpLe:  "le",
	expr.OpEq:  "eq",
	expr.OpNe:  "ne",
	expr.OpAnd: "and",
	expr.OpOr:  "or",
}

// Build creates the compute graph of m on backend b. Variables keep their
// declared names; every operator of a right-hand side becomes an operation
// node and every literal a constant node.
func Build(ctx context.Context, m *Model, b backend.Backend) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	g := graph.New(b)

	for _, v := range m.Variables {
		opts := []node.Option{node.WithDType(v.DType)}
		if v.Shape != nil {
			opts = append(opts, node.WithShape(v.Shape...))
		}
		name, _, err := g.AddVariable(v.Name, v.Value, v.Kind, opts...)
		if err != nil {
			return nil, err
		}
		if name != v.Name {
			return nil, fmt.Errorf("variable %q was renamed to %q", v.Name, name)
		}
	}

	bld := builder{g: g}
	for _, eq := range m.Equations {
		if !g.Has(eq.Var) {
			return nil, fmt.Errorf("equation for undeclared variable %q", eq.Var)
		}
		update, err := bld.node(eq.Var, eq.RHS)
		if err != nil {
			return nil, fmt.Errorf("equation for %q: %w", eq.Var, err)
		}
		if err := g.RecordEquation(eq.Var, update, eq.Differential); err != nil {
			return nil, err
		}
		logger.Debug("Recorded equation.", "var", eq.Var, "update", update, "differential", eq.Differential)
	}

	logger.Debug("Built compute graph.", "nodes", g.Len())
	return g, nil
}

type builder struct {
	g *graph.Graph
}

// node adds the nodes computing e and returns the name of its root.
func (b *builder) node(owner string, e expr.Expr) (string, error) {
	switch e := e.(type) {
	case *expr.Symbol:
		if !b.g.Has(e.Name) {
			return "", fmt.Errorf("%w %q", graph.ErrUnknownNode, e.Name)
		}
		return e.Name, nil
	case *expr.Const:
		name, _, err := b.g.AddVariable(owner+"_const", tensor.Scalar(e.Value), node.Constant)
		return name, err
	case *expr.Apply:
		inputs := make([]string, len(e.Args))
		args := make([]expr.Expr, len(e.Args))
		for i, a := range e.Args {
			in, err := b.node(owner, a)
			if err != nil {
				return "", err
			}
			inputs[i] = in
			args[i] = expr.Sym(in)
		}
		label, ok := opLabels[e.Op]
		if !ok {
			label = e.Op
		}
		name, _, err := b.g.AddOperation(inputs, owner+"_"+label, expr.Call(e.Op, args...), nil)
		return name, err
	default:
		return "", fmt.Errorf("unsupported expression %T", e)
	}
}
