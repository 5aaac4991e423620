package codegen

import (
	"context"
	"fmt"
	"go/token"
	"slices"

	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"github.com/specialistvlad/circuitgo/internal/dag"
	"github.com/specialistvlad/circuitgo/internal/graph"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// DefaultFuncName names the generated function when Options leaves it empty.
const DefaultFuncName = "VectorField"

// Options controls generation.
type Options struct {
	FuncName string
}

// Generate prunes g and compiles its equations into a Program. The graph is
// modified: constants are folded and the state and derivative vectors are
// added as nodes. Any failure aborts generation with a *CompileError.
func Generate(ctx context.Context, g *graph.Graph, opts Options) (*Program, error) {
	name := opts.FuncName
	if name == "" {
		name = DefaultFuncName
	}
	if !token.IsIdentifier(name) {
		return nil, &CompileError{Stage: StageEmit, Err: fmt.Errorf("function name %q is not an identifier", name)}
	}
	ctx = ctxlog.With(ctx, "func", name)
	logger := ctxlog.FromContext(ctx)

	before := g.Len()
	if err := g.Prune(ctx); err != nil {
		return nil, &CompileError{Stage: StagePrune, Err: err}
	}
	logger.Debug("Pruned graph", "nodes_before", before, "nodes_after", g.Len())

	gen := &generator{g: g, renames: g.Backend().Renames(), prog: &Program{Name: name}}
	steps := []func() error{gen.pack, gen.order, gen.differentials, gen.arguments}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	p := gen.prog
	logger.Debug("Generated vector field",
		"state_size", p.StateSize,
		"args", len(p.Args),
		"statements", len(p.Statements),
	)
	return p, nil
}

type generator struct {
	g       *graph.Graph
	renames map[string]string
	prog    *Program
	// deLeaves and algLeaves hold the variables each translated update
	// reads, in emission order.
	deLeaves  [][]string
	algLeaves [][]string
	defined   map[string]bool
}

// pack assigns every differential variable a range of the state vector.
func (gen *generator) pack() error {
	p := gen.prog
	gen.defined = make(map[string]bool)
	var values []tensor.Array
	for _, eq := range gen.g.Equations(true) {
		lhs, ok := gen.g.Var(eq.Var)
		if !ok {
			return &CompileError{Stage: StagePack, Name: eq.Var, Err: fmt.Errorf("left-hand side is not a variable")}
		}
		if len(lhs.Shape()) == 0 {
			if err := lhs.Reshape(1); err != nil {
				return &CompileError{Stage: StagePack, Name: eq.Var, Err: err}
			}
		}
		rhs, err := gen.g.Evaluate(eq.Update)
		if err != nil {
			return &CompileError{Stage: StagePack, Name: eq.Var, Err: err}
		}
		if rhs.Ndim() == 0 {
			rhs, _ = rhs.Reshape(1)
		}
		if !tensor.SameShape(lhs.Shape(), rhs.Shape()) {
			return &CompileError{Stage: StagePack, Name: eq.Var, Err: fmt.Errorf(
				"%w: variable has shape %v, update %s has shape %v", ErrShapeMismatch, lhs.Shape(), eq.Update, rhs.Shape())}
		}

		start := p.StateSize
		p.StateSize += lhs.Value().Len()
		p.Layout = append(p.Layout, StateSlot{Name: eq.Var, Start: start, End: p.StateSize, Shape: lhs.Shape()})
		values = append(values, lhs.Value())
		gen.defined[eq.Var] = true
	}

	y := tensor.Concat(values...)
	p.Initial = y.Clone().Data()
	var err error
	if p.StateVector, _, err = gen.g.AddVariable("y", y, node.StateVar); err != nil {
		return &CompileError{Stage: StagePack, Err: err}
	}
	if p.DerivativeVector, _, err = gen.g.AddVariable("dy", tensor.Zeros(y.Shape()), node.StateVar); err != nil {
		return &CompileError{Stage: StagePack, Err: err}
	}

	for _, s := range p.Layout {
		r := s.Range()
		p.Statements = append(p.Statements, Stmt{Kind: Load, Target: s.Name, Index: &r})
	}
	return nil
}

// order emits the algebraic equations so that every variable is assigned
// before it is read.
func (gen *generator) order() error {
	eqs := gen.g.Equations(false)
	deps := dag.New()
	for _, eq := range eqs {
		if gen.defined[eq.Var] {
			return &CompileError{Stage: StageOrder, Name: eq.Var, Err: fmt.Errorf("variable is both a state variable and an algebraic output")}
		}
		deps.AddNode(eq.Var)
	}

	byVar := make(map[string]graph.Translation, len(eqs))
	for _, eq := range eqs {
		tr, err := gen.g.Translate(eq.Update, gen.renames)
		if err != nil {
			return &CompileError{Stage: StageTranslate, Name: eq.Var, Err: err}
		}
		byVar[eq.Var] = tr
		gen.algLeaves = append(gen.algLeaves, tr.Leaves)
		for _, leaf := range tr.Leaves {
			if !deps.Has(leaf) {
				continue
			}
			if err := deps.AddEdge(leaf, eq.Var); err != nil {
				return &CompileError{Stage: StageOrder, Name: eq.Var, Err: fmt.Errorf("%w: %w", ErrUnresolvedOrder, err)}
			}
		}
	}

	sorted, err := deps.TopologicalOrder()
	if err != nil {
		return &CompileError{Stage: StageOrder, Err: fmt.Errorf("%w: %w", ErrUnresolvedOrder, err)}
	}
	for _, v := range sorted {
		gen.prog.Statements = append(gen.prog.Statements, Stmt{Kind: Assign, Target: v, Expr: byVar[v].Expr})
		gen.defined[v] = true
	}
	return nil
}

// differentials writes every differential update into its derivative slot.
func (gen *generator) differentials() error {
	p := gen.prog
	updates := make(map[string]string)
	for _, eq := range gen.g.Equations(true) {
		updates[eq.Var] = eq.Update
	}
	for _, s := range p.Layout {
		tr, err := gen.g.Translate(updates[s.Name], gen.renames)
		if err != nil {
			return &CompileError{Stage: StageTranslate, Name: s.Name, Err: err}
		}
		gen.deLeaves = append(gen.deLeaves, tr.Leaves)
		r := s.Range()
		p.Statements = append(p.Statements, Stmt{Kind: Store, Target: p.DerivativeVector, Index: &r, Expr: tr.Expr})
	}
	return nil
}

// arguments lists every variable read but not defined by the function.
func (gen *generator) arguments() error {
	var names []string
	for _, leaves := range slices.Concat(gen.deLeaves, gen.algLeaves) {
		for _, leaf := range leaves {
			if !gen.defined[leaf] && !slices.Contains(names, leaf) {
				names = append(names, leaf)
			}
		}
	}
	for _, name := range names {
		v, ok := gen.g.Var(name)
		if !ok {
			return &CompileError{Stage: StageEmit, Name: name, Err: graph.ErrUnknownNode}
		}
		gen.prog.Args = append(gen.prog.Args, Arg{Name: name, Shape: v.Shape(), DType: v.DType(), Kind: v.Kind})
	}
	return nil
}
