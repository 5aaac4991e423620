package graph

import (
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// Evaluate computes the current value of name from the values of its
// ancestors. Nothing is cached and the graph is left unchanged.
func (g *Graph) Evaluate(name string) (tensor.Array, error) {
	h, err := g.handle(name)
	if err != nil {
		return tensor.Array{}, err
	}
	return g.eval(h, make(map[int]bool), nil)
}

// EvaluateNodes evaluates every named node.
func (g *Graph) EvaluateNodes(names ...string) (map[string]tensor.Array, error) {
	out := make(map[string]tensor.Array, len(names))
	for _, name := range names {
		v, err := g.Evaluate(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// EvaluateAll assigns every algebraic update to its variable, in the order
// the equations were recorded, and then evaluates the differential updates.
// The derivatives are returned in registry order.
func (g *Graph) EvaluateAll() ([]tensor.Array, error) {
	for _, eq := range g.reg.nonDEs {
		v, err := g.Evaluate(eq.Update)
		if err != nil {
			return nil, err
		}
		lhs, ok := g.Var(eq.Var)
		if !ok || eq.Var == eq.Update {
			continue
		}
		if err := lhs.SetValue(v); err != nil {
			return nil, fmt.Errorf("assigning %s: %w", eq.Var, err)
		}
	}
	out := make([]tensor.Array, len(g.reg.des))
	for i, eq := range g.reg.des {
		v, err := g.Evaluate(eq.Update)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// eval walks the predecessors of h depth-first. A nil memo evaluates shared
// ancestors once per path.
func (g *Graph) eval(h int, onPath map[int]bool, memo map[int]tensor.Array) (tensor.Array, error) {
	if v, ok := memo[h]; ok {
		return v, nil
	}
	s := g.slots[h]
	op, ok := s.node.(*node.Op)
	if !ok {
		return s.node.Value(), nil
	}
	if onPath[h] {
		return tensor.Array{}, fmt.Errorf("evaluating %s: %w", op.Name(), ErrCyclicGraph)
	}
	onPath[h] = true
	defer delete(onPath, h)

	args := make([]tensor.Array, len(s.in))
	for i, src := range s.in {
		v, err := g.eval(src, onPath, memo)
		if err != nil {
			return tensor.Array{}, err
		}
		args[i] = v
	}
	v, err := op.Func(args...)
	if err != nil {
		return tensor.Array{}, fmt.Errorf("evaluating %s: %w", op.Name(), err)
	}
	if memo != nil {
		memo[h] = v
	}
	return v, nil
}
