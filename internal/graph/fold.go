package graph

import (
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// foldPlan is the read-only outcome of the first folding phase.
type foldPlan struct {
	root  int
	value tensor.Array
	// preds holds the root's ancestors, producers before consumers.
	preds []int
}

// FoldConstantSubgraph evaluates the subgraph feeding name and replaces the
// node by a constant holding the result. Every leaf reached must be a
// constant. Ancestors left without consumers are removed unless protected.
func (g *Graph) FoldConstantSubgraph(name string) (tensor.Array, error) {
	h, err := g.handle(name)
	if err != nil {
		return tensor.Array{}, err
	}
	plan, err := g.planFold(h)
	if err != nil {
		return tensor.Array{}, err
	}
	if err := g.applyFold(plan); err != nil {
		return tensor.Array{}, err
	}
	return plan.value, nil
}

func (g *Graph) planFold(root int) (foldPlan, error) {
	plan := foldPlan{root: root}
	seen := make(map[int]bool)
	var visit func(h int) error
	visit = func(h int) error {
		if seen[h] {
			return nil
		}
		seen[h] = true
		s := g.slots[h]
		if v, ok := s.node.(*node.Var); ok && v.Kind != node.Constant {
			return fmt.Errorf("folding %s: %w: %s is %s", g.slots[root].node.Name(), ErrFoldPrecondition, v.Name(), v.Kind)
		}
		for _, src := range s.in {
			if err := visit(src); err != nil {
				return err
			}
		}
		if h != root {
			plan.preds = append(plan.preds, h)
		}
		return nil
	}
	if err := visit(root); err != nil {
		return foldPlan{}, err
	}

	value, err := g.eval(root, make(map[int]bool), make(map[int]tensor.Array))
	if err != nil {
		return foldPlan{}, err
	}
	plan.value = value
	return plan, nil
}

func (g *Graph) applyFold(plan foldPlan) error {
	root := g.slots[plan.root]
	if op, ok := root.node.(*node.Op); ok {
		c, err := op.Constant(plan.value)
		if err != nil {
			return err
		}
		g.cutInputs(plan.root)
		root.node = c
	}

	// Consumers are decided before their producers, so a predecessor only
	// dies once every reader of it is dead or is the folded root.
	gone := map[int]bool{plan.root: true}
	var dead []int
	for i := len(plan.preds) - 1; i >= 0; i-- {
		h := plan.preds[i]
		if g.Protected(g.slots[h].node.Name()) {
			continue
		}
		used := false
		for _, u := range g.slots[h].out {
			if !gone[u.to] {
				used = true
				break
			}
		}
		if !used {
			gone[h] = true
			dead = append(dead, h)
		}
	}
	for _, h := range dead {
		g.remove(h)
	}
	return nil
}
