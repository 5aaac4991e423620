package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/specialistvlad/circuitgo/internal/ctxlog"
	"github.com/specialistvlad/circuitgo/internal/node"
)

// Prune simplifies the graph in place:
//
//  1. every operation over constants only is folded, and a folded algebraic
//     update hands its value to the variable it assigns;
//  2. unprotected constants without consumers are removed;
//  3. unprotected nodes without any edges are removed.
//
// Running Prune twice leaves the graph unchanged the second time.
func (g *Graph) Prune(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	folded, err := g.foldConstants(ctx)
	if err != nil {
		return err
	}
	if err := g.propagateAlgebraicConstants(); err != nil {
		return err
	}

	var removed []string
	for _, h := range g.live() {
		s := g.slots[h]
		if !s.alive || len(s.out) > 0 || g.Protected(s.node.Name()) {
			continue
		}
		if v, ok := s.node.(*node.Var); ok && v.Kind == node.Constant {
			names, err := g.RemoveSubgraph(v.Name())
			if err != nil {
				return err
			}
			removed = append(removed, names...)
		}
	}
	for _, h := range g.live() {
		s := g.slots[h]
		if s.alive && len(s.in) == 0 && len(s.out) == 0 && !g.Protected(s.node.Name()) {
			removed = append(removed, s.node.Name())
			g.remove(h)
		}
	}

	logger.Debug("Pruned compute graph", "folded", folded, "removed", removed, "nodes", g.Len())
	return nil
}

// RemoveSubgraph deletes name, which must have no consumers, together with
// every ancestor that is left without consumers and is not protected. Nothing
// is evaluated. It returns the removed names.
func (g *Graph) RemoveSubgraph(name string) ([]string, error) {
	h, err := g.handle(name)
	if err != nil {
		return nil, err
	}
	if g.Protected(name) {
		return nil, fmt.Errorf("removing %s: node is referenced by an equation", name)
	}
	if succ, _ := g.Successors(name); len(succ) > 0 {
		return nil, fmt.Errorf("removing %s: still consumed by %v", name, succ)
	}

	var removed []string
	var drop func(h int)
	drop = func(h int) {
		preds := slices.Clone(g.slots[h].in)
		removed = append(removed, g.slots[h].node.Name())
		g.remove(h)
		for _, src := range preds {
			s := g.slots[src]
			if s.alive && len(s.out) == 0 && !g.Protected(s.node.Name()) {
				drop(src)
			}
		}
	}
	drop(h)
	return removed, nil
}

// foldConstants folds every operation whose ancestors are all constants.
// Each round folds, producers first, the constant operations that an
// equation references or that feed something non-constant; the rounds stop
// once no constant operation is left.
func (g *Graph) foldConstants(ctx context.Context) ([]string, error) {
	var folded []string
	for {
		roots := g.foldRoots()
		if len(roots) == 0 {
			return folded, nil
		}
		for _, h := range roots {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s := g.slots[h]
			if _, ok := s.node.(*node.Op); !ok || !s.alive {
				continue
			}
			plan, err := g.planFold(h)
			if err != nil {
				return nil, err
			}
			if err := g.applyFold(plan); err != nil {
				return nil, err
			}
			folded = append(folded, s.node.Name())
		}
	}
}

// foldRoots lists the constant operations that are protected or have a
// consumer outside the constant part of the graph, in insertion order. An
// operation is always inserted after its inputs, so producers come first.
func (g *Graph) foldRoots() []int {
	constant := make(map[int]bool)
	var isConst func(h int) bool
	isConst = func(h int) bool {
		if c, ok := constant[h]; ok {
			return c
		}
		constant[h] = false
		s := g.slots[h]
		c := true
		if v, ok := s.node.(*node.Var); ok {
			c = v.Kind == node.Constant
		} else {
			for _, src := range s.in {
				c = c && isConst(src)
			}
		}
		constant[h] = c
		return c
	}

	var roots []int
	for _, h := range g.live() {
		s := g.slots[h]
		if _, ok := s.node.(*node.Op); !ok || !isConst(h) {
			continue
		}
		root := len(s.out) == 0 || g.Protected(s.node.Name())
		for _, u := range s.out {
			root = root || !isConst(u.to)
		}
		if root {
			roots = append(roots, h)
		}
	}
	return roots
}

// propagateAlgebraicConstants copies the value of every constant algebraic
// update onto the variable it assigns. The variable keeps its kind.
func (g *Graph) propagateAlgebraicConstants() error {
	for _, eq := range g.reg.nonDEs {
		if eq.Var == eq.Update {
			continue
		}
		upd, ok := g.Var(eq.Update)
		if !ok || upd.Kind != node.Constant {
			continue
		}
		lhs, ok := g.Var(eq.Var)
		if !ok {
			continue
		}
		if err := lhs.SetValue(upd.Value()); err != nil {
			return fmt.Errorf("assigning %s: %w", eq.Var, err)
		}
	}
	return nil
}

// live snapshots the handles of live slots in insertion order.
func (g *Graph) live() []int {
	hs := make([]int, 0, len(g.byName))
	for h, s := range g.slots {
		if s.alive {
			hs = append(hs, h)
		}
	}
	return hs
}
