package graph

import (
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/node"
)

// Translation is the expression computing a node over leaf symbols only.
type Translation struct {
	Expr expr.Expr
	// Args lists constant and input leaves in first-use order. They become
	// arguments of a compiled function.
	Args []string
	// Leaves lists every variable reached, of any kind, in first-use order.
	Leaves []string
}

// Translate substitutes every operation feeding name by the expression of its
// inputs until only variables remain. Function renames are applied once the
// structure is complete.
func (g *Graph) Translate(name string, renames map[string]string) (Translation, error) {
	h, err := g.handle(name)
	if err != nil {
		return Translation{}, err
	}
	t := translator{
		g:      g,
		onPath: make(map[int]bool),
		done:   make(map[int]expr.Expr),
		seen:   make(map[string]bool),
	}
	e, err := t.visit(h)
	if err != nil {
		return Translation{}, err
	}
	if len(renames) > 0 {
		e = expr.Rename(e, renames)
	}
	return Translation{Expr: e, Args: t.args, Leaves: t.leaves}, nil
}

type translator struct {
	g      *Graph
	onPath map[int]bool
	done   map[int]expr.Expr
	seen   map[string]bool
	args   []string
	leaves []string
}

func (t *translator) visit(h int) (expr.Expr, error) {
	if e, ok := t.done[h]; ok {
		return e, nil
	}
	s := t.g.slots[h]
	switch n := s.node.(type) {
	case *node.Var:
		if !t.seen[n.Name()] {
			t.seen[n.Name()] = true
			t.leaves = append(t.leaves, n.Name())
			if n.Kind.IsFree() {
				t.args = append(t.args, n.Name())
			}
		}
		return n.Symbol(), nil
	case *node.Op:
		if t.onPath[h] {
			return nil, fmt.Errorf("translating %s: %w", n.Name(), ErrCyclicGraph)
		}
		t.onPath[h] = true
		defer delete(t.onPath, h)

		repl := make(map[string]expr.Expr, len(s.in))
		for _, src := range s.in {
			sub, err := t.visit(src)
			if err != nil {
				return nil, err
			}
			repl[t.g.slots[src].node.Name()] = sub
		}
		e := expr.Substitute(n.Expr, repl)
		t.done[h] = e
		return e, nil
	default:
		return nil, fmt.Errorf("translating %s: unsupported node %T", s.node.Name(), s.node)
	}
}
