package graph

import (
	"fmt"
	"slices"

	"github.com/specialistvlad/circuitgo/internal/node"
)

// Equation ties a variable to the node computing its update. Differential
// equations define the variable's time derivative; the others assign it.
type Equation struct {
	Var          string
	Update       string
	Differential bool
}

type registry struct {
	des       []Equation
	nonDEs    []Equation
	protected map[string]struct{}
}

func newRegistry() registry {
	return registry{protected: make(map[string]struct{})}
}

// record inserts eq, replacing an earlier equation for the same variable in
// place so that the original ordering is kept.
func (r *registry) record(eq Equation) {
	list := &r.nonDEs
	if eq.Differential {
		list = &r.des
	}
	if i := slices.IndexFunc(*list, func(e Equation) bool { return e.Var == eq.Var }); i >= 0 {
		(*list)[i] = eq
	} else {
		*list = append(*list, eq)
	}
	r.protected[eq.Var] = struct{}{}
	r.protected[eq.Update] = struct{}{}
}

// RecordEquation registers variable as driven by update. Both nodes become
// protected and survive every pruning and folding pass. Constants never
// change, so variable must not be one.
func (g *Graph) RecordEquation(variable, update string, differential bool) error {
	for _, name := range []string{variable, update} {
		if !g.Has(name) {
			return fmt.Errorf("recording equation for %s: %w %q", variable, ErrUnknownNode, name)
		}
	}
	if v, ok := g.Var(variable); ok && v.Kind == node.Constant {
		return fmt.Errorf("recording equation for %s: %w", variable, ErrConstantTarget)
	}
	g.reg.record(Equation{Var: variable, Update: update, Differential: differential})
	return nil
}

// Equations returns the differential or the algebraic equations in the
// order they were first recorded.
func (g *Graph) Equations(differential bool) []Equation {
	if differential {
		return slices.Clone(g.reg.des)
	}
	return slices.Clone(g.reg.nonDEs)
}

// Protected reports whether name is referenced by a recorded equation.
func (g *Graph) Protected(name string) bool {
	_, ok := g.reg.protected[name]
	return ok
}
