// Package circuit reads population models from HCL files and builds their
// compute graphs.
//
// A model file declares variables and the equations driving them:
//
//	variable "tau" {
//	  kind  = "constant"
//	  value = 0.01
//	}
//	variable "r" {
//	  kind  = "state_var"
//	  value = [0.0, 0.0]
//	}
//	variable "u" { kind = "input" }
//	equation "r" {
//	  rhs          = "(u - r) / tau"
//	  differential = true
//	}
//
// The right-hand side is either a quoted infix string or a bare HCL
// expression. Build turns every operator of it into its own operation node,
// so the graph passes have real subgraphs to fold and prune.
package circuit

import (
	"fmt"
	"slices"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// Model is the format-agnostic content of one or more model files.
type Model struct {
	Variables []*Variable
	Equations []*Equation
}

// Variable is a declared leaf of the model.
type Variable struct {
	Name  string
	Kind  node.Kind
	Value tensor.Array
	// Shape is the declared shape; nil leaves it to Value.
	Shape []int
	DType tensor.DType
}

// Equation drives Var with RHS.
type Equation struct {
	Var          string
	RHS          expr.Expr
	Differential bool
}

// Variable looks up a declared variable.
func (m *Model) Variable(name string) (*Variable, bool) {
	for _, v := range m.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// States lists the variables driven by differential equations, in equation
// order.
func (m *Model) States() []string {
	var out []string
	for _, eq := range m.Equations {
		if eq.Differential {
			out = append(out, eq.Var)
		}
	}
	return out
}

// WithValue returns a copy of m in which every element of variable name holds
// v. The shape is kept. m itself is not modified.
func (m *Model) WithValue(name string, v float64) (*Model, error) {
	i := slices.IndexFunc(m.Variables, func(decl *Variable) bool { return decl.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("variable %q is not declared", name)
	}
	decl := *m.Variables[i]
	shape := decl.Shape
	if !decl.Value.IsZero() {
		shape = decl.Value.Shape()
	}
	decl.Value = tensor.Full(shape, v)

	out := &Model{Variables: slices.Clone(m.Variables), Equations: m.Equations}
	out.Variables[i] = &decl
	return out, nil
}
