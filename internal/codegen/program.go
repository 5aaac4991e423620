// Package codegen compiles a compute graph into a vector field: a function
// mapping the packed state vector to its time derivative.
//
// Generate produces a Program, an ordered list of typed statements over
// named slots. A Program is lowered either to interpreted closures with
// Compile or to Go source with Source.
package codegen

import (
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/graph"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// StmtKind selects what a statement does.
type StmtKind int

const (
	// Load binds Target to the state vector elements in Index.
	Load StmtKind = iota
	// Assign binds Target to the value of Expr.
	Assign
	// Store writes the value of Expr into the derivative vector at Index.
	Store
)

func (k StmtKind) String() string {
	switch k {
	case Load:
		return "load"
	case Assign:
		return "assign"
	case Store:
		return "store"
	}
	return fmt.Sprintf("StmtKind(%d)", int(k))
}

// Range is a half-open element range of a flat vector.
type Range struct {
	Start, End int
}

// Len is the number of elements in r.
func (r Range) Len() int { return r.End - r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d:%d]", r.Start, r.End) }

// Stmt is one instruction of a Program.
type Stmt struct {
	Kind   StmtKind
	Target string
	Index  *Range
	Expr   expr.Expr
}

func (s Stmt) String() string {
	switch s.Kind {
	case Load:
		return fmt.Sprintf("%s = y%s", s.Target, s.Index)
	case Store:
		return fmt.Sprintf("%s%s = %s", s.Target, s.Index, s.Expr)
	default:
		return fmt.Sprintf("%s = %s", s.Target, s.Expr)
	}
}

// StateSlot is the position of one state variable inside the state vector.
type StateSlot struct {
	Name  string
	Start int
	End   int
	Shape []int
}

// Range returns the slot's element range.
func (s StateSlot) Range() Range { return Range{Start: s.Start, End: s.End} }

// Arg is an external argument of the compiled function.
type Arg struct {
	Name  string
	Shape []int
	DType tensor.DType
	Kind  node.Kind
}

// Program is a compiled vector field in instruction list form.
type Program struct {
	Name       string
	Layout     []StateSlot
	Args       []Arg
	Statements []Stmt
	StateSize  int
	// Initial is the packed state at generation time.
	Initial []float64
	// StateVector and DerivativeVector name the graph nodes allocated for
	// y and dy.
	StateVector      string
	DerivativeVector string
}

// Slot looks up the layout entry of a state variable.
func (p *Program) Slot(name string) (StateSlot, bool) {
	for _, s := range p.Layout {
		if s.Name == name {
			return s, true
		}
	}
	return StateSlot{}, false
}

// Pack concatenates per-variable values into a state vector following the
// layout. A single-element value fills its whole slot.
func (p *Program) Pack(values map[string]tensor.Array) ([]float64, error) {
	y := make([]float64, p.StateSize)
	for _, s := range p.Layout {
		v, ok := values[s.Name]
		if !ok {
			return nil, fmt.Errorf("packing state: missing value for %s", s.Name)
		}
		switch {
		case v.Len() == s.End-s.Start:
			copy(y[s.Start:s.End], v.Data())
		case v.Len() == 1:
			for i := s.Start; i < s.End; i++ {
				y[i] = v.Item()
			}
		default:
			return nil, fmt.Errorf("packing state %s: %w: %d values for %d slots", s.Name, ErrShapeMismatch, v.Len(), s.End-s.Start)
		}
	}
	return y, nil
}

// Unpack splits a state vector into per-variable values shaped like their
// slots.
func (p *Program) Unpack(y []float64) (map[string]tensor.Array, error) {
	if len(y) != p.StateSize {
		return nil, fmt.Errorf("unpacking state: %w: got %d values, want %d", ErrShapeMismatch, len(y), p.StateSize)
	}
	out := make(map[string]tensor.Array, len(p.Layout))
	for _, s := range p.Layout {
		v, err := tensor.New(s.Shape, y[s.Start:s.End])
		if err != nil {
			return nil, fmt.Errorf("unpacking state %s: %w", s.Name, err)
		}
		out[s.Name] = v
	}
	return out, nil
}

// DefaultArgs reads the current values of the program's arguments from g,
// in argument order.
func (p *Program) DefaultArgs(g *graph.Graph) ([][]float64, error) {
	out := make([][]float64, len(p.Args))
	for i, a := range p.Args {
		n, ok := g.Node(a.Name)
		if !ok {
			return nil, fmt.Errorf("argument %s: %w", a.Name, graph.ErrUnknownNode)
		}
		out[i] = n.Value().Clone().Data()
	}
	return out, nil
}
