package codegen

import (
	"fmt"

	"github.com/specialistvlad/circuitgo/internal/backend"
	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// Func is a Program lowered to closures. It holds no mutable state and may
// be called concurrently.
type Func struct {
	prog  *Program
	steps []step
	slots int
}

type eval func(frame []tensor.Array) (tensor.Array, error)

type step struct {
	kind  StmtKind
	name  string
	slot  int
	index Range
	shape []int
	eval  eval
}

// Compile lowers p into a callable vector field using b for every operator
// and function.
func (p *Program) Compile(b backend.Backend) (*Func, error) {
	c := compiler{b: b, slots: make(map[string]int)}
	for _, a := range p.Args {
		c.alloc(a.Name)
	}

	f := &Func{prog: p}
	for _, st := range p.Statements {
		s := step{kind: st.Kind, name: st.Target}
		if st.Index != nil {
			s.index = *st.Index
		}
		if st.Kind != Load {
			fn, err := c.lower(st.Expr)
			if err != nil {
				return nil, &CompileError{Stage: StageEmit, Name: st.Target, Err: err}
			}
			s.eval = fn
		}
		switch st.Kind {
		case Load:
			slot, _ := p.Slot(st.Target)
			s.shape = slot.Shape
			s.slot = c.alloc(st.Target)
		case Assign:
			s.slot = c.alloc(st.Target)
		}
		f.steps = append(f.steps, s)
	}
	f.slots = len(c.slots)
	return f, nil
}

// Program returns the program f was compiled from.
func (f *Func) Program() *Program { return f.prog }

// Call evaluates the vector field at state y with the arguments in program
// order and returns a fresh derivative vector.
func (f *Func) Call(t float64, y []float64, args ...[]float64) ([]float64, error) {
	p := f.prog
	if len(y) != p.StateSize {
		return nil, fmt.Errorf("%s: %w: state has %d values, want %d", p.Name, ErrShapeMismatch, len(y), p.StateSize)
	}
	if len(args) != len(p.Args) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", p.Name, len(args), len(p.Args))
	}

	frame := make([]tensor.Array, f.slots)
	for i, a := range p.Args {
		v, err := tensor.New(a.Shape, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s: argument %s: %w", p.Name, a.Name, err)
		}
		frame[i] = v
	}

	dy := make([]float64, p.StateSize)
	for _, s := range f.steps {
		switch s.kind {
		case Load:
			v, err := tensor.New(s.shape, y[s.index.Start:s.index.End])
			if err != nil {
				return nil, fmt.Errorf("%s: loading %s: %w", p.Name, s.name, err)
			}
			frame[s.slot] = v
		case Assign:
			v, err := s.eval(frame)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			frame[s.slot] = v
		case Store:
			v, err := s.eval(frame)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			out := dy[s.index.Start:s.index.End]
			switch v.Len() {
			case len(out):
				copy(out, v.Data())
			case 1:
				for i := range out {
					out[i] = v.Item()
				}
			default:
				return nil, fmt.Errorf("%s: storing %s: %w: %d values for %d slots", p.Name, s.index, ErrShapeMismatch, v.Len(), len(out))
			}
		}
	}
	return dy, nil
}

type compiler struct {
	b     backend.Backend
	slots map[string]int
}

func (c *compiler) alloc(name string) int {
	if i, ok := c.slots[name]; ok {
		return i
	}
	i := len(c.slots)
	c.slots[name] = i
	return i
}

func (c *compiler) lower(e expr.Expr) (eval, error) {
	switch e := e.(type) {
	case *expr.Const:
		v := tensor.Scalar(e.Value)
		return func([]tensor.Array) (tensor.Array, error) { return v, nil }, nil
	case *expr.Symbol:
		i, ok := c.slots[e.Name]
		if !ok {
			return nil, fmt.Errorf("%s is read before it is defined", e.Name)
		}
		return func(frame []tensor.Array) (tensor.Array, error) { return frame[i], nil }, nil
	case *expr.Apply:
		f, ok := c.b.Lookup(e.Op)
		if !ok {
			return nil, fmt.Errorf("backend %s has no function %q", c.b.Name(), e.Op)
		}
		if f.Arity != backend.Variadic && f.Arity != len(e.Args) {
			return nil, fmt.Errorf("%s expects %d arguments, got %d", e.Op, f.Arity, len(e.Args))
		}
		args := make([]eval, len(e.Args))
		for i, a := range e.Args {
			fn, err := c.lower(a)
			if err != nil {
				return nil, err
			}
			args[i] = fn
		}
		return func(frame []tensor.Array) (tensor.Array, error) {
			vals := make([]tensor.Array, len(args))
			for i, a := range args {
				v, err := a(frame)
				if err != nil {
					return tensor.Array{}, err
				}
				vals[i] = v
			}
			out, err := f.Eval(vals)
			if err != nil {
				return tensor.Array{}, fmt.Errorf("%s: %w", e.Op, err)
			}
			return out, nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}
