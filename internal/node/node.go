// Package node defines the vertices of the compute graph: variables, which
// hold values, and operations, which compute a value from their inputs.
package node

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// Kind tags a variable with its role in the model.
type Kind string

const (
	// Constant values never change after creation and may be folded away.
	Constant Kind = "constant"
	// Input values are supplied by the caller at every step.
	Input Kind = "input"
	// StateVar values form the packed simulation state. Only the generated
	// update function writes them.
	StateVar Kind = "state_var"
	// Variable is a general dynamic variable, e.g. the left-hand side of an
	// algebraic equation.
	Variable Kind = "variable"
)

// ParseKind normalizes a kind name. Unknown names are kept as model specific
// categories; an empty name is Variable.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Variable
	}
	return Kind(s)
}

// IsFree reports whether leaves of this kind become arguments of a compiled
// function.
func (k Kind) IsFree() bool {
	return k == Constant || k == Input
}

// Node is a single vertex of the compute graph.
type Node interface {
	// Name is unique within the graph.
	Name() string
	// Symbol is the handle expressions use to refer to this node.
	Symbol() *expr.Symbol
	DType() tensor.DType
	Shape() []int
	Value() tensor.Array
	// Reshape and Squeeze are the only legal shape mutations.
	Reshape(shape ...int) error
	Squeeze()
}

type base struct {
	name  string
	dtype tensor.DType
	value tensor.Array
}

func (b *base) Name() string         { return b.name }
func (b *base) Symbol() *expr.Symbol { return expr.Sym(b.name) }
func (b *base) DType() tensor.DType  { return b.dtype }
func (b *base) Shape() []int         { return b.value.Shape() }
func (b *base) Value() tensor.Array  { return b.value }
func (b *base) String() string       { return b.name }
func (b *base) Squeeze()             { b.value = b.value.Squeeze() }
func (b *base) Reshape(shape ...int) error {
	v, err := b.value.Reshape(shape...)
	if err != nil {
		return fmt.Errorf("node %s: %w", b.name, err)
	}
	b.value = v
	return nil
}

// Var is a variable or constant leaf.
type Var struct {
	base
	Kind Kind
}

// Func is the numeric implementation of an operation. Arguments arrive in
// input (edge key) order.
type Func func(args ...tensor.Array) (tensor.Array, error)

// Op is a node computing a value from its inputs.
type Op struct {
	base
	// Expr describes Func symbolically over the input nodes' symbols.
	Expr expr.Expr
	Func Func
}

// Option adjusts node construction.
type Option func(*options)

type options struct {
	shape    []int
	hasShape bool
	dtype    tensor.DType
}

// WithShape declares the node's shape. An empty shape declares a scalar.
func WithShape(shape ...int) Option {
	return func(o *options) {
		o.shape = shape
		o.hasShape = true
	}
}

// WithDType declares the node's element type.
func WithDType(dt tensor.DType) Option {
	return func(o *options) { o.dtype = dt }
}

func collect(opts []Option) options {
	o := options{dtype: tensor.Float64}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewVar builds a variable. A zero value is replaced by zeros of the declared
// shape; a single-element value is broadcast over it.
func NewVar(name string, value tensor.Array, kind Kind, opts ...Option) (*Var, error) {
	o := collect(opts)
	v, err := conform(value, o)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return &Var{base: base{name: name, dtype: o.dtype, value: v}, Kind: kind}, nil
}

// NewOp builds an operation whose current value is value, usually the result
// of applying fn to the inputs' current values.
func NewOp(name string, e expr.Expr, fn Func, value tensor.Array, opts ...Option) (*Op, error) {
	o := collect(opts)
	v, err := conform(value, o)
	if err != nil {
		return nil, fmt.Errorf("operation %s: %w", name, err)
	}
	return &Op{base: base{name: name, dtype: o.dtype, value: v}, Expr: e, Func: fn}, nil
}

// SetValue replaces the variable's value, keeping its declared shape and
// element type.
func (v *Var) SetValue(value tensor.Array) error {
	out, err := conform(value, options{shape: v.value.Shape(), hasShape: true, dtype: v.dtype})
	if err != nil {
		return fmt.Errorf("variable %s: %w", v.name, err)
	}
	v.value = out
	return nil
}

// Constant turns an operation into a constant variable holding value. The
// name, and therefore the symbol, is kept and value is fitted to the
// operation's shape.
func (op *Op) Constant(value tensor.Array) (*Var, error) {
	v, err := conform(value, options{shape: op.value.Shape(), hasShape: true, dtype: op.dtype})
	if err != nil {
		return nil, fmt.Errorf("folding %s: %w", op.name, err)
	}
	return &Var{base: base{name: op.name, dtype: op.dtype, value: v}, Kind: Constant}, nil
}

func conform(value tensor.Array, o options) (tensor.Array, error) {
	switch {
	case value.IsZero():
		value = tensor.Zeros(o.shape)
	case !o.hasShape || tensor.SameShape(value.Shape(), o.shape):
	case value.Len() == 1:
		value = tensor.Full(o.shape, value.Item())
	case value.Len() == tensor.Size(o.shape):
		v, err := value.Reshape(o.shape...)
		if err != nil {
			return tensor.Array{}, err
		}
		value = v
	default:
		return tensor.Array{}, fmt.Errorf("value of shape %v does not fit declared shape %v", value.Shape(), o.shape)
	}
	return value.Cast(o.dtype), nil
}
