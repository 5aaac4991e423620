package backend

import (
	"fmt"
	"maps"
	"strings"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/tensor"
	"github.com/specialistvlad/circuitgo/rt"
)

// RuntimeImport is the package emitted source uses for its kernels.
const RuntimeImport = "github.com/specialistvlad/circuitgo/rt"

// Native evaluates expressions with the rt kernels and emits calls into the
// same package.
type Native struct {
	funcs   map[string]Func
	renames map[string]string
}

var _ Backend = (*Native)(nil)

// NewNative builds the native backend. Extra functions are added to, or
// replace, the built-in table.
func NewNative(extra ...Func) *Native {
	n := &Native{
		funcs: make(map[string]Func),
		renames: map[string]string{
			"logistic":  "sigmoid",
			"ln":        "log",
			"step":      "heaviside",
			"maximum":   "max",
			"minimum":   "min",
			"power":     "pow",
			"mod":       "fmod",
			"absolute":  "abs",
			"interp_if": expr.OpWhere,
		},
	}

	for name, k := range map[string]func(a, b []float64) []float64{
		expr.OpAdd: rt.Add, expr.OpSub: rt.Sub, expr.OpMul: rt.Mul, expr.OpDiv: rt.Div,
		expr.OpMod: rt.Mod, expr.OpGt: rt.Gt, expr.OpGe: rt.Ge, expr.OpLt: rt.Lt,
		expr.OpLe: rt.Le, expr.OpEq: rt.Eq, expr.OpNe: rt.Ne, expr.OpAnd: rt.And, expr.OpOr: rt.Or,
		"pow": rt.Pow, "max": rt.Max, "min": rt.Min, "fmod": rt.Mod,
	} {
		n.funcs[name] = binary(name, k)
	}
	for name, k := range map[string]func([]float64) []float64{
		expr.OpNeg: rt.Neg, expr.OpNot: rt.Not,
		"exp": rt.Exp, "log": rt.Log, "sqrt": rt.Sqrt, "abs": rt.Abs,
		"sin": rt.Sin, "cos": rt.Cos, "tan": rt.Tan, "tanh": rt.Tanh,
		"sigmoid": rt.Sigmoid, "heaviside": rt.Heaviside,
	} {
		n.funcs[name] = unary(name, k)
	}
	n.funcs["sum"] = reduce("sum", rt.Sum)
	n.funcs["mean"] = reduce("mean", rt.Mean)
	n.funcs[expr.OpWhere] = Func{Name: expr.OpWhere, Arity: 3, Routine: "rt.Where", Eval: where}
	n.funcs[expr.OpIndex] = Func{Name: expr.OpIndex, Arity: 2, Routine: "rt.Index", Eval: index}
	n.funcs["dot"] = Func{Name: "dot", Arity: 2, Routine: "rt.Dot", Eval: dot}

	for _, f := range extra {
		n.funcs[f.Name] = f
	}
	return n
}

func (n *Native) Name() string { return "native" }

func (n *Native) Lookup(name string) (Func, bool) {
	f, ok := n.funcs[name]
	return f, ok
}

func (n *Native) Call(name string, args []tensor.Array) (tensor.Array, error) {
	return call(n, name, args)
}

func (n *Native) Renames() map[string]string { return maps.Clone(n.renames) }

func (n *Native) Imports() []string { return []string{RuntimeImport} }

// routines maps operator symbols to exported rt identifiers.
var routines = map[string]string{
	expr.OpAdd: "Add", expr.OpSub: "Sub", expr.OpMul: "Mul", expr.OpDiv: "Div",
	expr.OpMod: "Mod", expr.OpGt: "Gt", expr.OpGe: "Ge", expr.OpLt: "Lt",
	expr.OpLe: "Le", expr.OpEq: "Eq", expr.OpNe: "Ne", expr.OpAnd: "And",
	expr.OpOr: "Or", expr.OpNeg: "Neg", expr.OpNot: "Not", "fmod": "Mod",
}

func routine(name string) string {
	if r, ok := routines[name]; ok {
		return "rt." + r
	}
	// rt exports function kernels under their capitalized names.
	return "rt." + strings.ToUpper(name[:1]) + name[1:]
}

func unary(name string, k func([]float64) []float64) Func {
	return Func{Name: name, Arity: 1, Routine: routine(name), Eval: func(args []tensor.Array) (tensor.Array, error) {
		return tensor.New(args[0].Shape(), k(args[0].Data()))
	}}
}

func binary(name string, k func(a, b []float64) []float64) Func {
	return Func{Name: name, Arity: 2, Routine: routine(name), Eval: func(args []tensor.Array) (tensor.Array, error) {
		shape, err := tensor.BroadcastShape(args...)
		if err != nil {
			return tensor.Array{}, err
		}
		return tensor.New(shape, k(args[0].Data(), args[1].Data()))
	}}
}

func reduce(name string, k func([]float64) []float64) Func {
	return Func{Name: name, Arity: 1, Routine: routine(name), Eval: func(args []tensor.Array) (tensor.Array, error) {
		return tensor.Scalar(k(args[0].Data())[0]), nil
	}}
}

func where(args []tensor.Array) (tensor.Array, error) {
	shape, err := tensor.BroadcastShape(args...)
	if err != nil {
		return tensor.Array{}, err
	}
	return tensor.New(shape, rt.Where(args[0].Data(), args[1].Data(), args[2].Data()))
}

func index(args []tensor.Array) (tensor.Array, error) {
	src, idx := args[0], args[1]
	for _, k := range idx.Data() {
		j := int(k)
		if j < 0 {
			j += src.Len()
		}
		if j < 0 || j >= src.Len() {
			return tensor.Array{}, fmt.Errorf("index %d out of range for %d elements", int(k), src.Len())
		}
	}
	return tensor.New(idx.Shape(), rt.Index(src.Data(), idx.Data()))
}

func dot(args []tensor.Array) (tensor.Array, error) {
	if args[0].Len() != args[1].Len() {
		return tensor.Array{}, fmt.Errorf("dot product of %d and %d elements", args[0].Len(), args[1].Len())
	}
	return tensor.Scalar(rt.Dot(args[0].Data(), args[1].Data())[0]), nil
}
