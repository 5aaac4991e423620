// Package rt holds the numeric kernels behind compiled vector fields.
//
// Every kernel works on flat []float64 buffers. A buffer of length one
// stretches over the other operands, which is the only broadcasting rule the
// compiler relies on. Kernels always return a fresh buffer, so generated
// functions never alias their inputs.
//
// The interpreted backend and emitted Go source share these kernels, which is
// what keeps both lowering targets numerically identical.
package rt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Const wraps a literal.
func Const(v float64) []float64 {
	return []float64{v}
}

// Len is the broadcast length of the operands. It panics when two operands
// longer than one element disagree; the compiler checks shapes before any
// kernel runs.
func Len(args ...[]float64) int {
	n := 1
	for _, a := range args {
		switch {
		case len(a) == 1:
		case n == 1:
			n = len(a)
		case len(a) != n:
			panic(fmt.Sprintf("rt: operands of length %d and %d cannot be broadcast", n, len(a)))
		}
	}
	return n
}

func at(a []float64, i int) float64 {
	if len(a) == 1 {
		return a[0]
	}
	return a[i]
}

// Map1 applies f element-wise.
func Map1(a []float64, f func(float64) float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = f(v)
	}
	return out
}

// Map2 applies f element-wise with broadcasting.
func Map2(a, b []float64, f func(x, y float64) float64) []float64 {
	out := make([]float64, Len(a, b))
	for i := range out {
		out[i] = f(at(a, i), at(b, i))
	}
	return out
}

func Add(a, b []float64) []float64 {
	if len(a) == len(b) {
		out := make([]float64, len(a))
		floats.AddTo(out, a, b)
		return out
	}
	return Map2(a, b, func(x, y float64) float64 { return x + y })
}

func Sub(a, b []float64) []float64 {
	if len(a) == len(b) {
		out := make([]float64, len(a))
		floats.SubTo(out, a, b)
		return out
	}
	return Map2(a, b, func(x, y float64) float64 { return x - y })
}

func Mul(a, b []float64) []float64 {
	switch {
	case len(a) == len(b):
		out := make([]float64, len(a))
		floats.MulTo(out, a, b)
		return out
	case len(b) == 1:
		out := append([]float64(nil), a...)
		floats.Scale(b[0], out)
		return out
	case len(a) == 1:
		out := append([]float64(nil), b...)
		floats.Scale(a[0], out)
		return out
	}
	return Map2(a, b, func(x, y float64) float64 { return x * y })
}

func Div(a, b []float64) []float64 {
	if len(a) == len(b) {
		out := make([]float64, len(a))
		floats.DivTo(out, a, b)
		return out
	}
	return Map2(a, b, func(x, y float64) float64 { return x / y })
}

func Mod(a, b []float64) []float64 { return Map2(a, b, math.Mod) }
func Pow(a, b []float64) []float64 { return Map2(a, b, math.Pow) }
func Max(a, b []float64) []float64 { return Map2(a, b, math.Max) }
func Min(a, b []float64) []float64 { return Map2(a, b, math.Min) }

func Neg(a []float64) []float64 {
	out := append([]float64(nil), a...)
	floats.Scale(-1, out)
	return out
}

func Exp(a []float64) []float64  { return Map1(a, math.Exp) }
func Log(a []float64) []float64  { return Map1(a, math.Log) }
func Sqrt(a []float64) []float64 { return Map1(a, math.Sqrt) }
func Abs(a []float64) []float64  { return Map1(a, math.Abs) }
func Sin(a []float64) []float64  { return Map1(a, math.Sin) }
func Cos(a []float64) []float64  { return Map1(a, math.Cos) }
func Tan(a []float64) []float64  { return Map1(a, math.Tan) }
func Tanh(a []float64) []float64 { return Map1(a, math.Tanh) }

// Sigmoid is the logistic function 1 / (1 + exp(-x)).
func Sigmoid(a []float64) []float64 {
	return Map1(a, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
}

// Heaviside is 1 for positive inputs and 0 otherwise.
func Heaviside(a []float64) []float64 {
	return Map1(a, func(x float64) float64 { return truth(x > 0) })
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func Gt(a, b []float64) []float64 { return Map2(a, b, func(x, y float64) float64 { return truth(x > y) }) }
func Ge(a, b []float64) []float64 { return Map2(a, b, func(x, y float64) float64 { return truth(x >= y) }) }
func Lt(a, b []float64) []float64 { return Map2(a, b, func(x, y float64) float64 { return truth(x < y) }) }
func Le(a, b []float64) []float64 { return Map2(a, b, func(x, y float64) float64 { return truth(x <= y) }) }
func Eq(a, b []float64) []float64 { return Map2(a, b, func(x, y float64) float64 { return truth(x == y) }) }
func Ne(a, b []float64) []float64 { return Map2(a, b, func(x, y float64) float64 { return truth(x != y) }) }

func And(a, b []float64) []float64 {
	return Map2(a, b, func(x, y float64) float64 { return truth(x != 0 && y != 0) })
}

func Or(a, b []float64) []float64 {
	return Map2(a, b, func(x, y float64) float64 { return truth(x != 0 || y != 0) })
}

func Not(a []float64) []float64 {
	return Map1(a, func(x float64) float64 { return truth(x == 0) })
}

// Where picks a where cond is non-zero and b elsewhere.
func Where(cond, a, b []float64) []float64 {
	out := make([]float64, Len(cond, a, b))
	for i := range out {
		if at(cond, i) != 0 {
			out[i] = at(a, i)
		} else {
			out[i] = at(b, i)
		}
	}
	return out
}

// Index selects elements of a at the (truncated) positions in idx.
func Index(a, idx []float64) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		j := int(k)
		if j < 0 {
			j += len(a)
		}
		if j < 0 || j >= len(a) {
			panic(fmt.Sprintf("rt: index %d out of range for %d elements", int(k), len(a)))
		}
		out[i] = a[j]
	}
	return out
}

func Sum(a []float64) []float64 { return []float64{floats.Sum(a)} }

func Mean(a []float64) []float64 {
	if len(a) == 0 {
		return []float64{math.NaN()}
	}
	return []float64{floats.Sum(a) / float64(len(a))}
}

// Dot is the inner product of two equally long buffers.
func Dot(a, b []float64) []float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("rt: dot product of %d and %d elements", len(a), len(b)))
	}
	return []float64{floats.Dot(a, b)}
}
