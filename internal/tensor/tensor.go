// Package tensor provides the dense numeric buffers held by compute graph
// nodes and passed through generated vector fields.
//
// An Array is a row-major float64 buffer with a shape. An empty shape is a
// scalar. Element types other than float64 are carried as a DType tag and
// applied with Cast; storage is always float64.
package tensor

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// DType is the declared element type of a buffer.
type DType string

const (
	Float64 DType = "float64"
	Float32 DType = "float32"
	Int     DType = "int"
)

// ParseDType maps a type name to a DType. An empty name is Float64.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case "", Float64:
		return Float64, nil
	case Float32:
		return Float32, nil
	case Int, "int64":
		return Int, nil
	}
	return "", fmt.Errorf("unsupported dtype %q", s)
}

// Array is a shaped numeric buffer.
type Array struct {
	shape []int
	data  []float64
}

// Scalar returns a zero-dimensional array holding v.
func Scalar(v float64) Array {
	return Array{data: []float64{v}}
}

// Vector returns a one-dimensional array over a copy of vals.
func Vector(vals ...float64) Array {
	return Array{shape: []int{len(vals)}, data: slices.Clone(vals)}
}

// New wraps data in an array of the given shape. The data slice is copied.
func New(shape []int, data []float64) (Array, error) {
	if Size(shape) != len(data) {
		return Array{}, fmt.Errorf("cannot build array of shape %v from %d values", shape, len(data))
	}
	return Array{shape: slices.Clone(shape), data: slices.Clone(data)}, nil
}

// Zeros returns a zero-filled array of the given shape.
func Zeros(shape []int) Array {
	return Array{shape: slices.Clone(shape), data: make([]float64, Size(shape))}
}

// Full returns an array of the given shape with every element set to v.
func Full(shape []int, v float64) Array {
	a := Zeros(shape)
	if v != 0 {
		floats.AddConst(v, a.data)
	}
	return a
}

// Size is the number of elements described by shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	return slices.Equal(a, b)
}

// Shape returns a copy of the array's shape.
func (a Array) Shape() []int { return slices.Clone(a.shape) }

// Data returns the backing buffer. Callers must not retain it across
// mutations of the owning node.
func (a Array) Data() []float64 { return a.data }

// Len is the number of elements.
func (a Array) Len() int { return len(a.data) }

// Ndim is the number of dimensions.
func (a Array) Ndim() int { return len(a.shape) }

// IsZero reports whether the array was never initialized.
func (a Array) IsZero() bool { return a.data == nil }

// Item returns the first element. It is meant for single-element arrays.
func (a Array) Item() float64 {
	if len(a.data) == 0 {
		return 0
	}
	return a.data[0]
}

// Clone returns a deep copy.
func (a Array) Clone() Array {
	return Array{shape: slices.Clone(a.shape), data: slices.Clone(a.data)}
}

// Reshape returns the array viewed with a new shape of the same size.
func (a Array) Reshape(shape ...int) (Array, error) {
	if Size(shape) != len(a.data) {
		return Array{}, fmt.Errorf("cannot reshape array of shape %v into %v", a.shape, shape)
	}
	return Array{shape: slices.Clone(shape), data: a.data}, nil
}

// Squeeze drops every dimension of length one.
func (a Array) Squeeze() Array {
	shape := make([]int, 0, len(a.shape))
	for _, d := range a.shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	return Array{shape: shape, data: a.data}
}

// Cast applies the element type to a copy of the array.
func (a Array) Cast(dt DType) Array {
	out := a.Clone()
	switch dt {
	case Float32:
		for i, v := range out.data {
			out.data[i] = float64(float32(v))
		}
	case Int:
		for i, v := range out.data {
			out.data[i] = math.Trunc(v)
		}
	}
	return out
}

// Map applies f element-wise and returns a new array.
func (a Array) Map(f func(float64) float64) Array {
	out := a.Clone()
	for i, v := range out.data {
		out.data[i] = f(v)
	}
	return out
}

// Equal reports whether both arrays share a shape and all elements agree
// within tol.
func Equal(a, b Array, tol float64) bool {
	if !SameShape(a.shape, b.shape) {
		return false
	}
	return floats.EqualApprox(a.data, b.data, tol)
}

func (a Array) String() string {
	if len(a.shape) == 0 {
		return fmt.Sprintf("%g", a.Item())
	}
	parts := make([]string, len(a.data))
	for i, v := range a.data {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("%v[%s]", a.shape, strings.Join(parts, " "))
}
