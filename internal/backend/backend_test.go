package backend

import (
	"testing"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	for _, name := range []string{"", "default", "native"} {
		b, err := Get(name)
		require.NoError(t, err)
		assert.Equal(t, "native", b.Name())
	}

	_, err := Get("fortran")
	assert.ErrorContains(t, err, `unknown backend "fortran"`)
	assert.Equal(t, []string{"native"}, Names())
}

func TestNativeCoversEveryOperator(t *testing.T) {
	b := NewNative()
	for _, op := range expr.Operators() {
		f, ok := b.Lookup(op)
		require.True(t, ok, "operator %q", op)
		assert.NotEmpty(t, f.Routine)
	}
}

func TestNativeCall(t *testing.T) {
	b := NewNative()
	v := tensor.Vector(1, 2, 3)

	out, err := b.Call(expr.OpMul, []tensor.Array{v, tensor.Scalar(2)})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, out.Shape())
	assert.Equal(t, []float64{2, 4, 6}, out.Data())

	out, err = b.Call("sigmoid", []tensor.Array{tensor.Scalar(0)})
	require.NoError(t, err)
	assert.Empty(t, out.Shape())
	assert.Equal(t, 0.5, out.Item())

	out, err = b.Call("sum", []tensor.Array{v})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out.Item())

	t.Run("arity", func(t *testing.T) {
		_, err := b.Call("exp", []tensor.Array{v, v})
		assert.ErrorContains(t, err, "exp expects 1 arguments, got 2")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := b.Call("erf", []tensor.Array{v})
		assert.ErrorContains(t, err, `no function "erf"`)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := b.Call(expr.OpAdd, []tensor.Array{v, tensor.Vector(1, 2)})
		assert.ErrorContains(t, err, "cannot be broadcast")
	})

	t.Run("index bounds", func(t *testing.T) {
		out, err := b.Call(expr.OpIndex, []tensor.Array{v, tensor.Scalar(-1)})
		require.NoError(t, err)
		assert.Equal(t, 3.0, out.Item())

		_, err = b.Call(expr.OpIndex, []tensor.Array{v, tensor.Scalar(3)})
		assert.ErrorContains(t, err, "out of range")
	})
}

func TestNativeRoutinesAndRenames(t *testing.T) {
	b := NewNative()
	cases := map[string]string{
		expr.OpAdd:   "rt.Add",
		expr.OpNeg:   "rt.Neg",
		"heaviside":  "rt.Heaviside",
		expr.OpWhere: "rt.Where",
		"fmod":       "rt.Mod",
	}
	for name, want := range cases {
		f, ok := b.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, want, f.Routine, name)
	}

	renames := b.Renames()
	assert.Equal(t, "sigmoid", renames["logistic"])
	renames["logistic"] = "tampered"
	assert.Equal(t, "sigmoid", b.Renames()["logistic"], "renames must be a copy")
	assert.Equal(t, []string{RuntimeImport}, b.Imports())
}

func TestNativeExtraFuncs(t *testing.T) {
	double := Func{
		Name:    "double",
		Arity:   1,
		Routine: "helpers.Double",
		Eval: func(args []tensor.Array) (tensor.Array, error) {
			return args[0].Map(func(x float64) float64 { return 2 * x }), nil
		},
	}
	b := NewNative(double)
	out, err := b.Call("double", []tensor.Array{tensor.Scalar(4)})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.Item())
}
