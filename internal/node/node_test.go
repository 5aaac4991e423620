package node

import (
	"testing"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	assert.Equal(t, Variable, ParseKind(""))
	assert.Equal(t, Constant, ParseKind(" Constant "))
	assert.Equal(t, Kind("synaptic_current"), ParseKind("synaptic_current"))
	assert.True(t, Input.IsFree())
	assert.True(t, Constant.IsFree())
	assert.False(t, StateVar.IsFree())
}

func TestNewVar(t *testing.T) {
	t.Run("zero value takes declared shape", func(t *testing.T) {
		v, err := NewVar("r", tensor.Array{}, StateVar, WithShape(3))
		require.NoError(t, err)
		assert.Equal(t, []int{3}, v.Shape())
		assert.Equal(t, []float64{0, 0, 0}, v.Value().Data())
	})

	t.Run("scalar broadcast", func(t *testing.T) {
		v, err := NewVar("c", tensor.Scalar(2), Constant, WithShape(2, 2))
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, v.Shape())
		assert.Equal(t, []float64{2, 2, 2, 2}, v.Value().Data())
	})

	t.Run("reshaped to declared shape", func(t *testing.T) {
		v, err := NewVar("w", tensor.Vector(1, 2, 3, 4), Constant, WithShape(2, 2))
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, v.Shape())
	})

	t.Run("shape taken from value", func(t *testing.T) {
		v, err := NewVar("u", tensor.Vector(1, 2), Input)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, v.Shape())
		assert.Equal(t, tensor.Float64, v.DType())
	})

	t.Run("dtype applied", func(t *testing.T) {
		v, err := NewVar("n", tensor.Scalar(2.7), Constant, WithDType(tensor.Int))
		require.NoError(t, err)
		assert.Equal(t, 2.0, v.Value().Item())
	})

	t.Run("mismatch", func(t *testing.T) {
		_, err := NewVar("bad", tensor.Vector(1, 2, 3), Constant, WithShape(2))
		assert.ErrorContains(t, err, "does not fit declared shape")
	})
}

func TestReshapeAndSqueeze(t *testing.T) {
	v, err := NewVar("x", tensor.Scalar(1), StateVar)
	require.NoError(t, err)
	assert.Empty(t, v.Shape())

	require.NoError(t, v.Reshape(1))
	assert.Equal(t, []int{1}, v.Shape())
	assert.Equal(t, v.Shape(), v.Value().Shape())

	v.Squeeze()
	assert.Empty(t, v.Shape())

	assert.ErrorContains(t, v.Reshape(2), "node x")
}

func TestSetValue(t *testing.T) {
	v, err := NewVar("c", tensor.Array{}, Variable, WithShape(2))
	require.NoError(t, err)

	require.NoError(t, v.SetValue(tensor.Scalar(5)))
	assert.Equal(t, []float64{5, 5}, v.Value().Data())

	assert.Error(t, v.SetValue(tensor.Vector(1, 2, 3)))
}

func TestOpConstant(t *testing.T) {
	op, err := NewOp("sum", expr.MustParse("a + b"), nil, tensor.Scalar(5), WithDType(tensor.Float32))
	require.NoError(t, err)
	assert.Equal(t, "sum", op.Symbol().Name)

	c, err := op.Constant(tensor.Scalar(5))
	require.NoError(t, err)
	assert.Equal(t, Constant, c.Kind)
	assert.Equal(t, "sum", c.Name())
	assert.Equal(t, tensor.Float32, c.DType())
	assert.Equal(t, 5.0, c.Value().Item())

	_, err = op.Constant(tensor.Vector(1, 2))
	assert.ErrorContains(t, err, "folding sum")
}
