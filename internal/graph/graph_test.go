package graph

import (
	"context"
	"testing"

	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addVar(t *testing.T, g *Graph, label string, value tensor.Array, kind node.Kind, opts ...node.Option) string {
	t.Helper()
	name, _, err := g.AddVariable(label, value, kind, opts...)
	require.NoError(t, err)
	return name
}

func addOp(t *testing.T, g *Graph, label, src string, inputs ...string) string {
	t.Helper()
	name, _, err := g.AddOperation(inputs, label, expr.MustParse(src), nil)
	require.NoError(t, err)
	return name
}

func TestUniqueNames(t *testing.T) {
	g := New(nil)
	assert.Equal(t, "a", addVar(t, g, "a", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "a_0", addVar(t, g, "a", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "a_1", addVar(t, g, "a", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "x_5", addVar(t, g, "x_5", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "x_6", addVar(t, g, "x_5", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "rate_e", addVar(t, g, "rate_e", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "rate_e_0", addVar(t, g, "rate_e", tensor.Scalar(1), node.Constant))
	assert.Equal(t, "rate_e_1", addVar(t, g, "rate_e", tensor.Scalar(1), node.Constant))

	assert.Equal(t, []string{"a", "a_0", "a_1", "x_5", "x_6", "rate_e", "rate_e_0", "rate_e_1"}, g.Nodes())
	assert.Equal(t, 8, g.Len())
}

func TestAddOperation(t *testing.T) {
	g := New(nil)
	a := addVar(t, g, "a", tensor.Vector(1, 2, 3), node.Constant)
	b := addVar(t, g, "b", tensor.Vector(1, 2), node.Constant)

	t.Run("repeated input", func(t *testing.T) {
		sq := addOp(t, g, "sq", "a * a", a, a)
		preds, err := g.Predecessors(sq)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "a"}, preds)
		assert.Equal(t, 2, g.InDegree(sq))
		assert.Equal(t, 2, g.OutDegree(a))

		succ, err := g.Successors(a)
		require.NoError(t, err)
		assert.Equal(t, []string{sq}, succ)

		n, ok := g.Node(sq)
		require.True(t, ok)
		assert.Equal(t, []float64{1, 4, 9}, n.Value().Data())
	})

	t.Run("unknown input", func(t *testing.T) {
		_, _, err := g.AddOperation([]string{a, "missing"}, "bad", expr.MustParse("a + missing"), nil)
		assert.ErrorIs(t, err, ErrUnknownInput)
	})

	t.Run("expression outside inputs", func(t *testing.T) {
		_, _, err := g.AddOperation([]string{a}, "bad", expr.MustParse("a + b"), nil)
		assert.ErrorIs(t, err, ErrUnknownInput)
	})

	t.Run("no inputs", func(t *testing.T) {
		_, _, err := g.AddOperation(nil, "bad", expr.Num(1), nil)
		assert.ErrorIs(t, err, ErrNoInputs)
	})

	t.Run("shape mismatch detected early", func(t *testing.T) {
		_, _, err := g.AddOperation([]string{a, b}, "bad", expr.MustParse("a + b"), nil)
		assert.ErrorContains(t, err, "cannot be broadcast")
		assert.False(t, g.Has("bad"))
	})

	t.Run("explicit function", func(t *testing.T) {
		double := func(args ...tensor.Array) (tensor.Array, error) {
			return args[0].Map(func(x float64) float64 { return 2 * x }), nil
		}
		name, op, err := g.AddOperation([]string{a}, "double", expr.MustParse("a * 2"), double)
		require.NoError(t, err)
		assert.Equal(t, "double", name)
		assert.Equal(t, []float64{2, 4, 6}, op.Value().Data())
	})

	t.Run("renamed function", func(t *testing.T) {
		_, op, err := g.AddOperation([]string{a}, "act", expr.MustParse("logistic(a - a)"), nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 0.5, 0.5}, op.Value().Data())
	})
}

func TestRecordEquation(t *testing.T) {
	g := New(nil)
	x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
	c := addVar(t, g, "c", tensor.Scalar(0), node.Variable)
	dx := addOp(t, g, "dx", "-x", x)
	dx2 := addOp(t, g, "dx", "x * 2", x)

	require.NoError(t, g.RecordEquation(x, dx, true))
	require.NoError(t, g.RecordEquation(c, x, false))
	require.NoError(t, g.RecordEquation(x, dx2, true))

	assert.Equal(t, []Equation{{Var: x, Update: dx2, Differential: true}}, g.Equations(true))
	assert.Equal(t, []Equation{{Var: c, Update: x}}, g.Equations(false))
	assert.True(t, g.Protected(dx))
	assert.True(t, g.Protected(dx2))

	assert.ErrorIs(t, g.RecordEquation("nope", dx, true), ErrUnknownNode)

	t.Run("constant target", func(t *testing.T) {
		k := addVar(t, g, "k", tensor.Scalar(0), node.Constant)
		a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
		sum := addOp(t, g, "sum", "a + a", a, a)

		assert.ErrorIs(t, g.RecordEquation(k, sum, false), ErrConstantTarget)
		assert.False(t, g.Protected(sum))
		assert.Len(t, g.Equations(false), 1)
	})
}

func TestEvaluate(t *testing.T) {
	g := New(nil)
	a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
	x := addVar(t, g, "x", tensor.Vector(1, -1), node.StateVar)
	s := addOp(t, g, "s", "a * x", a, x)
	r := addOp(t, g, "r", "s + s", s, s)

	v, err := g.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, -4}, v.Data())

	xv, ok := g.Var(x)
	require.True(t, ok)
	require.NoError(t, xv.SetValue(tensor.Vector(3, 0)))

	v, err = g.Evaluate(r)
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 0}, v.Data(), "evaluation must see mutated inputs")

	vals, err := g.EvaluateNodes(a, s)
	require.NoError(t, err)
	assert.Equal(t, 2.0, vals[a].Item())
	assert.Equal(t, []float64{6, 0}, vals[s].Data())

	_, err = g.Evaluate("missing")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestEvaluateAll(t *testing.T) {
	g := New(nil)
	x := addVar(t, g, "x", tensor.Scalar(2), node.StateVar)
	k := addVar(t, g, "k", tensor.Scalar(3), node.Constant)
	c := addVar(t, g, "c", tensor.Scalar(0), node.Variable)
	rhs := addOp(t, g, "kx", "k * x", k, x)
	dx := addOp(t, g, "dx", "-c", c)
	require.NoError(t, g.RecordEquation(c, rhs, false))
	require.NoError(t, g.RecordEquation(x, dx, true))

	out, err := g.EvaluateAll()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, -6.0, out[0].Item())
	assert.True(t, g.Has(rhs), "evaluation does not fold")
}

func TestFoldConstantSubgraph(t *testing.T) {
	t.Run("matches direct evaluation", func(t *testing.T) {
		g := New(nil)
		a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
		b := addVar(t, g, "b", tensor.Scalar(3), node.Constant)
		s := addOp(t, g, "s", "a + b", a, b)
		p := addOp(t, g, "p", "s * s - a", s, s, a)

		want, err := g.Evaluate(p)
		require.NoError(t, err)

		got, err := g.FoldConstantSubgraph(p)
		require.NoError(t, err)
		assert.True(t, tensor.Equal(want, got, 1e-12))
		assert.Equal(t, 23.0, got.Item())

		assert.Equal(t, []string{p}, g.Nodes())
		assert.Zero(t, g.InDegree(p))
		v, ok := g.Var(p)
		require.True(t, ok)
		assert.Equal(t, node.Constant, v.Kind)
	})

	t.Run("shared predecessor survives", func(t *testing.T) {
		g := New(nil)
		a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
		b := addVar(t, g, "b", tensor.Scalar(3), node.Constant)
		x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
		s := addOp(t, g, "s", "a + b", a, b)
		ax := addOp(t, g, "ax", "a * x", a, x)

		_, err := g.FoldConstantSubgraph(s)
		require.NoError(t, err)
		assert.True(t, g.Has(a))
		assert.False(t, g.Has(b))
		assert.Equal(t, 1, g.OutDegree(a))

		v, err := g.Evaluate(ax)
		require.NoError(t, err)
		assert.Equal(t, 2.0, v.Item())
	})

	t.Run("intermediate with outside consumer survives with its inputs", func(t *testing.T) {
		g := New(nil)
		a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
		x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
		h := addOp(t, g, "h", "a * 3", a)
		top := addOp(t, g, "top", "h + 1", h)
		consumer := addOp(t, g, "consumer", "h * x", h, x)

		v, err := g.FoldConstantSubgraph(top)
		require.NoError(t, err)
		assert.Equal(t, 7.0, v.Item())
		assert.True(t, g.Has(h))
		assert.True(t, g.Has(a))

		v, err = g.Evaluate(consumer)
		require.NoError(t, err)
		assert.Equal(t, 6.0, v.Item())
	})

	t.Run("protected predecessor survives", func(t *testing.T) {
		g := New(nil)
		a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
		c := addVar(t, g, "c", tensor.Scalar(0), node.Variable)
		s := addOp(t, g, "s", "a * a", a, a)
		require.NoError(t, g.RecordEquation(c, a, false))

		_, err := g.FoldConstantSubgraph(s)
		require.NoError(t, err)
		assert.True(t, g.Has(a))
		assert.Zero(t, g.OutDegree(a))
	})

	t.Run("non-constant leaf", func(t *testing.T) {
		g := New(nil)
		x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
		a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
		s := addOp(t, g, "s", "a * x", a, x)

		_, err := g.FoldConstantSubgraph(s)
		assert.ErrorIs(t, err, ErrFoldPrecondition)
		assert.Equal(t, []string{x, a, s}, g.Nodes(), "a failed fold leaves the graph untouched")
		assert.Equal(t, 2, g.InDegree(s))
	})
}

func TestPruneScenario(t *testing.T) {
	g := New(nil)
	a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
	b := addVar(t, g, "b", tensor.Scalar(3), node.Constant)
	c := addVar(t, g, "c", tensor.Array{}, node.Variable)
	sum := addOp(t, g, "sum", "a + b", a, b)
	require.NoError(t, g.RecordEquation(c, sum, false))

	require.NoError(t, g.Prune(context.Background()))

	v, err := g.Evaluate(c)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Item())
	assert.ElementsMatch(t, []string{c, sum}, g.Nodes())

	cv, ok := g.Var(c)
	require.True(t, ok)
	assert.Equal(t, node.Variable, cv.Kind)
}

type nodeState struct {
	Preds []string
	Value []float64
}

func snapshot(t *testing.T, g *Graph) map[string]nodeState {
	t.Helper()
	out := make(map[string]nodeState)
	for _, name := range g.Nodes() {
		preds, err := g.Predecessors(name)
		require.NoError(t, err)
		n, _ := g.Node(name)
		out[name] = nodeState{Preds: preds, Value: n.Value().Data()}
	}
	return out
}

func buildRateModel(t *testing.T) *Graph {
	t.Helper()
	g := New(nil)
	x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
	u := addVar(t, g, "u", tensor.Scalar(0), node.Input)
	tau := addVar(t, g, "tau", tensor.Scalar(0.5), node.Constant)
	two := addVar(t, g, "two", tensor.Scalar(2), node.Constant)
	k := addOp(t, g, "k", "tau * two", tau, two)
	d := addOp(t, g, "d", "u - x", u, x)
	r := addOp(t, g, "r", "d / k", d, k)
	addVar(t, g, "unused", tensor.Scalar(7), node.Constant)
	addVar(t, g, "lonely", tensor.Scalar(0), node.Variable)
	p := addVar(t, g, "p", tensor.Scalar(0), node.Variable)
	q := addVar(t, g, "q", tensor.Scalar(4), node.Constant)
	require.NoError(t, g.RecordEquation(x, r, true))
	require.NoError(t, g.RecordEquation(p, q, false))
	return g
}

func TestPrune(t *testing.T) {
	g := buildRateModel(t)
	ctx := context.Background()

	require.NoError(t, g.Prune(ctx))
	assert.Equal(t, []string{"x", "u", "k", "d", "r", "p", "q"}, g.Nodes())

	k, ok := g.Var("k")
	require.True(t, ok)
	assert.Equal(t, node.Constant, k.Kind)
	assert.Equal(t, 1.0, k.Value().Item())

	p, ok := g.Var("p")
	require.True(t, ok)
	assert.Equal(t, 4.0, p.Value().Item())

	t.Run("idempotent", func(t *testing.T) {
		before := snapshot(t, g)
		require.NoError(t, g.Prune(ctx))
		assert.Equal(t, before, snapshot(t, g))
	})

	t.Run("protected nodes survive", func(t *testing.T) {
		for _, eq := range append(g.Equations(true), g.Equations(false)...) {
			assert.True(t, g.Has(eq.Var), eq.Var)
			assert.True(t, g.Has(eq.Update), eq.Update)
		}
	})
}

func TestPruneFoldsProtectedIntermediates(t *testing.T) {
	g := New(nil)
	ctx := context.Background()
	a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
	b := addVar(t, g, "b", tensor.Scalar(3), node.Constant)
	q := addVar(t, g, "q", tensor.Scalar(0), node.Variable)
	x := addVar(t, g, "x", tensor.Scalar(0), node.Variable)
	p := addOp(t, g, "p", "a + b", a, b)
	r := addOp(t, g, "r", "p * 2", p)
	require.NoError(t, g.RecordEquation(q, p, false))
	require.NoError(t, g.RecordEquation(x, r, false))

	require.NoError(t, g.Prune(ctx))
	assert.Equal(t, []string{q, x, p, r}, g.Nodes())
	for _, name := range []string{p, r} {
		v, ok := g.Var(name)
		require.True(t, ok, "%s is folded", name)
		assert.Equal(t, node.Constant, v.Kind)
		assert.Zero(t, g.InDegree(name))
	}

	vals, err := g.EvaluateNodes(q, x)
	require.NoError(t, err)
	assert.Equal(t, 5.0, vals[q].Item())
	assert.Equal(t, 10.0, vals[x].Item())

	t.Run("idempotent", func(t *testing.T) {
		before := snapshot(t, g)
		require.NoError(t, g.Prune(ctx))
		assert.Equal(t, before, snapshot(t, g))
	})
}

func TestPruneCanceled(t *testing.T) {
	g := buildRateModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Prune(ctx), context.Canceled)
}

func TestRemoveSubgraph(t *testing.T) {
	g := New(nil)
	a := addVar(t, g, "a", tensor.Scalar(2), node.Constant)
	x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
	s := addOp(t, g, "s", "a * x", a, x)
	top := addOp(t, g, "top", "s + a", s, a)
	keep := addOp(t, g, "keep", "x * 2", x)
	require.NoError(t, g.RecordEquation(x, keep, true))

	_, err := g.RemoveSubgraph(s)
	assert.ErrorContains(t, err, "still consumed")

	_, err = g.RemoveSubgraph(keep)
	assert.ErrorContains(t, err, "referenced by an equation")

	removed, err := g.RemoveSubgraph(top)
	require.NoError(t, err)
	assert.Equal(t, []string{top, s, a}, removed)
	assert.Equal(t, []string{x, keep}, g.Nodes())
}

func TestTranslate(t *testing.T) {
	g := New(nil)
	x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
	u := addVar(t, g, "u", tensor.Scalar(0), node.Input)
	tau := addVar(t, g, "tau", tensor.Scalar(0.5), node.Constant)
	d := addOp(t, g, "d", "u - x", u, x)
	r := addOp(t, g, "r", "d / tau", d, tau)
	act := addOp(t, g, "act", "logistic(r) * r", r, r)

	tr, err := g.Translate(r, nil)
	require.NoError(t, err)
	assert.Equal(t, "(u - x) / tau", tr.Expr.String())
	assert.Equal(t, []string{u, tau}, tr.Args)
	assert.Equal(t, []string{u, x, tau}, tr.Leaves)

	tr, err = g.Translate(act, g.Backend().Renames())
	require.NoError(t, err)
	assert.Equal(t, "sigmoid((u - x) / tau) * ((u - x) / tau)", tr.Expr.String())

	tr, err = g.Translate(x, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", tr.Expr.String())
	assert.Empty(t, tr.Args)

	_, err = g.Translate("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestCycleDetection(t *testing.T) {
	g := New(nil)
	x := addVar(t, g, "x", tensor.Scalar(1), node.StateVar)
	p := addOp(t, g, "p", "x * 2", x)
	q := addOp(t, g, "q", "p + x", p, x)

	// Rewire p to read q, which the public API cannot express.
	hp, hq := g.byName[p], g.byName[q]
	g.cutInputs(hp)
	g.slots[hp].in = []int{hq}
	g.slots[hq].out = append(g.slots[hq].out, use{to: hp, key: 0})
	g.slots[hp].node.(*node.Op).Expr = expr.MustParse("q * 2")

	_, err := g.Translate(q, nil)
	assert.ErrorIs(t, err, ErrCyclicGraph)

	_, err = g.Evaluate(q)
	assert.ErrorIs(t, err, ErrCyclicGraph)
}
