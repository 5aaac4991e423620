package graph

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/specialistvlad/circuitgo/internal/backend"
	"github.com/specialistvlad/circuitgo/internal/expr"
	"github.com/specialistvlad/circuitgo/internal/node"
	"github.com/specialistvlad/circuitgo/internal/tensor"
)

// use is one outgoing edge: the consumer handle and the key under which the
// consumer reads the value.
type use struct {
	to  int
	key int
}

type slot struct {
	node  node.Node
	in    []int
	out   []use
	alive bool
}

// Graph is a directed multigraph of variables and operations.
//
// Graph is not safe for concurrent use.
type Graph struct {
	backend backend.Backend
	slots   []*slot
	byName  map[string]int
	reg     registry
}

// New creates an empty graph bound to b. A nil backend selects the native
// one.
func New(b backend.Backend) *Graph {
	if b == nil {
		b = backend.NewNative()
	}
	return &Graph{
		backend: b,
		byName:  make(map[string]int),
		reg:     newRegistry(),
	}
}

// Backend returns the backend the graph was created with.
func (g *Graph) Backend() backend.Backend { return g.backend }

// AddVariable inserts a leaf node and returns its unique name.
func (g *Graph) AddVariable(label string, value tensor.Array, kind node.Kind, opts ...node.Option) (string, *node.Var, error) {
	name := g.uniqueName(label)
	v, err := node.NewVar(name, value, kind, opts...)
	if err != nil {
		return "", nil, err
	}
	g.insert(v, nil)
	return name, v, nil
}

// AddOperation inserts an operation over the named inputs. Edge keys follow
// the order of inputs. When fn is nil the operation is evaluated by
// interpreting e with the graph's backend; e must then refer to its inputs by
// their names.
//
// The operation's value is computed from the inputs' current values, so
// incompatible shapes are reported here rather than at compile time.
func (g *Graph) AddOperation(inputs []string, label string, e expr.Expr, fn node.Func, opts ...node.Option) (string, *node.Op, error) {
	if len(inputs) == 0 {
		return "", nil, fmt.Errorf("operation %s: %w", label, ErrNoInputs)
	}
	if e == nil {
		return "", nil, fmt.Errorf("operation %s: missing expression", label)
	}
	handles := make([]int, len(inputs))
	args := make([]tensor.Array, len(inputs))
	for i, in := range inputs {
		h, ok := g.byName[in]
		if !ok {
			return "", nil, fmt.Errorf("operation %s: %w %q", label, ErrUnknownInput, in)
		}
		handles[i] = h
		args[i] = g.slots[h].node.Value()
	}
	if fn == nil {
		var err error
		if fn, err = g.interpret(inputs, e); err != nil {
			return "", nil, fmt.Errorf("operation %s: %w", label, err)
		}
	}
	value, err := fn(args...)
	if err != nil {
		return "", nil, fmt.Errorf("operation %s: %w", label, err)
	}

	name := g.uniqueName(label)
	op, err := node.NewOp(name, e, fn, value, opts...)
	if err != nil {
		return "", nil, err
	}
	g.insert(op, handles)
	return name, op, nil
}

// interpret builds a node.Func evaluating e over positional inputs.
func (g *Graph) interpret(inputs []string, e expr.Expr) (node.Func, error) {
	for _, s := range expr.Symbols(e) {
		if !slices.Contains(inputs, s) {
			return nil, fmt.Errorf("%w %q in %s", ErrUnknownInput, s, e)
		}
	}
	canonical := expr.Rename(e, g.backend.Renames())
	b := g.backend
	return func(args ...tensor.Array) (tensor.Array, error) {
		env := make(map[string]tensor.Array, len(inputs))
		for i, name := range inputs {
			env[name] = args[i]
		}
		return expr.Eval(canonical, env, b)
	}, nil
}

func (g *Graph) insert(n node.Node, inputs []int) int {
	h := len(g.slots)
	g.slots = append(g.slots, &slot{node: n, in: inputs, alive: true})
	g.byName[n.Name()] = h
	for key, src := range inputs {
		g.slots[src].out = append(g.slots[src].out, use{to: h, key: key})
	}
	return h
}

// uniqueName returns label, or a deterministic variant of it not yet taken:
// a numeric suffix is incremented, otherwise "_0" is appended.
func (g *Graph) uniqueName(label string) string {
	for {
		if _, taken := g.byName[label]; !taken {
			return label
		}
		if i := strings.LastIndexByte(label, '_'); i >= 0 {
			if n, err := strconv.Atoi(label[i+1:]); err == nil {
				label = label[:i+1] + strconv.Itoa(n+1)
				continue
			}
		}
		label += "_0"
	}
}

// remove tombstones h, which must no longer have consumers.
func (g *Graph) remove(h int) {
	s := g.slots[h]
	if len(s.out) > 0 {
		panic(fmt.Sprintf("graph: removing %s while it is still consumed", s.node.Name()))
	}
	g.cutInputs(h)
	delete(g.byName, s.node.Name())
	s.alive = false
}

// cutInputs drops every incoming edge of h.
func (g *Graph) cutInputs(h int) {
	for _, src := range g.slots[h].in {
		g.slots[src].out = slices.DeleteFunc(g.slots[src].out, func(u use) bool { return u.to == h })
	}
	g.slots[h].in = nil
}

func (g *Graph) handle(name string) (int, error) {
	h, ok := g.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownNode, name)
	}
	return h, nil
}

// Node returns the live node called name.
func (g *Graph) Node(name string) (node.Node, bool) {
	h, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.slots[h].node, true
}

// Var returns the live variable called name.
func (g *Graph) Var(name string) (*node.Var, bool) {
	n, ok := g.Node(name)
	if !ok {
		return nil, false
	}
	v, ok := n.(*node.Var)
	return v, ok
}

// Has reports whether name refers to a live node.
func (g *Graph) Has(name string) bool {
	_, ok := g.byName[name]
	return ok
}

// Nodes lists live node names in insertion order.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.byName))
	for _, s := range g.slots {
		if s.alive {
			names = append(names, s.node.Name())
		}
	}
	return names
}

// Len is the number of live nodes.
func (g *Graph) Len() int { return len(g.byName) }

// Predecessors lists the inputs of name in edge key order. An input read
// under several keys appears once per key.
func (g *Graph) Predecessors(name string) ([]string, error) {
	h, err := g.handle(name)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(g.slots[h].in))
	for i, src := range g.slots[h].in {
		names[i] = g.slots[src].node.Name()
	}
	return names, nil
}

// Successors lists the distinct consumers of name in the order they were
// added.
func (g *Graph) Successors(name string) ([]string, error) {
	h, err := g.handle(name)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, u := range g.slots[h].out {
		n := g.slots[u.to].node.Name()
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names, nil
}

// InDegree counts incoming edges of name.
func (g *Graph) InDegree(name string) int {
	h, ok := g.byName[name]
	if !ok {
		return 0
	}
	return len(g.slots[h].in)
}

// OutDegree counts outgoing edges of name.
func (g *Graph) OutDegree(name string) int {
	h, ok := g.byName[name]
	if !ok {
		return 0
	}
	return len(g.slots[h].out)
}
