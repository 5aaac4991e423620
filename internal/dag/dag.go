package dag

import (
	"container/heap"
	"fmt"
	"slices"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	n := &node{
		id:         id,
		index:      len(g.order),
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.nodes[id] = n
	g.order = append(g.order, n)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist. A self-referential edge is reported as a
// cycle of length one.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return &CycleError{Path: []string{fromID, fromID}}
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.order)
}

// Dependencies returns the IDs the given node depends on, in insertion order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(n.deps), nil
}

// Dependents returns the IDs that depend on the given node, in insertion
// order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(n.dependents), nil
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// naming one cycle if there is one.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if path := g.findCycle(); path != nil {
		return &CycleError{Path: path}
	}
	return nil
}

// TopologicalOrder returns every node ID after all of its dependencies. Ties
// are broken by insertion order, so the result is stable for a given
// sequence of AddNode and AddEdge calls.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indeg := make([]int, len(g.order))
	ready := &indexHeap{}
	for i, n := range g.order {
		indeg[i] = len(n.deps)
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]string, 0, len(g.order))
	for ready.Len() > 0 {
		n := g.order[heap.Pop(ready).(int)]
		out = append(out, n.id)
		for _, d := range n.dependents {
			indeg[d.index]--
			if indeg[d.index] == 0 {
				heap.Push(ready, d.index)
			}
		}
	}
	if len(out) < len(g.order) {
		return nil, &CycleError{Path: g.findCycle()}
	}
	return out, nil
}

// findCycle runs a depth-first search in insertion order and returns the
// first cycle it closes, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.order))
	var stack []*node

	var visit func(n *node) []string
	visit = func(n *node) []string {
		color[n.index] = gray
		stack = append(stack, n)
		for _, id := range ids(n.dependents) {
			d := g.nodes[id]
			switch color[d.index] {
			case gray:
				start := slices.Index(stack, d)
				path := make([]string, 0, len(stack)-start+1)
				for _, s := range stack[start:] {
					path = append(path, s.id)
				}
				return append(path, d.id)
			case white:
				if path := visit(d); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n.index] = black
		return nil
	}

	for _, n := range g.order {
		if color[n.index] == white {
			if path := visit(n); path != nil {
				return path
			}
		}
	}
	return nil
}

// ids lists the keys of a neighbour set in insertion order.
func ids(set map[string]*node) []string {
	ns := make([]*node, 0, len(set))
	for _, n := range set {
		ns = append(ns, n)
	}
	slices.SortFunc(ns, func(a, b *node) int { return a.index - b.index })
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.id
	}
	return out
}

// indexHeap is a min-heap of insertion indices.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
