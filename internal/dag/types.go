package dag

import "sync"

// Graph holds string IDs and the "depends on" edges between them. It is safe
// for concurrent use.
type Graph struct {
	mutex sync.RWMutex
	// nodes indexes every vertex by ID.
	nodes map[string]*node
	// order lists vertices as they were added. Orders and cycle reports are
	// derived from it, never from map iteration.
	order []*node
}

type node struct {
	id string
	// index is the position in Graph.order; lower wins a tie.
	index int
	// deps are the vertices this one waits for.
	deps map[string]*node
	// dependents wait for this vertex.
	dependents map[string]*node
}
