package graph

import "errors"

var (
	// ErrUnknownNode is returned when a name does not refer to a live node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownInput is returned when an operation refers to an input that
	// is not in the graph.
	ErrUnknownInput = errors.New("unknown input")
	// ErrNoInputs is returned for an operation without inputs.
	ErrNoInputs = errors.New("operation has no inputs")
	// ErrFoldPrecondition is returned when folding reaches a non-constant
	// leaf.
	ErrFoldPrecondition = errors.New("subgraph is not constant")
	// ErrCyclicGraph is returned when evaluation or translation revisits a
	// node on its own dependency path.
	ErrCyclicGraph = errors.New("cyclic dependency")
	// ErrConstantTarget is returned when an equation would assign a constant.
	ErrConstantTarget = errors.New("equation assigns a constant")
)
