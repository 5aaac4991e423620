// Package graph holds the symbolic compute graph of a model: variables and
// operations connected by keyed dependency edges, plus the registry of
// equations that tie update expressions to the variables they drive.
//
// # Storage
//
// Nodes live in an arena indexed by integer handles. Edges are stored on both
// endpoints: a node lists its inputs in edge key order, and every input
// remembers which consumers read it under which key. Removing a node
// tombstones its slot so handles held elsewhere never alias a newer node.
//
// # Folding
//
// Constant subgraphs are folded in two phases. A read-only pass evaluates the
// subgraph with a per-fold memo and decides which predecessors become
// unreachable. Only then does a mutation pass replace the root by a constant
// and drop the dead predecessors. Predecessors that are protected by the
// equation registry, or still consumed by nodes outside the folded set, are
// kept.
//
// # Translation
//
// Translate turns the subgraph feeding a node into a single expression over
// leaf symbols, which is what the code generator consumes.
package graph
