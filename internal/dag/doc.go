// Package dag is a small dependency graph over string IDs. It answers two
// questions for the code generator: is there a cycle, and in which order can
// the nodes be visited so that every node follows its dependencies.
//
// Orders are deterministic: among the nodes that are ready at any point, the
// one added to the graph first is taken first.
package dag
