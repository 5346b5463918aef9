// Package dag provides the directed graph underlying the dependency graph.
//
// # Overview
//
// Nodes are resources and an edge From → To means "From depends on To".
// The graph keeps insertion order for nodes and edges, and every query that
// lists nodes honors it. Given the same sequence of insertions, every
// traversal, cycle report and topological order is identical across runs.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "reviewer"})
//	g.AddNode(dag.Node{ID: "style-guide"})
//	g.AddEdge(dag.Edge{From: "reviewer", To: "style-guide"})
//
//	order, err := g.TopoSort() // [style-guide reviewer]
//
// # Cycles
//
// Cycles are not rejected on insertion. [DAG.FindCycle] runs a white/gray/
// black depth-first search and returns the full cycle path (first node
// repeated at the end), which the dependency graph turns into a
// DependencyCycle error. [DAG.Validate] reports only whether one exists.
//
// # Metadata
//
// Both nodes and the graph itself support arbitrary metadata via [Metadata]
// maps. Metadata maps are never nil after creation.
//
// # Concurrency
//
// DAG instances are not safe for concurrent use.
//
// The [transform] subpackage provides transitive reduction for export.
//
// [transform]: github.com/matzehuels/gitpkg/pkg/dag/transform
package dag
