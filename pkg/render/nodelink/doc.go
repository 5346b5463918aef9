// Package nodelink renders resolved dependency graphs as node-link diagrams.
//
// # Overview
//
// Nodes appear as boxes connected by arrows pointing from a resource to the
// resources it depends on. Manifest entries are drawn solid; resources
// pulled in transitively are dashed and grey.
//
// # Usage
//
// Export the resolved graph, optionally reduce it, and render:
//
//	d := result.Graph.DAG()
//	transform.TransitiveReduction(d)
//	dot := nodelink.ToDOT(d, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # DOT Format
//
// The [ToDOT] function produces Graphviz DOT source that can be rendered
// with [RenderSVG] or saved and processed with external Graphviz tools. The
// layout runs top to bottom (rankdir=TB), so dependents sit above their
// dependencies.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering; no Graphviz installation is needed.
package nodelink
