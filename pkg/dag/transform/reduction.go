// Package transform holds graph rewrites applied before export.
package transform

import "github.com/matzehuels/gitpkg/pkg/dag"

// TransitiveReduction removes every edge (u, v) for which v is also
// reachable from u through another child of u. The resulting graph has the
// same reachability with only direct dependencies left, which keeps exported
// drawings readable.
//
// Reachability is computed once up front, so removals do not affect each
// other. Metadata on surviving edges is preserved.
func TransitiveReduction(g *dag.DAG) int {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return 0
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	adjacency := make([][]int, len(nodes))
	for _, e := range g.Edges() {
		adjacency[index[e.From]] = append(adjacency[index[e.From]], index[e.To])
	}
	reach := reachability(adjacency)

	removed := 0
	for _, e := range g.Edges() {
		src, dst := index[e.From], index[e.To]
		for _, mid := range adjacency[src] {
			if mid != dst && reach[mid][dst] {
				g.RemoveEdge(e.From, e.To)
				removed++
				break
			}
		}
	}
	return removed
}

func reachability(adjacency [][]int) [][]bool {
	n := len(adjacency)
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
	}

	var dfs func(source, current int)
	dfs = func(source, current int) {
		if reach[source][current] {
			return
		}
		reach[source][current] = true
		for _, next := range adjacency[current] {
			dfs(source, next)
		}
	}
	for i := range reach {
		dfs(i, i)
	}
	return reach
}
