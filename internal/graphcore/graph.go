// Package graphcore implements the pure-function graph algorithms behind
// hybrid recall and graph exploration (spec.md §4.12): Personalized
// PageRank with hub dampening, Louvain-style community detection, and
// bounded breadth-first traversal. All three operate over the same small
// weighted-directed-graph representation and have no I/O of their own —
// callers (internal/retrieval, the datastore-backed graph operations) are
// responsible for assembling Graph from store data.
package graphcore

// Graph is a weighted directed graph keyed by opaque node IDs (record IDs
// in practice, e.g. "entity:<key>").
type Graph struct {
	// Out maps a node to its outgoing edges (target -> weight).
	Out map[string]map[string]float64
	// In maps a node to its incoming edges (source -> weight), kept in
	// sync with Out by AddEdge so traversal can go either direction
	// without rescanning the whole edge set.
	In map[string]map[string]float64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Out: make(map[string]map[string]float64),
		In:  make(map[string]map[string]float64),
	}
}

// AddNode ensures v is present even if it has no edges yet.
func (g *Graph) AddNode(v string) {
	if _, ok := g.Out[v]; !ok {
		g.Out[v] = make(map[string]float64)
	}
	if _, ok := g.In[v]; !ok {
		g.In[v] = make(map[string]float64)
	}
}

// AddEdge adds a directed edge from -> to with the given weight, creating
// both endpoints if necessary. Repeated calls for the same pair overwrite
// the weight rather than accumulating it.
func (g *Graph) AddEdge(from, to string, weight float64) {
	g.AddNode(from)
	g.AddNode(to)
	g.Out[from][to] = weight
	g.In[to][from] = weight
}

// Nodes returns all node IDs in unspecified order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.Out))
	for v := range g.Out {
		out = append(out, v)
	}
	return out
}

// Degree returns the total (in+out) degree of v, used by hub dampening.
func (g *Graph) Degree(v string) int {
	return len(g.Out[v]) + len(g.In[v])
}

// OutWeightSum returns the sum of v's outgoing edge weights.
func (g *Graph) OutWeightSum(v string) float64 {
	var sum float64
	for _, w := range g.Out[v] {
		sum += w
	}
	return sum
}
