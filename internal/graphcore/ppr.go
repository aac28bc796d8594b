package graphcore

import "math"

// PPRDamping is the damping factor d (spec.md §4.12); note this is *not*
// the conventional PageRank "d" symbol — spec.md reuses x <- damp*M^T*x +
// ... with damp=0.5.
const PPRDamping = 0.5

// PPRTolerance is the L1 convergence threshold.
const PPRTolerance = 1e-6

// PPRMaxIterations bounds the power iteration.
const PPRMaxIterations = 15

// PersonalizedPageRank computes PPR scores seeded at seeds (spec.md §4.12).
// Personalization p[v] = 1/|seeds| for v in seeds, else 0; if seeds is
// empty, p is uniform 1/|V| over all nodes. The transition matrix M
// row-normalizes each node's out-edges by out-degree (count), not by edge
// weight — edge weights are used elsewhere (e.g. fusion scoring) but do not
// bias the random walk itself. Dangling mass (nodes with no out-edges) is
// redistributed each iteration according to p.
func PersonalizedPageRank(g *Graph, seeds []string) map[string]float64 {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return map[string]float64{}
	}
	if n == 1 {
		return map[string]float64{nodes[0]: 1}
	}

	seedSet := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		if _, ok := g.Out[s]; ok {
			seedSet[s] = true
		}
	}

	p := make(map[string]float64, n)
	if len(seedSet) > 0 {
		share := 1.0 / float64(len(seedSet))
		for v := range seedSet {
			p[v] = share
		}
	} else {
		uniform := 1.0 / float64(n)
		for _, v := range nodes {
			p[v] = uniform
		}
	}

	x := make(map[string]float64, n)
	for k, v := range p {
		x[k] = v
	}

	outDeg := make(map[string]int, n)
	for _, v := range nodes {
		outDeg[v] = len(g.Out[v])
	}

	for iter := 0; iter < PPRMaxIterations; iter++ {
		next := make(map[string]float64, n)

		var dangling float64
		for _, v := range nodes {
			if outDeg[v] == 0 {
				dangling += x[v]
			}
		}

		for _, v := range nodes {
			var inMass float64
			for u := range g.In[v] {
				if d := outDeg[u]; d > 0 {
					inMass += x[u] / float64(d)
				}
			}
			next[v] = PPRDamping*inMass + PPRDamping*dangling*p[v] + (1-PPRDamping)*p[v]
		}

		if l1Diff(x, next) < PPRTolerance {
			x = next
			break
		}
		x = next
	}

	return x
}

func l1Diff(a, b map[string]float64) float64 {
	var sum float64
	for k, av := range a {
		sum += math.Abs(av - b[k])
	}
	return sum
}

// HubDampen divides each score by sqrt(max(degree,1)) in place (spec.md
// §4.12), reducing the influence of high-degree hub nodes on the final
// ranking.
func HubDampen(g *Graph, scores map[string]float64) {
	for v, s := range scores {
		deg := g.Degree(v)
		if deg < 1 {
			deg = 1
		}
		scores[v] = s / math.Sqrt(float64(deg))
	}
}
