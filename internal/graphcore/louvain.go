package graphcore

// LouvainResolution is the modularity resolution parameter gamma.
const LouvainResolution = 1.0

// LouvainMaxPasses bounds the local-moving phase.
const LouvainMaxPasses = 20

// louvainGainEpsilon is the minimum positive gain required to move a node;
// this matches spec.md §4.12's 1e-10 floor, guarding against moves driven
// by floating-point noise.
const louvainGainEpsilon = 1e-10

// Communities maps each node to its community ID.
type Communities map[string]string

// DetectCommunities runs single-level Louvain-style local modularity
// optimization (spec.md §4.12): every node starts in its own community;
// repeatedly, for every node, evaluate moving it into each neighboring
// community and take the best strictly-positive gain; stop when a full
// pass makes no moves or after LouvainMaxPasses. The graph is treated as
// undirected for modularity purposes (an edge u->v and any reverse v->u
// edge are folded into one undirected weight). Isolated or all-zero-weight
// graphs fall out naturally to one community per node, since no positive
// gain is ever possible.
func DetectCommunities(g *Graph) Communities {
	nodes := g.Nodes()
	comm := make(Communities, len(nodes))
	for _, v := range nodes {
		comm[v] = v
	}
	if len(nodes) == 0 {
		return comm
	}

	weight := undirectedWeights(g)
	degree := make(map[string]float64, len(nodes))
	var m float64
	for u, neighbors := range weight {
		for v, w := range neighbors {
			degree[u] += w
			if u < v {
				m += w
			} else if u == v {
				m += w
			}
		}
	}
	if m == 0 {
		return comm
	}

	sigmaTot := make(map[string]float64, len(nodes))
	for _, v := range nodes {
		sigmaTot[comm[v]] += degree[v]
	}

	twoM := 2 * m
	for pass := 0; pass < LouvainMaxPasses; pass++ {
		moved := false

		for _, i := range nodes {
			oldComm := comm[i]
			ki := degree[i]

			sigmaTot[oldComm] -= ki
			kIIn := neighborCommunityWeights(i, oldComm, weight, comm)

			bestComm := oldComm
			bestGain := 0.0
			baseline := gainTerm(kIIn[oldComm], sigmaTot[oldComm], ki, twoM)

			for c, kIinC := range kIIn {
				candidate := gainTerm(kIinC, sigmaTot[c], ki, twoM) - baseline
				if candidate > bestGain+louvainGainEpsilon {
					bestGain = candidate
					bestComm = c
				}
			}

			sigmaTot[bestComm] += ki
			if bestComm != oldComm {
				comm[i] = bestComm
				moved = true
			}
		}

		if !moved {
			break
		}
	}

	return comm
}

func gainTerm(kIn, sigmaTot, kI, twoM float64) float64 {
	return kIn/twoM - LouvainResolution*sigmaTot*kI/(twoM*twoM)
}

// neighborCommunityWeights sums i's edge weight into each community
// currently represented among its neighbors (plus its own prior community,
// so staying put is always a valid candidate).
func neighborCommunityWeights(i, ownComm string, weight map[string]map[string]float64, comm Communities) map[string]float64 {
	out := map[string]float64{ownComm: 0}
	for v, w := range weight[i] {
		if v == i {
			continue
		}
		out[comm[v]] += w
	}
	return out
}

// undirectedWeights folds directed Out-edges into a symmetric weight map,
// treating an edge present in either direction as the same undirected link.
func undirectedWeights(g *Graph) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(g.Out))
	ensure := func(v string) {
		if _, ok := out[v]; !ok {
			out[v] = make(map[string]float64)
		}
	}
	for u := range g.Out {
		ensure(u)
	}
	for u, neighbors := range g.Out {
		for v, w := range neighbors {
			ensure(v)
			if w > out[u][v] {
				out[u][v] = w
				out[v][u] = w
			} else if _, ok := out[u][v]; !ok {
				out[u][v] = w
				out[v][u] = w
			}
		}
	}
	return out
}
