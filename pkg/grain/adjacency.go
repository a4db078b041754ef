package grain

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
)

// Adjacency maps every grain of a slice to the set of grains it touches.
// Grains without neighbours map to an empty set.
type Adjacency map[ID]map[ID]struct{}

// Builder derives the adjacency relation of a labelled slice.
type Builder interface {
	Build(ctx context.Context, grid Grid) (Adjacency, error)
}

// newAdjacency creates an entry for each of ids.
func newAdjacency(ids []ID) Adjacency {
	adj := make(Adjacency, len(ids))
	for _, id := range ids {
		adj[id] = make(map[ID]struct{})
	}
	return adj
}

// link records g and h as mutual neighbours.
func (a Adjacency) link(g, h ID) {
	a[g][h] = struct{}{}
	a[h][g] = struct{}{}
}

// Grains returns every grain in ascending order.
func (a Adjacency) Grains() []ID {
	ids := make([]ID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Neighbors returns the neighbours of id in ascending order.
func (a Adjacency) Neighbors(id ID) []ID {
	set := a[id]
	out := make([]ID, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Counts returns the neighbour count of every grain, in ascending grain order.
func (a Adjacency) Counts() []int {
	ids := a.Grains()
	counts := make([]int, len(ids))
	for i, id := range ids {
		counts[i] = len(a[id])
	}
	return counts
}

// Symmetric reports whether h is a neighbour of g exactly when g is a
// neighbour of h.
func (a Adjacency) Symmetric() bool {
	for g, set := range a {
		for h := range set {
			if _, ok := a[h][g]; !ok {
				return false
			}
		}
	}
	return true
}

// Symmetrize adds every missing reverse link.
func (a Adjacency) Symmetrize() {
	for g, set := range a {
		for h := range set {
			if a[h] == nil {
				a[h] = make(map[ID]struct{})
			}
			a[h][g] = struct{}{}
		}
	}
}

// Graph returns the relation as an undirected region adjacency graph whose
// node IDs are the grain IDs.
func (a Adjacency) Graph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for id := range a {
		if g.Node(int64(id)) == nil {
			g.AddNode(simple.Node(int64(id)))
		}
	}
	for id, set := range a {
		for n := range set {
			if id == n {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(int64(id)), simple.Node(int64(n))))
		}
	}
	return g
}
