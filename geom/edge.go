package geom

import (
	"cmp"
	"slices"
)

// Edge is an undirected edge between two indices, always stored with A <= B so
// that it can be used as a map key.
type Edge struct {
	A, B int
}

// NewEdge returns the canonical edge between i and j.
func NewEdge(i, j int) Edge {
	if i > j {
		i, j = j, i
	}
	return Edge{A: i, B: j}
}

// Contains reports whether index is one of the endpoints.
func (e Edge) Contains(index int) bool {
	return e.A == index || e.B == index
}

// Other returns the endpoint opposite index. The result is undefined when
// index is not an endpoint.
func (e Edge) Other(index int) int {
	if e.A == index {
		return e.B
	}
	return e.A
}

// CompareEdges orders edges by A then B.
func CompareEdges(x, y Edge) int {
	if c := cmp.Compare(x.A, y.A); c != 0 {
		return c
	}
	return cmp.Compare(x.B, y.B)
}

// SortEdges sorts edges in place in canonical order.
func SortEdges(edges []Edge) {
	slices.SortFunc(edges, CompareEdges)
}

// EdgeSet is a set of canonical edges.
type EdgeSet map[Edge]struct{}

// Add inserts the canonical edge between i and j. Self edges are ignored.
func (s EdgeSet) Add(i, j int) {
	if i == j {
		return
	}
	s[NewEdge(i, j)] = struct{}{}
}

// Has reports whether the edge between i and j is present.
func (s EdgeSet) Has(i, j int) bool {
	_, ok := s[NewEdge(i, j)]
	return ok
}

// Sorted returns the edges in canonical order.
func (s EdgeSet) Sorted() []Edge {
	out := make([]Edge, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	SortEdges(out)
	return out
}
