package itemlink

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/rng"
)

// LinkSelf links items to each other along their Delaunay tessellation. When
// combine is non-nil every triangle is inspected: the long edge of a wide
// triangle is dropped, and a skinny triangle either merges its two close
// corners into one set or loses one of its long edges.
//
// The result never holds more pairs than the tessellation has edges.
func LinkSelf(items []Item, combine *CombineArgs, rnd rng.Source) []LinkSetPair {
	if len(items) < 2 {
		return nil
	}

	tess := geom.Delaunay(positions(items))
	g := newSelfGraph(items, tess.Edges)

	if combine != nil {
		for _, tri := range tess.Triangles {
			g.pruneTriangle(tri, *combine, rnd)
		}
	}

	return g.pairs()
}

// selfGraph tracks link sets and the links between them while triangles are
// pruned. Links are keyed by set ids and keep the item edges they came from.
type selfGraph struct {
	items   []Item
	owner   []int
	members map[int][]int
	links   map[geom.Edge][]geom.Edge
}

func newSelfGraph(items []Item, edges []geom.Edge) *selfGraph {
	g := &selfGraph{
		items:   items,
		owner:   make([]int, len(items)),
		members: make(map[int][]int, len(items)),
		links:   make(map[geom.Edge][]geom.Edge, len(edges)),
	}
	for i := range items {
		g.owner[i] = i
		g.members[i] = []int{i}
	}
	for _, e := range edges {
		g.links[e] = []geom.Edge{e}
	}
	return g
}

func (g *selfGraph) center(set int) r3.Vec {
	m := g.members[set]
	pts := make([]r3.Vec, len(m))
	for i, idx := range m {
		pts[i] = g.items[idx].Position
	}
	return geom.Centroid(pts)
}

type sideLength struct {
	edge   geom.Edge
	length float64
}

func (g *selfGraph) pruneTriangle(tri [3]int, args CombineArgs, rnd rng.Source) {
	a, b, c := g.owner[tri[0]], g.owner[tri[1]], g.owner[tri[2]]
	if a == b || b == c || a == c {
		// Two corners were merged already.
		return
	}

	ca, cb, cc := g.center(a), g.center(b), g.center(c)
	sides := []sideLength{
		{geom.NewEdge(tri[0], tri[1]), r3.Norm(r3.Sub(ca, cb))},
		{geom.NewEdge(tri[1], tri[2]), r3.Norm(r3.Sub(cb, cc))},
		{geom.NewEdge(tri[0], tri[2]), r3.Norm(r3.Sub(ca, cc))},
	}
	slices.SortStableFunc(sides, func(x, y sideLength) int {
		switch {
		case x.length < y.length:
			return -1
		case x.length > y.length:
			return 1
		}
		return 0
	})
	short, mid, long := sides[0], sides[1], sides[2]

	if geom.IsNearZero(long.length) || geom.IsNearZero(short.length+mid.length) {
		return
	}

	// A near-collapsed short side also reads as wide; it is treated as skinny
	// so the nearly coincident sets can merge.
	skinny := !geom.IsNearZero(mid.length) &&
		short.length/mid.length < args.RatioSkinny && short.length/long.length < args.RatioSkinny

	if !skinny && long.length/(short.length+mid.length) > args.RatioWide {
		g.removeEdge(long.edge)
		return
	}

	if skinny {
		if rng.Chance(rnd, args.MergeChance) {
			g.merge(g.owner[short.edge.A], g.owner[short.edge.B])
			return
		}
		if rnd.Float64() < 0.5 {
			g.removeEdge(mid.edge)
		} else {
			g.removeEdge(long.edge)
		}
	}
}

// removeEdge drops one item edge. A link backed by several item edges only
// shrinks; an edge already pruned by a neighbouring triangle is ignored.
func (g *selfGraph) removeEdge(e geom.Edge) {
	key := geom.NewEdge(g.owner[e.A], g.owner[e.B])
	under, ok := g.links[key]
	if !ok {
		return
	}
	i := slices.Index(under, e)
	if i < 0 {
		return
	}
	if len(under) > 1 {
		g.links[key] = slices.Delete(under, i, i+1)
		return
	}
	delete(g.links, key)
}

// merge folds set from into set into. Links that become internal disappear;
// links that now duplicate an existing one are combined.
func (g *selfGraph) merge(into, from int) {
	if into == from {
		return
	}
	if from < into {
		into, from = from, into
	}

	for _, idx := range g.members[from] {
		g.owner[idx] = into
	}
	g.members[into] = append(g.members[into], g.members[from]...)
	delete(g.members, from)

	var touched []geom.Edge
	for key := range g.links {
		if key.Contains(from) {
			touched = append(touched, key)
		}
	}
	geom.SortEdges(touched)

	for _, key := range touched {
		under := g.links[key]
		delete(g.links, key)

		other := key.Other(from)
		if other == into {
			continue
		}
		newKey := geom.NewEdge(into, other)
		combined := append(g.links[newKey], under...)
		geom.SortEdges(combined)
		g.links[newKey] = slices.Compact(combined)
	}
}

func (g *selfGraph) pairs() []LinkSetPair {
	keys := make([]geom.Edge, 0, len(g.links))
	for key := range g.links {
		keys = append(keys, key)
	}
	geom.SortEdges(keys)

	out := make([]LinkSetPair, 0, len(keys))
	for _, key := range keys {
		under := slices.Clone(g.links[key])
		geom.SortEdges(under)
		out = append(out, LinkSetPair{
			Set1:  newLinkSet(g.items, g.members[key.A]),
			Set2:  newLinkSet(g.items, g.members[key.B]),
			Edges: under,
		})
	}
	return out
}
