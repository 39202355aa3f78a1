// Package itemlink generates link topologies between spatial items: a pruned
// Delaunay graph within one set (LinkSelf), a burden balanced assignment from
// one set to another (Link12), and re-projection of weighted links onto moved
// points (FuzzyLink).
//
// All functions are pure. They take their inputs by value, return fresh
// slices, and draw randomness only from the rng.Source they are given.
package itemlink

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
)

// Item is a point with a relative capacity used for burden calculations.
type Item struct {
	Position r3.Vec
	Size     float64
}

// LinkSet is one or more items acting as a single node.
type LinkSet struct {
	Items  []int
	Center r3.Vec
}

// LinkSetPair is an edge between two link sets. Edges lists the item level
// Delaunay edges the pair was built from.
type LinkSetPair struct {
	Set1, Set2 LinkSet
	Edges      []geom.Edge
}

// Link is a connection from Index1 in the first item slice to Index2 in the
// second (or the same) slice.
type Link struct {
	Index1, Index2 int
}

// WeightedLink is a link between two positions captured at some point in time.
type WeightedLink struct {
	From, To r3.Vec
	Weight   float64
}

// CombineArgs tunes the triangle heuristics of LinkSelf.
type CombineArgs struct {
	// RatioSkinny is the short edge to long edge ratio below which a triangle
	// counts as a skinny isosceles.
	RatioSkinny float64
	// RatioWide is the longest edge to sum of the other two ratio above which
	// a triangle counts as wide.
	RatioWide float64
	// MergeChance is the probability that a skinny triangle merges its close
	// pair instead of dropping a long edge.
	MergeChance float64
}

// DefaultCombineArgs returns the tuning used when callers have no preference.
func DefaultCombineArgs() CombineArgs {
	return CombineArgs{RatioSkinny: 0.3, RatioWide: 0.92, MergeChance: 0.5}
}

// OverflowArgs enables burden balancing in Link12.
type OverflowArgs struct {
	// LinkResistanceMult scales the cost of linking to anything but the
	// nearest item.
	LinkResistanceMult float64
}

// ExtraArgs asks Link12 to add links beyond one per second-set item.
type ExtraArgs struct {
	// Percent of len(items2) to add as extra links. 1.5 means every item gets
	// one more link and half of them a second one.
	Percent float64
	// BySize favours larger items when picking who gets extra links.
	BySize bool
	// EvenlyDistribute hands out whole passes before sampling the remainder;
	// otherwise every extra link is sampled independently.
	EvenlyDistribute bool
}

func positions(items []Item) []r3.Vec {
	out := make([]r3.Vec, len(items))
	for i, it := range items {
		out[i] = it.Position
	}
	return out
}

func newLinkSet(items []Item, indices []int) LinkSet {
	set := LinkSet{Items: slices.Clone(indices)}
	slices.Sort(set.Items)
	pts := make([]r3.Vec, len(set.Items))
	for i, idx := range set.Items {
		pts[i] = items[idx].Position
	}
	set.Center = geom.Centroid(pts)
	return set
}

// LinksFromSetPairs flattens set pairs into item links. Every item of Set1 is
// linked to every item of Set2; duplicates are dropped and the result is
// sorted.
func LinksFromSetPairs(pairs []LinkSetPair) []Link {
	seen := make(geom.EdgeSet)
	for _, p := range pairs {
		for _, a := range p.Set1.Items {
			for _, b := range p.Set2.Items {
				seen.Add(a, b)
			}
		}
	}
	edges := seen.Sorted()
	out := make([]Link, len(edges))
	for i, e := range edges {
		out[i] = Link{Index1: e.A, Index2: e.B}
	}
	return out
}
