package itemlink

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// point is a position that remembers its index in the caller's slice.
type point struct {
	r3.Vec
	index int
}

var (
	_ kdtree.Comparable = point{}
	_ kdtree.Interface  = points(nil)
)

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	}
	return p.Z - q.Z
}

func (p point) Dims() int { return 3 }

// Distance returns the squared distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Vec, c.(point).Vec))
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{Dim: d, points: p}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], p.Dim) < 0
}
func (p plane) Pivot() int                             { return kdtree.Partition(p, kdtree.MedianOfRandoms(p, 100)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer { p.points = p.points[start:end]; return p }
func (p plane) Swap(i, j int)                          { p.points[i], p.points[j] = p.points[j], p.points[i] }

// neighbor is a search result. dist is squared.
type neighbor struct {
	index int
	dist  float64
}

// spatialIndex answers nearest neighbour queries over a fixed point set. Results
// with equal distances are ordered by index so callers stay deterministic.
type spatialIndex struct {
	tree *kdtree.Tree
	n    int
}

func newSpatialIndex(pts []r3.Vec) *spatialIndex {
	ps := make(points, len(pts))
	for i, p := range pts {
		ps[i] = point{Vec: p, index: i}
	}
	return &spatialIndex{tree: kdtree.New(ps, false), n: len(pts)}
}

// nearest returns the closest point to q. ok is false for an empty index.
func (x *spatialIndex) nearest(q r3.Vec) (neighbor, bool) {
	if x.n == 0 {
		return neighbor{}, false
	}
	_, d := x.tree.Nearest(point{Vec: q, index: -1})
	// Collect every point at that distance and pick the lowest index.
	ties := x.within(q, d)
	if len(ties) == 0 {
		return neighbor{}, false
	}
	return ties[0], true
}

// nearestN returns up to n closest points, closest first.
func (x *spatialIndex) nearestN(q r3.Vec, n int) []neighbor {
	if x.n == 0 || n <= 0 {
		return nil
	}
	if n > x.n {
		n = x.n
	}
	k := kdtree.NewNKeeper(n)
	x.tree.NearestSet(k, point{Vec: q, index: -1})
	return collect(k.Heap)
}

// within returns every point whose squared distance to q is at most dist2.
func (x *spatialIndex) within(q r3.Vec, dist2 float64) []neighbor {
	if x.n == 0 {
		return nil
	}
	k := kdtree.NewDistKeeper(dist2)
	x.tree.NearestSet(k, point{Vec: q, index: -1})
	return collect(k.Heap)
}

func collect(h kdtree.Heap) []neighbor {
	out := make([]neighbor, 0, len(h))
	for _, c := range h {
		if c.Comparable == nil {
			continue
		}
		out = append(out, neighbor{index: c.Comparable.(point).index, dist: c.Dist})
	}
	slices.SortFunc(out, func(a, b neighbor) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	return out
}
