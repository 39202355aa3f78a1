package geom

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// flatTolerance is the singular value ratio below which a point cloud is
	// treated as having lost a dimension.
	flatTolerance = 1e-7

	// superScale places the enclosing simplex far outside the normalized cloud.
	superScale = 1e3

	// jitter breaks cospherical and cocircular ties (cube corners, grids).
	jitter = 1e-7
)

// Tessellation is the Delaunay decomposition of a point set. Indices refer to
// the input slice. Triangles and Edges are unique and sorted.
type Tessellation struct {
	Tetrahedra [][4]int
	Triangles  [][3]int
	Edges      []Edge
}

// Delaunay tessellates points. Degenerate input is handled explicitly:
// fewer than two points give nothing, two give one edge, three give one
// triangle, colinear points are chained along their line and coplanar points
// are triangulated in their plane. Exact duplicates are linked to their first
// occurrence.
func Delaunay(points []r3.Vec) Tessellation {
	var out Tessellation

	uniq, dupes := dedupe(points)
	local := make([]r3.Vec, len(uniq))
	for i, idx := range uniq {
		local[i] = points[idx]
	}

	var tris [][3]int
	var tets [][4]int
	edges := make(EdgeSet)

	switch n := len(local); {
	case n < 2:
	case n == 2:
		edges.Add(0, 1)
	case n == 3:
		tris = append(tris, [3]int{0, 1, 2})
	default:
		axes, dims := principalAxes(local)
		switch dims {
		case 0, 1:
			chainAlong(local, axes[0], edges)
		case 2:
			tris = triangulate2D(project2D(local, axes[0], axes[1]))
		default:
			tets = tetrahedralize(local)
			tris = facesOf(tets)
		}
	}

	for _, tri := range tris {
		edges.Add(tri[0], tri[1])
		edges.Add(tri[1], tri[2])
		edges.Add(tri[0], tri[2])
	}
	connectIsolated(local, edges)

	// Map back to input indices.
	for _, t := range tets {
		mapped := [4]int{uniq[t[0]], uniq[t[1]], uniq[t[2]], uniq[t[3]]}
		slices.Sort(mapped[:])
		out.Tetrahedra = append(out.Tetrahedra, mapped)
	}
	for _, t := range tris {
		mapped := [3]int{uniq[t[0]], uniq[t[1]], uniq[t[2]]}
		slices.Sort(mapped[:])
		out.Triangles = append(out.Triangles, mapped)
	}
	slices.SortFunc(out.Tetrahedra, func(a, b [4]int) int { return slices.Compare(a[:], b[:]) })
	slices.SortFunc(out.Triangles, func(a, b [3]int) int { return slices.Compare(a[:], b[:]) })

	final := make(EdgeSet, len(edges)+len(dupes))
	for e := range edges {
		final.Add(uniq[e.A], uniq[e.B])
	}
	for dup, orig := range dupes {
		final.Add(dup, orig)
	}
	out.Edges = final.Sorted()
	return out
}

// dedupe returns the indices of the first occurrence of each distinct point
// and a map from every later duplicate to its first occurrence.
func dedupe(points []r3.Vec) (uniq []int, dupes map[int]int) {
	seen := make(map[r3.Vec]int, len(points))
	dupes = make(map[int]int)
	for i, p := range points {
		if first, ok := seen[p]; ok {
			dupes[i] = first
			continue
		}
		seen[p] = i
		uniq = append(uniq, i)
	}
	return uniq, dupes
}

// principalAxes returns the right singular vectors of the centered cloud and
// the number of dimensions with meaningful spread.
func principalAxes(points []r3.Vec) ([3]r3.Vec, int) {
	c := Centroid(points)
	data := make([]float64, 0, 3*len(points))
	for _, p := range points {
		d := r3.Sub(p, c)
		data = append(data, d.X, d.Y, d.Z)
	}

	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(len(points), 3, data), mat.SVDThinV) {
		return [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}, 3
	}
	values := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	var axes [3]r3.Vec
	for i := 0; i < 3; i++ {
		axes[i] = r3.Vec{X: v.At(0, i), Y: v.At(1, i), Z: v.At(2, i)}
	}

	if IsNearZero(values[0]) {
		return axes, 0
	}
	dims := 1
	for _, s := range values[1:] {
		if s/values[0] > flatTolerance {
			dims++
		}
	}
	return axes, dims
}

// chainAlong links points in order of their projection onto axis.
func chainAlong(points []r3.Vec, axis r3.Vec, edges EdgeSet) {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		pa, pb := r3.Dot(points[a], axis), r3.Dot(points[b], axis)
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	})
	for i := 1; i < len(order); i++ {
		edges.Add(order[i-1], order[i])
	}
}

// normalize centers and scales points into roughly [-1,1] and applies a small
// deterministic jitter.
func normalize(points []r3.Vec, flat bool) []r3.Vec {
	box := Bounds(points)
	center := r3.Scale(0.5, r3.Add(box.Min, box.Max))
	ext := r3.Sub(box.Max, box.Min)
	scale := math.Max(ext.X, math.Max(ext.Y, ext.Z)) / 2
	if IsNearZero(scale) {
		scale = 1
	}

	r := rand.New(rand.NewPCG(0x5eed, uint64(len(points))))
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		q := r3.Scale(1/scale, r3.Sub(p, center))
		q.X += (r.Float64() - 0.5) * jitter
		q.Y += (r.Float64() - 0.5) * jitter
		if !flat {
			q.Z += (r.Float64() - 0.5) * jitter
		}
		out[i] = q
	}
	return out
}

func project2D(points []r3.Vec, u, v r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		out[i] = r3.Vec{X: r3.Dot(p, u), Y: r3.Dot(p, v)}
	}
	return out
}

type tetra struct {
	v      [4]int
	center r3.Vec
	r2     float64
	flat   bool
}

func newTetra(pts []r3.Vec, a, b, c, d int) tetra {
	t := tetra{v: [4]int{a, b, c, d}}
	u := r3.Sub(pts[b], pts[a])
	v := r3.Sub(pts[c], pts[a])
	w := r3.Sub(pts[d], pts[a])

	vw := r3.Cross(v, w)
	denom := 2 * r3.Dot(u, vw)
	if math.Abs(denom) < 1e-18 {
		t.flat = true
		return t
	}
	num := r3.Add(r3.Add(
		r3.Scale(r3.Norm2(u), vw),
		r3.Scale(r3.Norm2(v), r3.Cross(w, u))),
		r3.Scale(r3.Norm2(w), r3.Cross(u, v)))
	offset := r3.Scale(1/denom, num)
	t.center = r3.Add(pts[a], offset)
	t.r2 = r3.Norm2(offset)
	return t
}

// encloses reports whether p lies strictly inside the circumsphere. Flat
// tetrahedra always report true so the next insertion replaces them.
func (t tetra) encloses(p r3.Vec) bool {
	if t.flat {
		return true
	}
	return r3.Norm2(r3.Sub(p, t.center)) < t.r2*(1-1e-12)
}

// tetrahedralize runs Bowyer-Watson over points and returns tetrahedra over
// local indices.
func tetrahedralize(points []r3.Vec) [][4]int {
	n := len(points)
	pts := normalize(points, false)

	// Regular tetrahedron enclosing the normalized cloud.
	m := superScale
	pts = append(pts,
		r3.Vec{X: m, Y: m, Z: m},
		r3.Vec{X: m, Y: -m, Z: -m},
		r3.Vec{X: -m, Y: m, Z: -m},
		r3.Vec{X: -m, Y: -m, Z: m},
	)
	tets := []tetra{newTetra(pts, n, n+1, n+2, n+3)}

	for i := 0; i < n; i++ {
		p := pts[i]
		faces := make(map[[3]int]int)
		kept := tets[:0]
		var bad []tetra
		for _, t := range tets {
			if t.encloses(p) {
				bad = append(bad, t)
				continue
			}
			kept = append(kept, t)
		}
		for _, t := range bad {
			for _, f := range tetraFaces(t.v) {
				faces[f]++
			}
		}
		tets = kept
		for f, count := range faces {
			if count == 1 {
				tets = append(tets, newTetra(pts, f[0], f[1], f[2], i))
			}
		}
	}

	var out [][4]int
	for _, t := range tets {
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n || t.v[3] >= n {
			continue
		}
		if t.flat {
			continue
		}
		out = append(out, t.v)
	}
	return out
}

func tetraFaces(v [4]int) [4][3]int {
	faces := [4][3]int{
		{v[0], v[1], v[2]},
		{v[0], v[1], v[3]},
		{v[0], v[2], v[3]},
		{v[1], v[2], v[3]},
	}
	for i := range faces {
		slices.Sort(faces[i][:])
	}
	return faces
}

func facesOf(tets [][4]int) [][3]int {
	seen := make(map[[3]int]struct{})
	var out [][3]int
	for _, t := range tets {
		for _, f := range tetraFaces(t) {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

type triangle struct {
	v      [3]int
	center r3.Vec
	r2     float64
	flat   bool
}

func newTriangle(pts []r3.Vec, a, b, c int) triangle {
	t := triangle{v: [3]int{a, b, c}}
	ax, ay := pts[a].X, pts[a].Y
	bx, by := pts[b].X-ax, pts[b].Y-ay
	cx, cy := pts[c].X-ax, pts[c].Y-ay
	d := 2 * (bx*cy - by*cx)
	if math.Abs(d) < 1e-18 {
		t.flat = true
		return t
	}
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	ux := (cy*b2 - by*c2) / d
	uy := (bx*c2 - cx*b2) / d
	t.center = r3.Vec{X: ax + ux, Y: ay + uy}
	t.r2 = ux*ux + uy*uy
	return t
}

func (t triangle) encloses(p r3.Vec) bool {
	if t.flat {
		return true
	}
	dx, dy := p.X-t.center.X, p.Y-t.center.Y
	return dx*dx+dy*dy < t.r2*(1-1e-12)
}

// triangulate2D runs Bowyer-Watson in the XY plane.
func triangulate2D(points []r3.Vec) [][3]int {
	n := len(points)
	pts := normalize(points, true)

	m := superScale
	pts = append(pts,
		r3.Vec{X: -m, Y: -m},
		r3.Vec{X: m, Y: -m},
		r3.Vec{X: 0, Y: m},
	)
	tris := []triangle{newTriangle(pts, n, n+1, n+2)}

	for i := 0; i < n; i++ {
		p := pts[i]
		edges := make(map[Edge]int)
		kept := tris[:0]
		var bad []triangle
		for _, t := range tris {
			if t.encloses(p) {
				bad = append(bad, t)
				continue
			}
			kept = append(kept, t)
		}
		for _, t := range bad {
			edges[NewEdge(t.v[0], t.v[1])]++
			edges[NewEdge(t.v[1], t.v[2])]++
			edges[NewEdge(t.v[0], t.v[2])]++
		}
		tris = kept
		for e, count := range edges {
			if count == 1 {
				tris = append(tris, newTriangle(pts, e.A, e.B, i))
			}
		}
	}

	var out [][3]int
	for _, t := range tris {
		if t.v[0] >= n || t.v[1] >= n || t.v[2] >= n || t.flat {
			continue
		}
		out = append(out, t.v)
	}
	return out
}

// connectIsolated links any point left without edges to its nearest neighbour.
func connectIsolated(points []r3.Vec, edges EdgeSet) {
	if len(points) < 2 {
		return
	}
	degree := make([]int, len(points))
	for e := range edges {
		degree[e.A]++
		degree[e.B]++
	}
	for i, d := range degree {
		if d > 0 {
			continue
		}
		best, bestDist := -1, math.Inf(1)
		for j, q := range points {
			if j == i {
				continue
			}
			if dist := r3.Norm2(r3.Sub(points[i], q)); dist < bestDist {
				best, bestDist = j, dist
			}
		}
		edges.Add(i, best)
	}
}
