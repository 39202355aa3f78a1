// Package geom holds the 3D helpers shared by the linker and thrust packages:
// near-zero comparisons, canonical edges, force decomposition and Delaunay
// tessellation.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// NearZero is the tolerance used for snapping and degenerate-geometry guards.
const NearZero = 1e-9

// IsNearZero reports whether v is within NearZero of zero.
func IsNearZero(v float64) bool {
	return math.Abs(v) <= NearZero
}

// IsNearValue reports whether a and b are within NearZero of each other.
func IsNearValue(a, b float64) bool {
	return math.Abs(a-b) <= NearZero
}

// IsNearZeroVec reports whether every component of v is near zero.
func IsNearZeroVec(v r3.Vec) bool {
	return IsNearZero(v.X) && IsNearZero(v.Y) && IsNearZero(v.Z)
}

// SafeUnit returns the unit vector of v, or the zero vector when v is degenerate.
func SafeUnit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if IsNearZero(n) {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// SplitForceIntoTranslationAndTorque decomposes a force applied at offset
// (relative to the pivot) into the linear force felt by the body and the torque
// about the pivot. The full force always translates the body; the rotating
// part is offset × force.
func SplitForceIntoTranslationAndTorque(offset, force r3.Vec) (translation, torque r3.Vec) {
	if IsNearZeroVec(force) {
		return r3.Vec{}, r3.Vec{}
	}
	translation = force
	if IsNearZeroVec(offset) {
		return translation, r3.Vec{}
	}
	torque = r3.Cross(offset, force)
	return translation, torque
}

// Centroid returns the average of points, or the zero vector for an empty slice.
func Centroid(points []r3.Vec) r3.Vec {
	if len(points) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(points)), sum)
}

// Bounds returns the axis-aligned box around points.
func Bounds(points []r3.Vec) r3.Box {
	if len(points) == 0 {
		return r3.Box{}
	}
	box := r3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		box.Min = r3.Vec{X: math.Min(box.Min.X, p.X), Y: math.Min(box.Min.Y, p.Y), Z: math.Min(box.Min.Z, p.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, p.X), Y: math.Max(box.Max.Y, p.Y), Z: math.Max(box.Max.Z, p.Z)}
	}
	return box
}

// BoundingDiagonal returns the length of the bounding box diagonal of points.
func BoundingDiagonal(points []r3.Vec) float64 {
	b := Bounds(points)
	return r3.Norm(r3.Sub(b.Max, b.Min))
}
