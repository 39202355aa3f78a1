// Package mutate provides typed, factor-based mutation primitives for scalars,
// vectors and flat numeric genomes.
package mutate

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/rng"
)

// Factor controls how often and how far a value moves.
type Factor struct {
	// Chance is the probability each value mutates.
	Chance float64 `yaml:"chance"`
	// MaxDistance bounds the change. It is an absolute amount when Absolute is
	// set, otherwise a fraction of the value's magnitude.
	MaxDistance float64 `yaml:"max_distance"`
	Absolute    bool    `yaml:"absolute"`
}

// distance returns the largest allowed change for v.
func (f Factor) distance(v float64) float64 {
	if f.Absolute {
		return f.MaxDistance
	}
	d := math.Abs(v) * f.MaxDistance
	if geom.IsNearZero(d) {
		// A zero value could never move under a relative factor.
		return f.MaxDistance
	}
	return d
}

// Nudge always moves v by a uniform amount in [-distance, +distance].
func (f Factor) Nudge(v float64, rnd rng.Source) float64 {
	return v + (rnd.Float64()*2-1)*f.distance(v)
}

// Scalar mutates v with probability f.Chance. It reports whether v changed.
func Scalar(v float64, f Factor, rnd rng.Source) (float64, bool) {
	if !rng.Chance(rnd, f.Chance) {
		return v, false
	}
	return f.Nudge(v, rnd), true
}

// Vector moves v in a random direction with probability f.Chance. The
// distance is bounded by the factor, relative to |v| unless Absolute.
func Vector(v r3.Vec, f Factor, rnd rng.Source) (r3.Vec, bool) {
	if !rng.Chance(rnd, f.Chance) {
		return v, false
	}
	dir := geom.SafeUnit(r3.Vec{X: rnd.NormFloat64(), Y: rnd.NormFloat64(), Z: rnd.NormFloat64()})
	if dir == (r3.Vec{}) {
		dir = r3.Vec{X: 1}
	}
	dist := rnd.Float64() * f.distance(r3.Norm(v))
	return r3.Add(v, r3.Scale(dist, dir)), true
}

// Flat mutates values in place, clamping each to [lo, hi], and returns how
// many changed. At least one value changes when values is non-empty, so a
// low chance on a short genome still produces a new candidate.
func Flat(values []float64, f Factor, lo, hi float64, rnd rng.Source) int {
	if len(values) == 0 {
		return 0
	}

	changed := 0
	for i, v := range values {
		if nv, ok := Scalar(v, f, rnd); ok {
			values[i] = clamp(nv, lo, hi)
			changed++
		}
	}
	if changed == 0 {
		i := rnd.IntN(len(values))
		values[i] = clamp(f.Nudge(values[i], rnd), lo, hi)
		changed = 1
	}
	return changed
}

// ScaleToMax rescales values so the largest is exactly 1. All-zero (or
// all-negative) input is left alone.
func ScaleToMax(values []float64) {
	if len(values) == 0 {
		return
	}
	max := floats.Max(values)
	if max <= 0 || geom.IsNearZero(max) {
		return
	}
	floats.Scale(1/max, values)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
