// Package rng provides the explicit random source threaded through every
// stochastic function in the module.
package rng

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Source is the subset of *rand.Rand used by the linkers, mutators and solvers.
// Passing it explicitly keeps runs reproducible from a single seed.
type Source interface {
	Float64() float64
	IntN(n int) int
	NormFloat64() float64
	Perm(n int) []int
}

var _ Source = (*rand.Rand)(nil)

// New returns a PCG-backed generator. A zero seed draws a random one.
func New(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// Shuffle permutes n elements in place using swap.
func Shuffle(r Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		swap(i, j)
	}
}

// Chance returns true with probability p.
func Chance(r Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.Float64() < p
}

// Weighted picks an index with probability proportional to its weight.
// Negative weights count as zero. When every weight is zero the pick is
// uniform. It returns -1 for an empty slice.
func Weighted(r Source, weights []float64) int {
	if len(weights) == 0 {
		return -1
	}
	clipped := make([]float64, len(weights))
	for i, w := range weights {
		if w > 0 {
			clipped[i] = w
		}
	}
	total := floats.Sum(clipped)
	if total <= 0 {
		return r.IntN(len(weights))
	}
	target := r.Float64() * total
	for i, w := range clipped {
		if target < w {
			return i
		}
		target -= w
	}
	// Rounding left target just past the end; return the last positive weight.
	for i := len(clipped) - 1; i >= 0; i-- {
		if clipped[i] > 0 {
			return i
		}
	}
	return len(clipped) - 1
}
