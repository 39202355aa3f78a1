package telemetry

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// ScoreStats summarizes a set of solver scores.
type ScoreStats struct {
	Count int     `csv:"count"`
	Mean  float64 `csv:"mean"`
	Std   float64 `csv:"std"`
	Min   float64 `csv:"min"`
	P10   float64 `csv:"p10"`
	P50   float64 `csv:"p50"`
	P90   float64 `csv:"p90"`
	Max   float64 `csv:"max"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Summarize computes mean, population std and percentiles. NaN values are
// skipped.
func Summarize(values []float64) ScoreStats {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	n := len(sorted)
	if n == 0 {
		return ScoreStats{}
	}
	slices.Sort(sorted)

	mean, variance := stat.PopMeanVariance(sorted, nil)
	return ScoreStats{
		Count: n,
		Mean:  mean,
		Std:   math.Sqrt(variance),
		Min:   sorted[0],
		P10:   Percentile(sorted, 0.10),
		P50:   Percentile(sorted, 0.50),
		P90:   Percentile(sorted, 0.90),
		Max:   sorted[n-1],
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s ScoreStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("count", s.Count),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("min", s.Min),
		slog.Float64("p50", s.P50),
		slog.Float64("max", s.Max),
	)
}
