package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	// Unsorted on purpose.
	values := []float64{0.5, 0.1, 1.0, 0.3, 0.9, 0.2, 0.7, 0.4, 0.6, 0.8}
	s := Summarize(values)

	if s.Count != 10 {
		t.Errorf("expected count 10, got %d", s.Count)
	}
	if math.Abs(s.Mean-0.55) > 0.001 {
		t.Errorf("expected mean 0.55, got %v", s.Mean)
	}
	// Population std of 0.1..1.0 is sqrt(0.0825).
	if math.Abs(s.Std-math.Sqrt(0.0825)) > 0.001 {
		t.Errorf("expected std %v, got %v", math.Sqrt(0.0825), s.Std)
	}
	if s.Min != 0.1 || s.Max != 1.0 {
		t.Errorf("expected range [0.1, 1.0], got [%v, %v]", s.Min, s.Max)
	}
	if math.Abs(s.P50-0.55) > 0.001 {
		t.Errorf("expected p50 0.55, got %v", s.P50)
	}
	if !(s.P10 < s.P50 && s.P50 < s.P90) {
		t.Errorf("percentiles out of order: %v %v %v", s.P10, s.P50, s.P90)
	}
}

func TestSummarizeSkipsNaN(t *testing.T) {
	s := Summarize([]float64{math.NaN(), 2, math.NaN(), 4})
	if s.Count != 2 {
		t.Errorf("expected count 2, got %d", s.Count)
	}
	if s.Mean != 3 {
		t.Errorf("expected mean 3, got %v", s.Mean)
	}

	empty := Summarize([]float64{math.NaN()})
	if empty != (ScoreStats{}) {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}
