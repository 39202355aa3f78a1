package telemetry

import (
	"math"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTimedCollector(window int) (*PerfCollector, *fakeClock) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	pc := NewPerfCollector(window)
	pc.now = clk.now
	return pc, clk
}

func nearDuration(a, b time.Duration) bool {
	return math.Abs(float64(a-b)) <= float64(time.Microsecond)
}

func TestPerfCollector_PhaseShares(t *testing.T) {
	pc, clk := newTimedCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseRefine)
		clk.advance(time.Millisecond)
		pc.StartPhase(PhaseFire)
		clk.advance(3 * time.Millisecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.Steps != 5 {
		t.Errorf("expected 5 steps, got %d", stats.Steps)
	}
	if !nearDuration(stats.Mean, 4*time.Millisecond) {
		t.Errorf("expected 4ms mean, got %v", stats.Mean)
	}
	if math.Abs(stats.StepsPerSecond-250) > 1e-6 {
		t.Errorf("expected 250 steps/s, got %v", stats.StepsPerSecond)
	}
	if math.Abs(stats.Share[PhaseRefine]-0.25) > 1e-9 || math.Abs(stats.Share[PhaseFire]-0.75) > 1e-9 {
		t.Errorf("expected 25/75 split, got %v", stats.Share)
	}
	if stats.Share[PhaseSolve] != 0 {
		t.Errorf("expected no solve time, got %v", stats.Share[PhaseSolve])
	}
}

func TestPerfCollector_RingKeepsRecentSteps(t *testing.T) {
	pc, clk := newTimedCollector(3)

	for i := 1; i <= 6; i++ {
		pc.StartStep()
		clk.advance(time.Duration(i) * time.Millisecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.Steps != 3 {
		t.Errorf("expected 3 steps in window, got %d", stats.Steps)
	}
	if !nearDuration(stats.Mean, 5*time.Millisecond) {
		t.Errorf("expected 5ms mean, got %v", stats.Mean)
	}
	if !nearDuration(stats.Max, 6*time.Millisecond) || !nearDuration(stats.P95, 6*time.Millisecond) {
		t.Errorf("expected 6ms max and p95, got %v %v", stats.Max, stats.P95)
	}
}

func TestPerfCollector_StartStepDropsOpenPhase(t *testing.T) {
	pc, clk := newTimedCollector(4)

	pc.StartStep()
	pc.StartPhase(PhaseSolve)
	clk.advance(time.Second)

	pc.StartStep()
	pc.StartPhase(PhaseTelemetry)
	clk.advance(time.Millisecond)
	pc.EndStep()

	stats := pc.Stats()
	if stats.Share[PhaseSolve] != 0 {
		t.Errorf("expected abandoned solve phase to be dropped, got %v", stats.Share[PhaseSolve])
	}
	if math.Abs(stats.Share[PhaseTelemetry]-1) > 1e-9 {
		t.Errorf("expected telemetry to be the whole step, got %v", stats.Share[PhaseTelemetry])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats != (PerfStats{}) {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestPerfStats_Record(t *testing.T) {
	stats := PerfStats{Steps: 8, Mean: 2 * time.Millisecond, StepsPerSecond: 500}
	stats.Share[PhaseSolve] = 0.6
	stats.Share[PhaseFire] = 0.4

	row := stats.Record(42)
	if row.WindowEnd != 42 || row.Steps != 8 {
		t.Errorf("unexpected window %+v", row)
	}
	if row.MeanUS != 2000 {
		t.Errorf("expected 2000us, got %d", row.MeanUS)
	}
	if math.Abs(row.SolvePct-60) > 1e-9 || math.Abs(row.FirePct-40) > 1e-9 || row.RefinePct != 0 {
		t.Errorf("unexpected phase split %+v", row)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseRemutate.String() != "remutate" {
		t.Errorf("expected remutate, got %s", PhaseRemutate)
	}
	if Phase(99).String() != "unknown" {
		t.Errorf("expected unknown, got %s", Phase(99))
	}
}
