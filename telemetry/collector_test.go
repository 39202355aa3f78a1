package telemetry

import (
	"math"
	"testing"
)

func TestCollector_FlushAggregates(t *testing.T) {
	c := NewCollector(10, 0.1)

	c.RecordBurn(1, 1)
	c.RecordBurn(2, 0.5)
	c.RecordRefine(4, 2)
	c.RecordDamage()
	c.RecordRepair()
	c.RecordRemutation()
	c.RecordSolution()
	c.RecordSolution()

	if c.ShouldFlush(9) {
		t.Error("expected no flush before the window ends")
	}
	if !c.ShouldFlush(10) {
		t.Error("expected flush at the window end")
	}

	stats := c.Flush(10, Levels{Fuel: 50, Matter: 20, Mass: 30}, []float64{1, 3})

	if stats.FuelBurned != 3 {
		t.Errorf("expected fuel burned 3, got %v", stats.FuelBurned)
	}
	if math.Abs(stats.MeanThrottle-0.75) > 1e-12 {
		t.Errorf("expected mean throttle 0.75, got %v", stats.MeanThrottle)
	}
	if stats.StarvedSteps != 1 {
		t.Errorf("expected 1 starved step, got %d", stats.StarvedSteps)
	}
	if stats.MatterRefined != 4 || stats.FuelRefined != 2 {
		t.Errorf("expected refine 4 -> 2, got %v -> %v", stats.MatterRefined, stats.FuelRefined)
	}
	if stats.PartsDestroyed != 1 || stats.PartsRepaired != 1 || stats.Remutations != 1 || stats.Solutions != 2 {
		t.Errorf("unexpected event counts %+v", stats)
	}
	if math.Abs(stats.SimTimeSec-1) > 1e-12 {
		t.Errorf("expected sim time 1, got %v", stats.SimTimeSec)
	}
	if stats.FuelLeft != 50 || stats.MatterLeft != 20 || stats.Mass != 30 {
		t.Errorf("unexpected levels %+v", stats)
	}
	if stats.ScoreMean != 2 || stats.ScoreMax != 3 {
		t.Errorf("expected score mean 2 max 3, got %v %v", stats.ScoreMean, stats.ScoreMax)
	}
}

func TestCollector_FlushResets(t *testing.T) {
	c := NewCollector(5, 1)
	c.RecordBurn(1, 1)
	c.Flush(5, Levels{}, nil)

	if c.ShouldFlush(9) {
		t.Error("expected the window to restart at the flush step")
	}
	stats := c.Flush(10, Levels{}, nil)
	if stats.WindowStartStep != 5 {
		t.Errorf("expected window start 5, got %d", stats.WindowStartStep)
	}
	if stats.FuelBurned != 0 || stats.MeanThrottle != 0 {
		t.Errorf("expected counters reset, got %+v", stats)
	}
	if c.WindowSteps() != 5 {
		t.Errorf("expected window steps kept, got %d", c.WindowSteps())
	}
}

func TestNewCollector_MinimumWindow(t *testing.T) {
	c := NewCollector(0, 1)
	if c.WindowSteps() != 1 {
		t.Errorf("expected window of 1 step, got %d", c.WindowSteps())
	}
}
