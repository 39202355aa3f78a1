package telemetry

import "log/slog"

// WindowStats holds aggregated ship statistics for a window of steps.
type WindowStats struct {
	WindowStartStep int     `csv:"-"`
	WindowEndStep   int     `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Flows during window
	FuelBurned    float64 `csv:"fuel_burned"`
	MatterRefined float64 `csv:"matter_refined"`
	FuelRefined   float64 `csv:"fuel_refined"`
	MeanThrottle  float64 `csv:"mean_throttle"`
	StarvedSteps  int     `csv:"starved_steps"` // steps fired at reduced throttle

	// Events during window
	PartsDestroyed int `csv:"parts_destroyed"`
	PartsRepaired  int `csv:"parts_repaired"`
	Remutations    int `csv:"remutations"`
	Solutions      int `csv:"solutions"`

	// Levels at window end
	FuelLeft   float64 `csv:"fuel_left"`
	MatterLeft float64 `csv:"matter_left"`
	Mass       float64 `csv:"mass"`

	// Solver scores at window end
	Scores    ScoreStats `csv:"-"`
	ScoreMean float64    `csv:"score_mean"`
	ScoreP50  float64    `csv:"score_p50"`
	ScoreMax  float64    `csv:"score_max"`
}

// Levels holds resource levels sampled at window end.
type Levels struct {
	Fuel   float64
	Matter float64
	Mass   float64
}

// Collector accumulates step events within windows and produces WindowStats.
type Collector struct {
	windowSteps int
	dt          float64

	// Current window tracking
	windowStartStep int

	// Counters for current window
	fuelBurned     float64
	matterRefined  float64
	fuelRefined    float64
	throttleSum    float64
	fires          int
	starved        int
	partsDestroyed int
	partsRepaired  int
	remutations    int
	solutions      int
}

// NewCollector creates a new stats collector.
// windowSteps: how many steps each stats window covers
// dt: seconds per step
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{windowSteps: windowSteps, dt: dt}
}

// RecordBurn records one thruster firing.
func (c *Collector) RecordBurn(fuel, throttle float64) {
	c.fuelBurned += fuel
	c.throttleSum += throttle
	c.fires++
	if throttle < 1 {
		c.starved++
	}
}

// RecordRefine records matter consumed and fuel produced by refineries.
func (c *Collector) RecordRefine(consumed, produced float64) {
	c.matterRefined += consumed
	c.fuelRefined += produced
}

// RecordDamage records a part being destroyed.
func (c *Collector) RecordDamage() {
	c.partsDestroyed++
}

// RecordRepair records a part being repaired.
func (c *Collector) RecordRepair() {
	c.partsRepaired++
}

// RecordRemutation records a position remutation pass.
func (c *Collector) RecordRemutation() {
	c.remutations++
}

// RecordSolution records a new best thrust solution.
func (c *Collector) RecordSolution() {
	c.solutions++
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(currentStep int) bool {
	return currentStep-c.windowStartStep >= c.windowSteps
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentStep int, levels Levels, scores []float64) WindowStats {
	var meanThrottle float64
	if c.fires > 0 {
		meanThrottle = c.throttleSum / float64(c.fires)
	}

	stats := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   currentStep,
		SimTimeSec:      float64(currentStep) * c.dt,

		FuelBurned:    c.fuelBurned,
		MatterRefined: c.matterRefined,
		FuelRefined:   c.fuelRefined,
		MeanThrottle:  meanThrottle,
		StarvedSteps:  c.starved,

		PartsDestroyed: c.partsDestroyed,
		PartsRepaired:  c.partsRepaired,
		Remutations:    c.remutations,
		Solutions:      c.solutions,

		FuelLeft:   levels.Fuel,
		MatterLeft: levels.Matter,
		Mass:       levels.Mass,

		Scores: Summarize(scores),
	}
	stats.ScoreMean, stats.ScoreP50, stats.ScoreMax = stats.Scores.Mean, stats.Scores.P50, stats.Scores.Max

	// Reset for next window
	*c = Collector{windowSteps: c.windowSteps, dt: c.dt, windowStartStep: currentStep}

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTimeSec,
		"fuel_burned", s.FuelBurned,
		"fuel_refined", s.FuelRefined,
		"matter_refined", s.MatterRefined,
		"mean_throttle", s.MeanThrottle,
		"starved_steps", s.StarvedSteps,
		"parts_destroyed", s.PartsDestroyed,
		"parts_repaired", s.PartsRepaired,
		"remutations", s.Remutations,
		"solutions", s.Solutions,
		"fuel_left", s.FuelLeft,
		"matter_left", s.MatterLeft,
		"mass", s.Mass,
		"scores", s.Scores,
	)
}
