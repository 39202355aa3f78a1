package sim

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shipyard/telemetry"
	"github.com/pthm-cable/shipyard/thrust"
)

// flushTelemetry writes container rows on their own cadence and flushes the
// stats window when it is due.
func (s *Sim) flushTelemetry() {
	if every := s.cfg.Telemetry.ContainerStep; every > 0 && s.step%every == 0 {
		if err := s.output.WriteContainers(telemetry.ContainerRecords(s.step, s.ship)); err != nil {
			slog.Error("failed to write containers", "error", err)
		}
	}

	if !s.collector.ShouldFlush(s.step) {
		return
	}

	records := s.solverRecords(false)
	scores := make([]float64, len(records))
	for i, r := range records {
		scores[i] = r.Total
	}

	stats := s.collector.Flush(s.step, telemetry.LevelsOf(s.ship), scores)
	perfStats := s.perf.Stats()

	// Log stats if enabled (console output)
	if s.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.output.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := s.output.WritePerf(perfStats, stats.WindowEndStep); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if err := s.output.WriteSolver(records); err != nil {
		slog.Error("failed to write solver", "error", err)
	}

	for _, b := range s.bookmarks.Check(stats) {
		if s.opts.LogStats {
			b.LogBookmark()
		}
		if err := s.output.WriteBookmark(b); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}
}

// solverRecords reports the current best map per request. With polish set,
// each map is refined with CMA-ES against the current model first.
func (s *Sim) solverRecords(polish bool) []telemetry.SolverRecord {
	model := s.solver.Model()
	var out []telemetry.SolverRecord
	for i, req := range s.requests {
		sol, ok := s.solver.Best(i)
		if !ok {
			continue
		}
		polished := math.NaN()
		if polish && model != nil {
			polished = s.polish(model, req, sol)
		}
		out = append(out, telemetry.SolverRecordOf(s.step, req, sol, polished))
	}
	return out
}

func (s *Sim) polish(model *thrust.Model, req thrust.Request, sol thrust.Solution) float64 {
	obj, err := thrust.NewObjective(model, req.Linear, req.Rotation)
	if err != nil {
		return math.NaN()
	}
	_, score, err := thrust.Polish(model, obj, sol.Map, s.cfg.PolishSettings())
	if err != nil {
		slog.Warn("polish failed", "request", req.Name, "error", err)
		return math.NaN()
	}
	slog.Debug("polished", "request", req.Name, "before", floats.Sum(sol.Score), "after", score)
	return score
}
