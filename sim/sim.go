// Package sim flies an assembled ship: it keeps thrust maps solved in the
// background, fires along a course, runs refineries and applies random damage,
// repair and remutation while recording telemetry.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/config"
	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/ship"
	"github.com/pthm-cable/shipyard/telemetry"
	"github.com/pthm-cable/shipyard/thrust"
	"github.com/pthm-cable/shipyard/workpool"
)

// comTolerance is how far the center of mass may drift before the solver
// restarts.
const comTolerance = 0.05

// Options holds run parameters that are not part of the config file.
type Options struct {
	Seed          uint64 // 0 = random
	BlueprintPath string // empty = procedural hull from config
	OutputDir     string // empty = no files
	LogStats      bool
	StatsWindow   int    // steps per stats window, 0 = Telemetry.ContainerStep
	Course        r3.Vec // desired linear direction, zero = +Z
	DamageChance  float64
	RepairChance  float64
	RemutateEvery int // steps between remutations, 0 disables
}

// Sim holds the complete run state.
type Sim struct {
	cfg  *config.Config
	opts Options
	rnd  *rand.Rand

	ship     *ship.Ship
	pool     *workpool.RoundRobin
	solver   *thrust.SolutionSolver
	requests []thrust.Request
	course   r3.Vec

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	bookmarks *telemetry.BookmarkDetector
	output    *telemetry.OutputManager

	step      int
	solvedCom r3.Vec
	seen      []float64 // best score sum reported per request
}

// New builds the ship and starts the solver pool.
func New(cfg *config.Config, opts Options) (*Sim, error) {
	rnd := rng.New(opts.Seed)

	bp, err := loadBlueprint(cfg, opts, rnd)
	if err != nil {
		return nil, err
	}
	sh, err := ship.Build(bp, cfg.ShipSettings(), rnd)
	if err != nil {
		return nil, err
	}

	window := opts.StatsWindow
	if window <= 0 {
		window = cfg.Telemetry.ContainerStep
	}
	output, err := telemetry.NewOutputManager(opts.OutputDir, cfg.Telemetry)
	if err != nil {
		sh.Close()
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	course := geom.SafeUnit(opts.Course)
	if course == (r3.Vec{}) {
		course = r3.Vec{Z: 1}
	}

	com, _ := sh.CenterOfMass()
	requests := cfg.ThrustRequests()
	pool := workpool.NewRoundRobin(cfg.Derived.Workers, cfg.Workers.QueueDepth)
	s := &Sim{
		cfg:       cfg,
		opts:      opts,
		rnd:       rnd,
		ship:      sh,
		pool:      pool,
		solver:    thrust.NewSolutionSolver(sh.Thrusters(), com, requests, cfg.ThrustOptions(), pool, opts.Seed),
		requests:  requests,
		course:    course,
		collector: telemetry.NewCollector(window, cfg.Ship.StepDT),
		perf:      telemetry.NewPerfCollector(window),
		bookmarks: telemetry.NewBookmarkDetector(10),
		output:    output,
		solvedCom: com,
		seen:      make([]float64, len(requests)),
	}
	for i := range s.seen {
		s.seen[i] = thrust.MaxError
	}

	if err := output.WriteLinks(telemetry.LinkRecords(0, sh)); err != nil {
		slog.Error("failed to write links", "error", err)
	}

	slog.Info("sim ready",
		"ship", sh.ID.String(),
		"name", sh.Name,
		"parts", sh.Len(),
		"requests", len(requests),
		"workers", pool.Workers(),
		"seed", opts.Seed,
	)
	return s, nil
}

func loadBlueprint(cfg *config.Config, opts Options, rnd rng.Source) (ship.Blueprint, error) {
	if opts.BlueprintPath != "" {
		bp, err := ship.LoadBlueprint(opts.BlueprintPath)
		if err != nil {
			return ship.Blueprint{}, fmt.Errorf("loading blueprint: %w", err)
		}
		return bp, nil
	}
	seed := int64(opts.Seed)
	if seed == 0 {
		seed = int64(rnd.IntN(1 << 30))
	}
	return ship.Procedural("procedural", cfg.HullOptions(), seed), nil
}

// Ship returns the ship being flown.
func (s *Sim) Ship() *ship.Ship {
	return s.ship
}

// Solver returns the background thrust solver.
func (s *Sim) Solver() *thrust.SolutionSolver {
	return s.solver
}

// StepCount returns the number of steps taken.
func (s *Sim) StepCount() int {
	return s.step
}

// Step advances the run by one step of Ship.StepDT.
func (s *Sim) Step(ctx context.Context) error {
	dt := s.cfg.Ship.StepDT
	s.perf.StartStep()

	s.perf.StartPhase(telemetry.PhaseSolve)
	if err := s.updateSolver(ctx); err != nil {
		return err
	}
	s.trackSolutions()

	s.perf.StartPhase(telemetry.PhaseRefine)
	consumed, produced := s.ship.Refine(dt)
	s.collector.RecordRefine(consumed, produced)

	s.perf.StartPhase(telemetry.PhaseFire)
	if sol, ok := s.solver.Nearest(s.course); ok {
		burn, err := s.ship.Fire(dt, sol.Map)
		switch {
		case err == nil:
			s.collector.RecordBurn(burn.Fuel, burn.Throttle)
		case !errors.Is(err, ship.ErrNoFuel):
			slog.Warn("fire failed", "step", s.step, "error", err)
		}
	}

	s.perf.StartPhase(telemetry.PhaseRemutate)
	s.applyEvents()

	s.step++

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	s.perf.EndStep()
	return nil
}

// updateSolver restarts the background solves when damage or a center of
// mass drift made them stale.
func (s *Sim) updateSolver(ctx context.Context) error {
	com, _ := s.ship.CenterOfMass()
	if r3.Norm(r3.Sub(com, s.solvedCom)) > comTolerance {
		s.solver.SetCenterOfMass(com)
		s.solvedCom = com
	}
	started, err := s.solver.Update(ctx)
	if err != nil {
		return fmt.Errorf("updating solver: %w", err)
	}
	if started {
		slog.Debug("solver restarted", "step", s.step)
		for i := range s.seen {
			s.seen[i] = thrust.MaxError
		}
	}
	return nil
}

// trackSolutions counts new best maps since the last step.
func (s *Sim) trackSolutions() {
	for i := range s.requests {
		sol, ok := s.solver.Best(i)
		if !ok {
			continue
		}
		if sum := floats.Sum(sol.Score); sum < s.seen[i] {
			s.seen[i] = sum
			s.collector.RecordSolution()
		}
	}
}

// Run steps until steps is reached (0 = until ctx ends), then waits for the
// solver and writes the final solutions and ship state.
func (s *Sim) Run(ctx context.Context, steps int) error {
	for steps <= 0 || s.step < steps {
		if ctx.Err() != nil {
			slog.Info("run stopped", "step", s.step, "reason", ctx.Err())
			break
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return s.Finish(ctx)
}

// Finish waits for the solves in flight, polishes the final maps when enabled
// and writes them with the ship state.
func (s *Sim) Finish(ctx context.Context) error {
	if ctx.Err() == nil {
		s.solver.Wait()
	}
	records := s.solverRecords(s.cfg.Thrust.Polish.Enabled)
	for _, r := range records {
		slog.Info("solution",
			"request", r.Request,
			"generation", r.Generation,
			"final", r.Final,
			"total", r.Total,
			"polished", r.Polished,
			"used_thrusters", r.Used,
		)
	}
	if err := s.output.WriteSolver(records); err != nil {
		return err
	}
	return s.output.WriteState(s.ship)
}

// Close stops the solver and pool and closes the output files.
func (s *Sim) Close() error {
	s.solver.Close()
	s.pool.Stop()
	s.ship.Close()
	return s.output.Close()
}
