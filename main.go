package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/config"
	"github.com/pthm-cable/shipyard/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	blueprint := flag.String("blueprint", "", "Path to a ship blueprint (empty = procedural hull)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config and state snapshots")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = time-based)")
	steps := flag.Int("steps", 200, "Stop after N steps (0 = until timeout or interrupt)")
	timeout := flag.Duration("timeout", 0, "Stop after this long (0 = no limit)")
	course := flag.String("course", "0,0,1", "Desired thrust direction as x,y,z")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	statsWindow := flag.Int("stats-window", 0, "Stats window size in steps (0 = use config)")
	damage := flag.Float64("damage", 0, "Per step chance a random part is destroyed")
	repair := flag.Float64("repair", 0, "Per step chance a random destroyed part is repaired")
	remutate := flag.Int("remutate-every", 0, "Remutate part positions every N steps (0 = never)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	dir, err := parseVec(*course)
	if err != nil {
		slog.Error("bad course", "error", err)
		os.Exit(1)
	}

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = uint64(time.Now().UnixNano())
	}

	opts := sim.Options{
		Seed:          rngSeed,
		BlueprintPath: *blueprint,
		OutputDir:     *outputDir,
		LogStats:      *logStats,
		StatsWindow:   *statsWindow,
		Course:        dir,
		DamageChance:  *damage,
		RepairChance:  *repair,
		RemutateEvery: *remutate,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	s, err := sim.New(cfg, opts)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}

	slog.Info("starting run",
		"seed", rngSeed,
		"steps", *steps,
		"timeout", timeout.String(),
		"course", *course,
	)

	runErr := s.Run(ctx, *steps)
	if err := s.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		slog.Error("run failed", "error", runErr)
		os.Exit(1)
	}
	slog.Info("run finished", "steps", s.StepCount())
}

// parseVec parses "x,y,z".
func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = f
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}
