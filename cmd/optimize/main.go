// Command optimize tunes the thrust map search parameters with CMA-ES against
// a set of procedural hulls and writes the best config it finds.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/shipyard/config"
)

// EvalRecord is one row of optimize_log.csv. Parameter columns follow
// NewParamVector's order.
type EvalRecord struct {
	Eval           int     `csv:"eval"`
	Fitness        float64 `csv:"fitness"`
	Score          float64 `csv:"score"`
	Evaluations    float64 `csv:"evaluations"`
	PoolSize       float64 `csv:"pool_size"`
	SurvivorFrac   float64 `csv:"survivor_frac"`
	FreshFraction  float64 `csv:"fresh_fraction"`
	MutateChance   float64 `csv:"mutate_chance"`
	MutateDistance float64 `csv:"mutate_distance"`
}

type options struct {
	configPath  string
	outputDir   string
	hulls       int
	maxEvals    int
	population  int
	evalPenalty float64
	stepSize    float64
}

// tuner runs CMA-ES over the parameter vector and tracks the best point seen.
type tuner struct {
	params    *ParamVector
	evaluator *FitnessEvaluator
	log       *os.File
	logged    bool

	evals       int
	bestFitness float64
	best        []float64
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Base config YAML file (empty = use defaults)")
	flag.StringVar(&opts.outputDir, "output", "", "Output directory for results")
	flag.IntVar(&opts.hulls, "seeds", 3, "Number of procedural hulls per evaluation")
	flag.IntVar(&opts.maxEvals, "max-evals", 100, "Maximum number of evaluations")
	flag.IntVar(&opts.population, "population", 0, "CMA-ES population size (0 = auto)")
	flag.Float64Var(&opts.evalPenalty, "eval-penalty", 0.01, "Fitness cost per thousand score evaluations")
	flag.Float64Var(&opts.stepSize, "step-size", 0.3, "Initial CMA-ES step size in normalized space")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(opts); err != nil {
		slog.Error("optimize failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.outputDir == "" {
		return fmt.Errorf("--output is required")
	}
	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := config.Init(opts.configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	base := config.Cfg()

	seeds := make([]int64, opts.hulls)
	for i := range seeds {
		seeds[i] = int64(i*1000 + 42)
	}

	logFile, err := os.Create(filepath.Join(opts.outputDir, "optimize_log.csv"))
	if err != nil {
		return fmt.Errorf("creating log: %w", err)
	}
	defer logFile.Close()

	params := NewParamVector()
	tn := &tuner{
		params:      params,
		evaluator:   NewFitnessEvaluator(params, seeds, base, opts.evalPenalty),
		log:         logFile,
		bestFitness: 1e9,
	}

	population := opts.population
	if population <= 0 {
		population = 4 + 3*params.Dim()/2
	}
	slog.Info("optimize start",
		"params", params.Dim(),
		"population", population,
		"max_evals", opts.maxEvals,
		"hulls", opts.hulls,
		"requests", len(base.ThrustRequests()),
	)

	started := time.Now()
	result, err := optimize.Minimize(
		optimize.Problem{Func: tn.fitness},
		params.Normalize(params.ExtractFromConfig(base)),
		&optimize.Settings{FuncEvaluations: opts.maxEvals},
		&optimize.CmaEsChol{InitStepSize: opts.stepSize, Population: population},
	)
	if err != nil {
		slog.Warn("optimization ended early", "error", err)
	}
	if tn.best == nil && result != nil {
		tn.best = params.Clamp(params.Denormalize(result.X))
	}
	if tn.best == nil {
		return fmt.Errorf("no evaluations completed")
	}

	attrs := []any{"evals", tn.evals, "elapsed", time.Since(started).Round(time.Second).String(), "fitness", tn.bestFitness}
	for i, spec := range params.Specs {
		attrs = append(attrs, spec.Path, tn.best[i])
	}
	slog.Info("optimize done", attrs...)

	// Reload so the written config carries only tuned changes over the base.
	bestCfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	params.ApplyToConfig(bestCfg, tn.best)
	out := filepath.Join(opts.outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(out); err != nil {
		return err
	}
	slog.Info("best config written", "path", out)
	return nil
}

// fitness is the CMA-ES objective over normalized parameters.
func (tn *tuner) fitness(x []float64) float64 {
	raw := tn.params.Denormalize(x)
	fitness := tn.evaluator.Evaluate(raw)
	tn.evals++

	used := tn.params.Clamp(raw)
	if fitness < tn.bestFitness {
		tn.bestFitness, tn.best = fitness, used
	}

	score, evals := tn.evaluator.LastScore()
	if err := tn.record(EvalRecord{
		Eval:           tn.evals,
		Fitness:        fitness,
		Score:          score,
		Evaluations:    evals,
		PoolSize:       used[0],
		SurvivorFrac:   used[1],
		FreshFraction:  used[2],
		MutateChance:   used[3],
		MutateDistance: used[4],
	}); err != nil {
		slog.Error("failed to write eval", "error", err)
	}
	slog.Debug("eval", "n", tn.evals, "score", score, "evaluations", evals, "best", tn.bestFitness)
	return fitness
}

func (tn *tuner) record(r EvalRecord) error {
	rows := []EvalRecord{r}
	if !tn.logged {
		tn.logged = true
		return gocsv.Marshal(rows, tn.log)
	}
	return gocsv.MarshalWithoutHeaders(rows, tn.log)
}
