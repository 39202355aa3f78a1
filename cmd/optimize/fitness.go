package main

import (
	"context"
	"math"
	"sync"

	"github.com/pthm-cable/shipyard/config"
	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/search"
	"github.com/pthm-cable/shipyard/ship"
	"github.com/pthm-cable/shipyard/thrust"
)

// FitnessEvaluator solves every thrust request on a set of procedural hulls
// and scores a parameter vector by the mean final score.
type FitnessEvaluator struct {
	params      *ParamVector
	seeds       []int64
	baseConfig  *config.Config
	evalPenalty float64 // fitness cost per thousand score evaluations

	mu          sync.Mutex
	bestFitness float64
	lastScore   float64 // mean score from most recent Evaluate call
	lastEvals   float64 // mean evaluations from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []int64, baseCfg *config.Config, evalPenalty float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		seeds:       seeds,
		baseConfig:  baseCfg,
		evalPenalty: evalPenalty,
		bestFitness: math.Inf(1),
	}
}

// LastScore returns the mean score and evaluations of the most recent
// evaluation.
func (fe *FitnessEvaluator) LastScore() (score, evaluations float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastScore, fe.lastEvals
}

// seedResult holds the result from one hull.
type seedResult struct {
	score       float64
	evaluations float64
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.solveHull(cfg, s)
		}(i, seed)
	}
	wg.Wait()

	var totalScore, totalEvals float64
	for _, r := range results {
		totalScore += r.score
		totalEvals += r.evaluations
	}
	n := float64(len(fe.seeds))
	score, evals := totalScore/n, totalEvals/n
	fitness := score + fe.evalPenalty*evals/1000

	fe.mu.Lock()
	if fitness < fe.bestFitness {
		fe.bestFitness = fitness
	}
	fe.lastScore, fe.lastEvals = score, evals
	fe.mu.Unlock()

	return fitness
}

// solveHull builds the procedural hull for seed and runs one discovery per
// request, averaging the final score sums.
func (fe *FitnessEvaluator) solveHull(cfg *config.Config, seed int64) seedResult {
	bp := ship.Procedural("tune", cfg.HullOptions(), seed)
	rnd := rng.New(uint64(seed))
	sh, err := ship.Build(bp, cfg.ShipSettings(), rnd)
	if err != nil {
		return seedResult{score: thrust.MaxError}
	}
	defer sh.Close()

	model := sh.Model()
	opts := cfg.ThrustOptions()
	requests := cfg.ThrustRequests()
	var res seedResult
	solved := 0
	for _, req := range requests {
		obj, err := thrust.NewObjective(model, req.Linear, req.Rotation)
		if err != nil {
			continue
		}
		out, err := thrust.DiscoverSolution2(context.Background(), model, obj, opts, search.Callbacks[thrust.Map]{}, rnd)
		if err != nil {
			res.score += thrust.MaxError
			solved++
			continue
		}
		res.score += out.Best.Sum()
		res.evaluations += float64(out.Evaluations)
		solved++
	}
	if solved > 0 {
		res.score /= float64(solved)
		res.evaluations /= float64(solved)
	}
	return res
}

// copyConfig returns a shallow copy of the base config. Every field the
// parameter vector touches is a value, so copies do not share state.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
