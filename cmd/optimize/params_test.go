package main

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/shipyard/config"
)

func TestParamVectorRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := pv.DefaultVector()
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(raw[i]-back[i]) > 1e-12 {
			t.Errorf("%s: expected %v, got %v", pv.Specs[i].Name, raw[i], back[i])
		}
	}
}

func TestParamVectorClamp(t *testing.T) {
	pv := NewParamVector()
	v := pv.DefaultVector()
	v[0] = 1000.4
	v[3] = -1
	c := pv.Clamp(v)
	if c[0] != 120 {
		t.Errorf("expected pool size clamped to 120, got %v", c[0])
	}
	if c[3] != pv.Specs[3].Min {
		t.Errorf("expected chance clamped to %v, got %v", pv.Specs[3].Min, c[3])
	}

	v = pv.DefaultVector()
	v[0] = 33.6
	if got := pv.Clamp(v)[0]; got != 34 {
		t.Errorf("expected integer rounding to 34, got %v", got)
	}
}

func TestApplyAndExtract(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	pv := NewParamVector()
	pv.ApplyToConfig(cfg, []float64{40, 0.25, 0.2, 0.05, 0.3})

	if cfg.Search.PoolSize != 40 || cfg.Search.Survivors != 10 {
		t.Errorf("expected pool 40 survivors 10, got %d %d", cfg.Search.PoolSize, cfg.Search.Survivors)
	}
	got := pv.ExtractFromConfig(cfg)
	want := []float64{40, 0.25, 0.2, 0.05, 0.3}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("%s: expected %v, got %v", pv.Specs[i].Name, want[i], got[i])
		}
	}
}

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Search.MaxIterations = 10
	cfg.Search.StallIterations = 0
	cfg.Thrust.Directions = 2
	cfg.Thrust.IncludeRotation = false
	cfg.Derived.Directions = cfg.Derived.Directions[:2]
	return cfg
}

func TestEvaluateScoresHulls(t *testing.T) {
	cfg := smallConfig(t)

	pv := NewParamVector()
	fe := NewFitnessEvaluator(pv, []int64{1, 2}, cfg, 0)
	fitness := fe.Evaluate(pv.DefaultVector())

	score, evals := fe.LastScore()
	if fitness != score {
		t.Errorf("expected fitness %v to equal score with no penalty, got %v", score, fitness)
	}
	if score < 0 || score >= 1e9 {
		t.Errorf("expected a solved score, got %v", score)
	}
	if evals <= 0 {
		t.Errorf("expected evaluations to be counted, got %v", evals)
	}
}

func TestTunerLogsEvaluations(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "optimize_log.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	params := NewParamVector()
	tn := &tuner{
		params:      params,
		evaluator:   NewFitnessEvaluator(params, []int64{7}, smallConfig(t), 0),
		log:         f,
		bestFitness: 1e9,
	}
	x := params.Normalize(params.DefaultVector())
	tn.fitness(x)
	tn.fitness(x)

	if tn.evals != 2 {
		t.Errorf("expected 2 evals, got %d", tn.evals)
	}
	if tn.best == nil || tn.bestFitness >= 1e9 {
		t.Errorf("expected a best point, got %v (%v)", tn.best, tn.bestFitness)
	}

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "eval,fitness,score,evaluations,pool_size") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "2,") {
		t.Errorf("expected second row to be eval 2, got %q", lines[2])
	}
}
