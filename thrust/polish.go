package thrust

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// PolishSettings tunes the CMA-ES refinement.
type PolishSettings struct {
	Evaluations  int
	InitStepSize float64
	// Population 0 lets CMA-ES pick its default size.
	Population int
}

// DefaultPolishSettings returns a short refinement budget.
func DefaultPolishSettings() PolishSettings {
	return PolishSettings{Evaluations: 400, InitStepSize: 0.1}
}

// Polish refines start with CMA-ES over the continuous throttle space,
// minimizing the sum of the Score3 components. Out-of-range throttles are
// clamped before scoring. It returns whichever of start and the refined map
// scores lower.
func Polish(model *Model, obj Objective, start Map, settings PolishSettings) (Map, float64, error) {
	if err := start.Validate(model); err != nil {
		return Map{}, 0, err
	}
	startScore := floats.Sum(Score3(model, obj, start))
	if len(start.Flattened) == 0 || settings.Evaluations <= 0 {
		return start.Clone(), startScore, nil
	}

	eval := func(x []float64) float64 {
		return floats.Sum(Score3(model, obj, start.WithPercents(clampUnit(x))))
	}
	problem := optimize.Problem{Func: eval}
	opts := &optimize.Settings{
		FuncEvaluations: settings.Evaluations,
		Concurrent:      0,
	}
	method := &optimize.CmaEsChol{
		InitStepSize: settings.InitStepSize,
		Population:   settings.Population,
	}

	result, err := optimize.Minimize(problem, start.Percents(), opts, method)
	if result == nil || len(result.X) != len(start.Flattened) {
		return start.Clone(), startScore, err
	}

	refined := start.WithPercents(clampUnit(result.X))
	refinedScore := eval(result.X)
	if refinedScore < startScore {
		return refined, refinedScore, nil
	}
	return start.Clone(), startScore, nil
}

func clampUnit(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(0, math.Min(1, v))
	}
	return out
}
