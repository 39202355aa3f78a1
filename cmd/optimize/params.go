package main

import (
	"math"

	"github.com/pthm-cable/shipyard/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
	Integer bool    // Rounded when applied
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Discovery loop
			{Name: "pool_size", Path: "search.pool_size", Min: 10, Max: 120, Default: 60, Integer: true},
			{Name: "survivor_frac", Path: "search.survivors", Min: 0.05, Max: 0.5, Default: 0.2},
			{Name: "fresh_fraction", Path: "search.fresh_fraction", Min: 0, Max: 0.4, Default: 0.1},
			// Throttle mutation
			{Name: "mutate_chance", Path: "mutation.thrust.chance", Min: 0.005, Max: 0.3, Default: 0.02},
			{Name: "mutate_distance", Path: "mutation.thrust.max_distance", Min: 0.01, Max: 0.5, Default: 0.1},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := math.Min(math.Max(v[i], spec.Min), spec.Max)
		if spec.Integer {
			val = math.Round(val)
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Search.PoolSize = int(clamped[0])
	cfg.Search.Survivors = max(1, int(math.Round(clamped[1]*clamped[0])))
	cfg.Search.FreshFraction = clamped[2]
	cfg.Mutation.Thrust.Chance = clamped[3]
	cfg.Mutation.Thrust.MaxDistance = clamped[4]
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	survivorFrac := 0.0
	if cfg.Search.PoolSize > 0 {
		survivorFrac = float64(cfg.Search.Survivors) / float64(cfg.Search.PoolSize)
	}
	return []float64{
		float64(cfg.Search.PoolSize),
		survivorFrac,
		cfg.Search.FreshFraction,
		cfg.Mutation.Thrust.Chance,
		cfg.Mutation.Thrust.MaxDistance,
	}
}
