package thrust

import (
	"context"
	"log/slog"

	"github.com/pthm-cable/shipyard/mutate"
	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/search"
)

// Options tunes a solve.
type Options struct {
	Search   search.Options[Map]
	Mutation mutate.Factor
}

// DefaultOptions touches about 2% of slots per mutation, moving each by up
// to 0.1.
func DefaultOptions() Options {
	return Options{
		Search:   search.DefaultOptions[Map](),
		Mutation: mutate.Factor{Chance: 0.02, MaxDistance: 0.1, Absolute: true},
	}
}

// NewSample returns a map with a uniform random throttle in every slot.
func NewSample(model *Model, rnd rng.Source) Map {
	m := NewMap(model, 0)
	for i := range m.Flattened {
		m.Flattened[i].Percent = rnd.Float64()
	}
	return m
}

// Mutate returns a perturbed copy of m. With normalize set the throttles are
// rescaled so the strongest slot fires at 100%.
func Mutate(m Map, factor mutate.Factor, normalize bool, rnd rng.Source) Map {
	values := m.Percents()
	mutate.Flat(values, factor, 0, 1, rnd)
	if normalize {
		mutate.ScaleToMax(values)
	}
	return m.WithPercents(values)
}

// DiscoverSolution searches for the map with the lowest Score. Mutated maps
// are renormalized so the strongest slot fires at 100%.
func DiscoverSolution(ctx context.Context, model *Model, obj Objective, opts Options, cb search.Callbacks[Map], rnd rng.Source) (search.Result[Map], error) {
	p := problem(model, opts, true, func(m Map) []float64 {
		return []float64{Score(model, obj, m)}
	})
	return discover(ctx, model, p, opts, cb, rnd)
}

// DiscoverSolution2 searches with the [balance, underpowered, inefficiency]
// score vector.
func DiscoverSolution2(ctx context.Context, model *Model, obj Objective, opts Options, cb search.Callbacks[Map], rnd rng.Source) (search.Result[Map], error) {
	p := problem(model, opts, false, func(m Map) []float64 {
		return Score3(model, obj, m)
	})
	return discover(ctx, model, p, opts, cb, rnd)
}

func problem(model *Model, opts Options, normalize bool, score func(Map) []float64) search.Problem[Map] {
	return search.Problem[Map]{
		NewSample: func(r rng.Source) Map { return NewSample(model, r) },
		Score:     score,
		Mutate: func(m Map, r rng.Source) Map {
			return Mutate(m, opts.Mutation, normalize, r)
		},
	}
}

func discover(ctx context.Context, model *Model, p search.Problem[Map], opts Options, cb search.Callbacks[Map], rnd rng.Source) (search.Result[Map], error) {
	// Seeds from an older model may no longer line up.
	seeds := opts.Search.Seeds[:0:0]
	for _, s := range opts.Search.Seeds {
		if err := s.Validate(model); err != nil {
			slog.Debug("thrust: dropping warm start", "err", err)
			continue
		}
		seeds = append(seeds, s.Clone())
	}
	opts.Search.Seeds = seeds

	return search.Discover(ctx, p, opts.Search, cb, rnd)
}
