// Package search is a generic stochastic discovery loop: random samples are
// scored, the best survive and are mutated, and the loop keeps going until it
// stops improving, runs out of iterations, or is cancelled.
//
// Scores are vectors where lower is better. Candidates are ordered by Pareto
// rank first and by the sum of their score components second.
package search

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/shipyard/rng"
)

// ErrNoCandidates is returned when the problem produced nothing to rank.
var ErrNoCandidates = errors.New("search: no candidates")

// Problem supplies the three pure functions the loop needs.
type Problem[S any] struct {
	NewSample func(rnd rng.Source) S
	Score     func(sample S) []float64
	Mutate    func(sample S, rnd rng.Source) S
}

// Options bounds the loop.
type Options[S any] struct {
	// PoolSize is the number of candidates per iteration.
	PoolSize int
	// Survivors is how many of the best carry over and get mutated.
	Survivors int
	// FreshFraction of each pool is new random samples.
	FreshFraction float64
	// MaxIterations caps the loop. Zero means no cap.
	MaxIterations int
	// StallIterations stops the loop after that many iterations without a
	// new best. Zero disables the check.
	StallIterations int
	// Parallelism is how many samples are scored at once.
	Parallelism int
	// Seeds join the first pool, used for warm starts.
	Seeds []S
}

// DefaultOptions returns options that suit small numeric genomes.
func DefaultOptions[S any]() Options[S] {
	return Options[S]{
		PoolSize:        60,
		Survivors:       12,
		FreshFraction:   0.1,
		MaxIterations:   400,
		StallIterations: 60,
		Parallelism:     1,
	}
}

// Candidate is a scored sample.
type Candidate[S any] struct {
	Sample    S
	Score     []float64
	Iteration int
}

// Sum returns the total of the score components.
func (c Candidate[S]) Sum() float64 {
	return sum(c.Score)
}

// Callbacks observe progress. Both are optional.
type Callbacks[S any] struct {
	// NewBestFound fires every time the best candidate improves.
	NewBestFound func(best Candidate[S])
	// FinalFound fires once when the loop ends without being cancelled.
	FinalFound func(best Candidate[S])
}

// Result summarizes a finished or cancelled run.
type Result[S any] struct {
	Best        Candidate[S]
	Iterations  int
	Evaluations int
	// BestScores holds the best score sum after each iteration.
	BestScores []float64
}

// Dominates reports whether a is no worse than b in every component and
// strictly better in at least one.
func Dominates(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	strictly := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			strictly = true
		}
	}
	return strictly
}

// Better reports whether a should replace b as the best known candidate.
func Better(a, b []float64) bool {
	if Dominates(a, b) {
		return true
	}
	if Dominates(b, a) {
		return false
	}
	return sum(a) < sum(b)
}

// Discover runs the loop. On cancellation it returns the best candidate seen
// so far together with ctx.Err().
func Discover[S any](ctx context.Context, p Problem[S], opts Options[S], cb Callbacks[S], rnd rng.Source) (Result[S], error) {
	opts = normalize(opts)

	var res Result[S]
	haveBest := false
	stall := 0

	var survivors []Candidate[S]
	for iteration := 0; opts.MaxIterations == 0 || iteration < opts.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			if !haveBest {
				return res, errors.Join(ErrNoCandidates, ctx.Err())
			}
			return res, ctx.Err()
		default:
		}

		samples := nextSamples(p, opts, survivors, iteration, rnd)
		pool := score(p, samples, opts.Parallelism, iteration)
		res.Evaluations += len(pool)
		pool = append(pool, survivors...)

		rank(pool)
		if len(pool) == 0 {
			return res, ErrNoCandidates
		}

		res.Iterations = iteration + 1
		if !haveBest || Better(pool[0].Score, res.Best.Score) {
			res.Best = pool[0]
			haveBest = true
			stall = 0
			if cb.NewBestFound != nil {
				cb.NewBestFound(res.Best)
			}
		} else {
			stall++
		}
		res.BestScores = append(res.BestScores, res.Best.Sum())

		if opts.StallIterations > 0 && stall >= opts.StallIterations {
			break
		}

		n := min(opts.Survivors, len(pool))
		survivors = slices.Clone(pool[:n])
	}

	if !haveBest {
		return res, ErrNoCandidates
	}
	if cb.FinalFound != nil {
		cb.FinalFound(res.Best)
	}
	return res, nil
}

func normalize[S any](opts Options[S]) Options[S] {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	if opts.Survivors < 1 {
		opts.Survivors = 1
	}
	if opts.Survivors > opts.PoolSize {
		opts.Survivors = opts.PoolSize
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	opts.FreshFraction = math.Max(0, math.Min(1, opts.FreshFraction))
	return opts
}

// nextSamples builds the unscored part of the next pool: seeds and random
// samples on the first iteration, mutated survivors plus a few fresh samples
// afterwards. Sample generation is sequential so rnd is never shared.
func nextSamples[S any](p Problem[S], opts Options[S], survivors []Candidate[S], iteration int, rnd rng.Source) []S {
	out := make([]S, 0, opts.PoolSize)

	if iteration == 0 {
		for _, s := range opts.Seeds {
			if len(out) == opts.PoolSize {
				break
			}
			out = append(out, s)
		}
		for len(out) < opts.PoolSize {
			out = append(out, p.NewSample(rnd))
		}
		return out
	}

	target := opts.PoolSize - len(survivors)
	fresh := int(math.Round(float64(target) * opts.FreshFraction))
	for i := 0; len(out) < target-fresh; i++ {
		parent := survivors[i%len(survivors)]
		out = append(out, p.Mutate(parent.Sample, rnd))
	}
	for len(out) < target {
		out = append(out, p.NewSample(rnd))
	}
	return out
}

// score evaluates samples, in parallel when asked. Score must be safe for
// concurrent use when parallelism is above one.
func score[S any](p Problem[S], samples []S, parallelism, iteration int) []Candidate[S] {
	out := make([]Candidate[S], len(samples))
	if parallelism <= 1 || len(samples) < 2 {
		for i, s := range samples {
			out[i] = Candidate[S]{Sample: s, Score: sanitize(p.Score(s)), Iteration: iteration}
		}
		return out
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, parallelism)
	for i, s := range samples {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, s S) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = Candidate[S]{Sample: s, Score: sanitize(p.Score(s)), Iteration: iteration}
		}(i, s)
	}
	wg.Wait()
	return out
}

// sanitize maps NaN components to +Inf so they always rank last.
func sanitize(s []float64) []float64 {
	for i, v := range s {
		if math.IsNaN(v) {
			s[i] = math.Inf(1)
		}
	}
	return s
}

// rank sorts pool by Pareto front, then by score sum within a front.
func rank[S any](pool []Candidate[S]) {
	fronts := paretoFronts(pool)

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	sums := make([]float64, len(pool))
	for i, c := range pool {
		sums[i] = c.Sum()
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if fronts[a] != fronts[b] {
			return fronts[a] - fronts[b]
		}
		switch {
		case sums[a] < sums[b]:
			return -1
		case sums[a] > sums[b]:
			return 1
		}
		return 0
	})

	sorted := make([]Candidate[S], len(pool))
	for i, idx := range order {
		sorted[i] = pool[idx]
	}
	copy(pool, sorted)
}

// paretoFronts returns the front number of each candidate, 0 being the
// non-dominated set.
func paretoFronts[S any](pool []Candidate[S]) []int {
	n := len(pool)
	front := make([]int, n)
	dominatedBy := make([]int, n)
	dominates := make([][]int, n)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			switch {
			case Dominates(pool[i].Score, pool[j].Score):
				dominates[i] = append(dominates[i], j)
				dominatedBy[j]++
			case Dominates(pool[j].Score, pool[i].Score):
				dominates[j] = append(dominates[j], i)
				dominatedBy[i]++
			}
		}
	}

	var current []int
	for i := 0; i < n; i++ {
		if dominatedBy[i] == 0 {
			current = append(current, i)
		}
	}
	for f := 0; len(current) > 0; f++ {
		var next []int
		for _, i := range current {
			front[i] = f
			for _, j := range dominates[i] {
				dominatedBy[j]--
				if dominatedBy[j] == 0 {
					next = append(next, j)
				}
			}
		}
		current = next
	}
	return front
}

func sum(s []float64) float64 {
	return floats.Sum(s)
}
