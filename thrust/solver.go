package thrust

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/search"
	"github.com/pthm-cable/shipyard/workpool"
)

// Request is one direction the solver keeps a map ready for.
type Request struct {
	Name     string
	Linear   *r3.Vec
	Rotation *r3.Vec
}

// Solution is the best known map for a request.
type Solution struct {
	Map   Map
	Score []float64
	// Generation counts how many times the solver has been reset.
	Generation int
	Final      bool
}

// SolutionSolver keeps a thrust map ready for each of a fixed set of
// requests. Destroying or repairing a thruster, or moving the center of
// mass, only marks it dirty. The next Update cancels the solves in flight and
// starts new ones seeded with the previous best maps.
type SolutionSolver struct {
	mu           sync.Mutex
	thrusters    []Thruster
	centerOfMass r3.Vec
	requests     []Request
	opts         Options
	pool         *workpool.RoundRobin
	seed         uint64

	model      *Model
	dirty      bool
	generation int
	cancel     context.CancelFunc
	inflight   sync.WaitGroup
	best       []*Solution
	unsubs     []func()
	closed     bool
}

// NewSolutionSolver subscribes to the thrusters' damage witnesses and returns
// a dirty solver. Solves run on pool, which the caller owns. seed 0 seeds
// every solve randomly.
func NewSolutionSolver(thrusters []Thruster, centerOfMass r3.Vec, requests []Request, opts Options, pool *workpool.RoundRobin, seed uint64) *SolutionSolver {
	s := &SolutionSolver{
		thrusters:    append([]Thruster(nil), thrusters...),
		centerOfMass: centerOfMass,
		requests:     append([]Request(nil), requests...),
		opts:         opts,
		pool:         pool,
		seed:         seed,
		dirty:        true,
		best:         make([]*Solution, len(requests)),
	}
	for _, t := range s.thrusters {
		if t.Damage != nil {
			s.unsubs = append(s.unsubs, t.Damage.Subscribe(func(bool) { s.MarkDirty() }))
		}
	}
	return s
}

// MarkDirty flags the current solutions as stale.
func (s *SolutionSolver) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Dirty reports whether the next Update will restart the solves.
func (s *SolutionSolver) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// SetCenterOfMass records a mass change and marks the solver dirty.
func (s *SolutionSolver) SetCenterOfMass(com r3.Vec) {
	s.mu.Lock()
	s.centerOfMass = com
	s.dirty = true
	s.mu.Unlock()
}

// SetThrusters swaps in a new thruster layout, moving the damage
// subscriptions over, and marks the solver dirty. Previous bests still seed
// the next generation when the slot layout is unchanged.
func (s *SolutionSolver) SetThrusters(thrusters []Thruster) {
	var unsubs []func()
	for _, t := range thrusters {
		if t.Damage != nil {
			unsubs = append(unsubs, t.Damage.Subscribe(func(bool) { s.MarkDirty() }))
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		return
	}
	s.thrusters = append([]Thruster(nil), thrusters...)
	s.unsubs, unsubs = unsubs, s.unsubs
	s.dirty = true
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Model returns the model the current generation solves against.
func (s *SolutionSolver) Model() *Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Update restarts the solves if the solver is dirty and reports whether it
// did. Solves stop when ctx is cancelled, when the next reset happens, or
// when Close is called.
func (s *SolutionSolver) Update(ctx context.Context) (bool, error) {
	tasks, err := s.reset(ctx)
	if err != nil || tasks == nil {
		return false, err
	}
	// Submit outside the lock: a full queue blocks until workers, which
	// report back through store, make room.
	for i, task := range tasks {
		if err := s.pool.Submit(task); err != nil {
			for range tasks[i:] {
				s.inflight.Done()
			}
			return true, err
		}
	}
	return true, nil
}

// reset starts a new generation and returns its solve tasks, or nil when
// the solver is clean.
func (s *SolutionSolver) reset(ctx context.Context) ([]workpool.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, workpool.ErrStopped
	}
	if !s.dirty {
		return nil, nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	genCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.generation++
	s.dirty = false
	s.model = NewModel(s.thrusters, s.centerOfMass)

	gen := s.generation
	model := s.model
	slog.Debug("thrust: solver reset", "generation", gen, "requests", len(s.requests), "slots", model.Len())

	tasks := []workpool.Task{}
	for i, req := range s.requests {
		obj, err := NewObjective(model, req.Linear, req.Rotation)
		if err != nil {
			slog.Warn("thrust: skipping request", "request", req.Name, "err", err)
			continue
		}

		opts := s.opts
		opts.Search.Seeds = nil
		if prev := s.best[i]; prev != nil {
			opts.Search.Seeds = []Map{prev.Map.Clone()}
		}

		s.inflight.Add(1)
		tasks = append(tasks, s.solveTask(genCtx, gen, i, req, model, obj, opts))
	}
	return tasks, nil
}

func (s *SolutionSolver) solveTask(ctx context.Context, gen, i int, req Request, model *Model, obj Objective, opts Options) workpool.Task {
	seed := s.seed
	if seed != 0 {
		seed += uint64(gen)<<20 + uint64(i) + 1
	}
	return func() {
		defer s.inflight.Done()
		id := uuid.New()
		log := slog.With("solve", id.String(), "request", req.Name, "generation", gen)
		log.Debug("thrust: solve started")

		cb := search.Callbacks[Map]{
			NewBestFound: func(c search.Candidate[Map]) { s.store(gen, i, c, false) },
			FinalFound:   func(c search.Candidate[Map]) { s.store(gen, i, c, true) },
		}
		res, err := DiscoverSolution2(ctx, model, obj, opts, cb, rng.New(seed))
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			log.Debug("thrust: solve cancelled", "iterations", res.Iterations)
		case err != nil:
			log.Warn("thrust: solve failed", "err", err)
		default:
			log.Debug("thrust: solve finished", "iterations", res.Iterations, "evaluations", res.Evaluations, "score", res.Best.Sum())
		}
	}
}

// store records c if it still belongs to the current generation.
func (s *SolutionSolver) store(gen, i int, c search.Candidate[Map], final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.best[i] = &Solution{Map: c.Sample.Clone(), Score: append([]float64(nil), c.Score...), Generation: gen, Final: final}
}

// Wait blocks until every solve started so far has returned.
func (s *SolutionSolver) Wait() {
	s.inflight.Wait()
}

// Best returns the best known solution for request i.
func (s *SolutionSolver) Best(i int) (Solution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.best) || s.best[i] == nil {
		return Solution{}, false
	}
	sol := *s.best[i]
	sol.Map = sol.Map.Clone()
	return sol, true
}

// Nearest returns the solution for the request whose linear direction is
// closest to dir.
func (s *SolutionSolver) Nearest(dir r3.Vec) (Solution, bool) {
	s.mu.Lock()
	bestIdx, bestDot := -1, math.Inf(-1)
	for i, req := range s.requests {
		if req.Linear == nil || s.best[i] == nil {
			continue
		}
		if d := r3.Dot(geom.SafeUnit(*req.Linear), dir); d > bestDot {
			bestIdx, bestDot = i, d
		}
	}
	s.mu.Unlock()
	if bestIdx < 0 {
		return Solution{}, false
	}
	return s.Best(bestIdx)
}

// Close cancels the solves in flight, waits for them and drops the damage
// subscriptions. The pool is left running.
func (s *SolutionSolver) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.inflight.Wait()
}
