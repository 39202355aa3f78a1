package thrust

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/container"
	"github.com/pthm-cable/shipyard/damage"
	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/search"
	"github.com/pthm-cable/shipyard/workpool"
)

// testShip has a fore/aft pair along Z with no torque, and a pair of +Y
// thrusters on either side of the center whose torques cancel.
func testShip(states ...*damage.State) []Thruster {
	ts := []Thruster{
		{Position: r3.Vec{Z: -1}, Directions: []r3.Vec{{Z: 1}}, MaxForce: 10},
		{Position: r3.Vec{Z: 1}, Directions: []r3.Vec{{Z: -1}}, MaxForce: 10},
		{Position: r3.Vec{X: 1}, Directions: []r3.Vec{{Y: 1}}, MaxForce: 10},
		{Position: r3.Vec{X: -1}, Directions: []r3.Vec{{Y: 1}}, MaxForce: 10},
	}
	for i, s := range states {
		if s != nil {
			ts[i].Damage = s
		}
	}
	return ts
}

func mapOf(model *Model, percents ...float64) Map {
	return NewMap(model, 0).WithPercents(percents)
}

func vec(x, y, z float64) *r3.Vec {
	return &r3.Vec{X: x, Y: y, Z: z}
}

func quickOptions() Options {
	opts := DefaultOptions()
	opts.Search.PoolSize = 30
	opts.Search.Survivors = 6
	opts.Search.MaxIterations = 200
	opts.Search.StallIterations = 40
	return opts
}

// ---------- model ----------

func TestNewModelContributions(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})

	require.Equal(t, 4, model.Len())
	tests := []struct {
		force, torque r3.Vec
	}{
		{r3.Vec{Z: 10}, r3.Vec{}},
		{r3.Vec{Z: -10}, r3.Vec{}},
		{r3.Vec{Y: 10}, r3.Vec{Z: 10}},
		{r3.Vec{Y: 10}, r3.Vec{Z: -10}},
	}
	for i, tt := range tests {
		c := model.Contributions[i]
		if c.TranslationForce != tt.force || c.Torque != tt.torque {
			t.Errorf("contribution %d: expected %v/%v, got %v/%v", i, tt.force, tt.torque, c.TranslationForce, c.Torque)
		}
	}
	assert.InDelta(t, 10, model.Contributions[2].TorqueLength, 1e-12)
	assert.Equal(t, r3.Vec{Z: 1}, model.Contributions[2].TorqueUnit)
}

func TestNewModelZeroesDestroyedThrusters(t *testing.T) {
	hit := damage.NewState()
	hit.Destroy()
	model := NewModel(testShip(nil, nil, hit), r3.Vec{})

	require.Equal(t, 4, model.Len())
	c := model.Contributions[2]
	assert.True(t, c.Destroyed)
	assert.Equal(t, r3.Vec{}, c.TranslationForce)
	assert.Equal(t, r3.Vec{}, c.Torque)
	assert.False(t, model.Contributions[3].Destroyed)
}

func TestMaxReach(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	assert.InDelta(t, 20, model.MaxTranslation(r3.Vec{Y: 1}), 1e-12)
	assert.InDelta(t, 10, model.MaxTranslation(r3.Vec{Z: -1}), 1e-12)
	assert.InDelta(t, 10, model.MaxTorque(r3.Vec{Z: 1}), 1e-12)
}

// ---------- map ----------

func TestMapValidate(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})

	require.NoError(t, mapOf(model, 0, 0.5, 1, 0).Validate(model))

	short := Map{Flattened: NewMap(model, 0).Flattened[:3]}
	swapped := NewMap(model, 0)
	swapped.Flattened[0], swapped.Flattened[1] = swapped.Flattened[1], swapped.Flattened[0]
	tooHot := mapOf(model, 0, 0, 1.5, 0)

	for name, m := range map[string]Map{"short": short, "swapped": swapped, "out of range": tooHot} {
		t.Run(name, func(t *testing.T) {
			if err := m.Validate(model); !errors.Is(err, ErrMapMismatch) {
				t.Errorf("expected ErrMapMismatch, got %v", err)
			}
		})
	}
}

func TestMapNetAndUsed(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	m := mapOf(model, 0, 0.5, 1, 0)

	force, torque := m.Net(model)
	assert.Equal(t, r3.Vec{Y: 10, Z: -5}, force)
	assert.Equal(t, r3.Vec{Z: 10}, torque)
	assert.Equal(t, []int{1, 2}, m.UsedThrusters())
}

// ---------- objective ----------

func TestNewObjective(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})

	obj, err := NewObjective(model, vec(0, 3, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{Y: 1}, *obj.Linear)
	assert.Nil(t, obj.Rotation)
	assert.InDelta(t, 20, obj.MaxLinear, 1e-12)

	_, err = NewObjective(model, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyObjective)
	_, err = NewObjective(model, vec(0, 0, 0), vec(0, 0, 0))
	assert.ErrorIs(t, err, ErrEmptyObjective)
}

func TestObjectiveFromAcceleration(t *testing.T) {
	inertia := DiagonalInertia(1, 2, 3)

	lin, rot, err := ObjectiveFromAcceleration(2, inertia, vec(1, 0, 0), vec(1, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 2}, *lin)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, *rot)

	alpha, err := AngularAcceleration(inertia, *rot)
	require.NoError(t, err)
	assert.InDelta(t, 1, alpha.X, 1e-12)
	assert.InDelta(t, 1, alpha.Y, 1e-12)
	assert.InDelta(t, 1, alpha.Z, 1e-12)

	_, _, err = ObjectiveFromAcceleration(1, nil, nil, vec(1, 0, 0))
	assert.Error(t, err)
}

// ---------- scoring ----------

func TestZeroThrustGuard(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 1, 0), vec(0, 0, 1))
	require.NoError(t, err)

	// Fore and aft cancel exactly.
	for _, m := range []Map{NewMap(model, 0), mapOf(model, 1, 1, 0, 0)} {
		if got := Score(model, obj, m); got != MaxError {
			t.Errorf("expected MaxError, got %v", got)
		}
		assert.Equal(t, []float64{MaxError, MaxError, MaxError}, Score3(model, obj, m))
	}
}

func TestScore3PerfectMap(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 0, 1), nil)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, 0, 0}, Score3(model, obj, mapOf(model, 1, 0, 0, 0)), 1e-12)
	assert.InDelta(t, 0, Score(model, obj, mapOf(model, 1, 0, 0, 0)), 1e-12)
}

func TestScore3PenalizesOpposingThrusters(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 0, 1), nil)
	require.NoError(t, err)

	got := Score3(model, obj, mapOf(model, 1, 0.5, 0, 0))

	assert.InDelta(t, 0, got[0], 1e-12, "still points the right way")
	assert.InDelta(t, 0.5, got[1], 1e-12, "half the reachable force")
	assert.InDelta(t, 1.0/3, got[2], 1e-12, "a third of the spent force opposes")
}

func TestScoreBalanceGrowsWithSidewaysOutput(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 0, 1), nil)
	require.NoError(t, err)

	small := Score3(model, obj, mapOf(model, 1, 0, 0.1, 0.1))[0]
	large := Score3(model, obj, mapOf(model, 1, 0, 1, 1))[0]
	if !(small < large) {
		t.Errorf("expected more sideways force to score worse: %v vs %v", small, large)
	}
}

// ---------- mutation ----------

func TestMutateCopiesAndClamps(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	r := rng.New(1)
	m := mapOf(model, 0.2, 0.4, 0.1, 0.3)

	for i := 0; i < 50; i++ {
		next := Mutate(m, DefaultOptions().Mutation, true, r)
		require.NoError(t, next.Validate(model))
		assert.InDelta(t, 1, floats.Max(next.Percents()), 1e-12)
	}
	assert.Equal(t, []float64{0.2, 0.4, 0.1, 0.3}, m.Percents())
}

func TestNewSampleIsValid(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	m := NewSample(model, rng.New(2))
	require.NoError(t, m.Validate(model))
}

// ---------- discovery ----------

func TestDiscoverSolution2FindsSideThrusters(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 1, 0), nil)
	require.NoError(t, err)

	res, err := DiscoverSolution2(context.Background(), model, obj, quickOptions(), search.Callbacks[Map]{}, rng.New(3))
	require.NoError(t, err)

	force, _ := res.Best.Sample.Net(model)
	assert.Greater(t, r3.Dot(r3.Unit(force), r3.Vec{Y: 1}), 0.99)
	assert.Less(t, res.Best.Sum(), 0.1)
	t.Logf("best %v score %v after %d iterations", res.Best.Sample.Percents(), res.Best.Score, res.Iterations)
}

func TestDiscoverSolutionLegacy(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 0, -1), nil)
	require.NoError(t, err)

	final := false
	res, err := DiscoverSolution(context.Background(), model, obj, quickOptions(), search.Callbacks[Map]{
		FinalFound: func(search.Candidate[Map]) { final = true },
	}, rng.New(4))
	require.NoError(t, err)

	assert.True(t, final)
	require.Len(t, res.Best.Score, 1)
	assert.Less(t, res.Best.Score[0], 0.1)
}

func TestDiscoverDropsMismatchedSeeds(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 1, 0), nil)
	require.NoError(t, err)

	opts := quickOptions()
	opts.Search.MaxIterations = 1
	opts.Search.Seeds = []Map{{Flattened: []Element{{Index: 0, Percent: 1}}}, mapOf(model, 0, 0, 1, 1)}

	res, err := DiscoverSolution2(context.Background(), model, obj, opts, search.Callbacks[Map]{}, rng.New(5))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, res.Best.Score, 1e-12)
}

func TestPolishNeverWorsens(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	obj, err := NewObjective(model, vec(0, 1, 0), vec(0, 0, 1))
	require.NoError(t, err)
	start := mapOf(model, 0.5, 0.5, 0.5, 0.5)
	startScore := floats.Sum(Score3(model, obj, start))

	polished, score, err := Polish(model, obj, start, DefaultPolishSettings())
	require.NoError(t, err)
	require.NoError(t, polished.Validate(model))

	assert.LessOrEqual(t, score, startScore)
	assert.InDelta(t, floats.Sum(Score3(model, obj, polished)), score, 1e-9)
	t.Logf("polish: %.4f -> %.4f", startScore, score)
}

// ---------- fuel ----------

func TestFireDrainsFuel(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	tank, err := container.NewContainerWithMax(100)
	require.NoError(t, err)
	require.NoError(t, tank.SetQuantityCurrent(100))

	burn, err := Fire(model, mapOf(model, 1, 0, 0, 0), tank, 1, 0.1)
	require.NoError(t, err)

	assert.InDelta(t, 1, burn.Fuel, 1e-12)
	assert.InDelta(t, 99, tank.QuantityCurrent(), 1e-12)
	assert.Equal(t, r3.Vec{Z: 10}, burn.Force)
	assert.InDelta(t, 1, burn.Throttle, 1e-12)
}

func TestFireThrottlesOnScarcity(t *testing.T) {
	model := NewModel(testShip(), r3.Vec{})
	tank, err := container.NewContainerWithMax(100)
	require.NoError(t, err)
	require.NoError(t, tank.SetQuantityCurrent(0.5))

	burn, err := Fire(model, mapOf(model, 1, 0, 0, 0), tank, 1, 0.1)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, burn.Throttle, 1e-12)
	assert.InDelta(t, 5, burn.Force.Z, 1e-9)
	assert.InDelta(t, 0, tank.QuantityCurrent(), 1e-12)
}

func TestFuelUsageSkipsDestroyed(t *testing.T) {
	hit := damage.NewState()
	hit.Destroy()
	model := NewModel(testShip(hit), r3.Vec{})

	assert.InDelta(t, 0, FuelUsage(model, mapOf(model, 1, 0, 0, 0), 1, 1), 1e-12)
	assert.InDelta(t, 5, FuelUsage(model, mapOf(model, 1, 0.5, 0, 0), 1, 1), 1e-12)
}

// ---------- solution solver ----------

func TestSolutionSolverLifecycle(t *testing.T) {
	pool := workpool.NewRoundRobin(2, 4)
	defer pool.Stop()
	right := damage.NewState()
	requests := []Request{
		{Name: "up", Linear: vec(0, 1, 0)},
		{Name: "yaw", Rotation: vec(0, 0, 1)},
	}
	s := NewSolutionSolver(testShip(nil, nil, right), r3.Vec{}, requests, quickOptions(), pool, 7)
	defer s.Close()

	started, err := s.Update(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	s.Wait()

	up, ok := s.Best(0)
	require.True(t, ok)
	assert.Equal(t, 1, up.Generation)
	assert.True(t, up.Final)
	_, ok = s.Best(1)
	require.True(t, ok)

	started, err = s.Update(context.Background())
	require.NoError(t, err)
	assert.False(t, started, "clean solver must not restart")

	right.Destroy()
	assert.True(t, s.Dirty())
	started, err = s.Update(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	s.Wait()

	assert.True(t, s.Model().Contributions[2].Destroyed)
	yaw, ok := s.Best(1)
	require.True(t, ok)
	assert.Equal(t, 2, yaw.Generation)

	near, ok := s.Nearest(r3.Vec{Y: 0.9, X: 0.1})
	require.True(t, ok)
	assert.Equal(t, 2, near.Generation)
}

func TestSolutionSolverWarmStart(t *testing.T) {
	pool := workpool.NewRoundRobin(1, 1)
	defer pool.Stop()
	requests := []Request{{Name: "up-yaw", Linear: vec(0, 1, 0), Rotation: vec(0, 0, 1)}}
	s := NewSolutionSolver(testShip(), r3.Vec{}, requests, quickOptions(), pool, 11)
	defer s.Close()

	_, err := s.Update(context.Background())
	require.NoError(t, err)
	s.Wait()
	first, ok := s.Best(0)
	require.True(t, ok)

	s.MarkDirty()
	_, err = s.Update(context.Background())
	require.NoError(t, err)
	s.Wait()
	second, ok := s.Best(0)
	require.True(t, ok)

	assert.Equal(t, 2, second.Generation)
	if floats.Sum(second.Score) > floats.Sum(first.Score)+1e-12 {
		t.Errorf("warm started generation got worse: %v -> %v", first.Score, second.Score)
	}
}

func TestSolutionSolverCloseCancelsAndUnsubscribes(t *testing.T) {
	pool := workpool.NewRoundRobin(1, 1)
	defer pool.Stop()
	state := damage.NewState()
	opts := quickOptions()
	opts.Search.MaxIterations = 0
	opts.Search.StallIterations = 0
	s := NewSolutionSolver(testShip(state), r3.Vec{}, []Request{{Name: "up", Linear: vec(0, 1, 0)}}, opts, pool, 13)
	require.Equal(t, 1, state.SubscriberCount())

	_, err := s.Update(context.Background())
	require.NoError(t, err)
	s.Close()

	assert.Equal(t, 0, state.SubscriberCount())
	_, err = s.Update(context.Background())
	assert.ErrorIs(t, err, workpool.ErrStopped)
}

func TestSolutionSolverSetThrustersMovesSubscriptions(t *testing.T) {
	pool := workpool.NewRoundRobin(1, 2)
	defer pool.Stop()
	old, moved := damage.NewState(), damage.NewState()
	s := NewSolutionSolver(testShip(old), r3.Vec{}, []Request{{Name: "up", Linear: vec(0, 1, 0)}}, quickOptions(), pool, 17)
	defer s.Close()

	_, err := s.Update(context.Background())
	require.NoError(t, err)
	s.Wait()
	require.False(t, s.Dirty())

	layout := testShip(moved)
	layout[2].Position = r3.Vec{X: 2}
	s.SetThrusters(layout)
	assert.True(t, s.Dirty())
	assert.Equal(t, 0, old.SubscriberCount())
	assert.Equal(t, 1, moved.SubscriberCount())

	_, err = s.Update(context.Background())
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, r3.Vec{X: 2}, s.Model().Thrusters[2].Position)

	old.Destroy()
	assert.False(t, s.Dirty(), "old witness must be detached")
	moved.Destroy()
	assert.True(t, s.Dirty())
}
