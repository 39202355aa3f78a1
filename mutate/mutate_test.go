package mutate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/rng"
)

func TestScalarRespectsChance(t *testing.T) {
	r := rng.New(1)

	v, ok := Scalar(5, Factor{Chance: 0, MaxDistance: 1, Absolute: true}, r)
	if ok || v != 5 {
		t.Errorf("expected no change, got %v (changed=%v)", v, ok)
	}

	for i := 0; i < 100; i++ {
		v, ok = Scalar(5, Factor{Chance: 1, MaxDistance: 0.5, Absolute: true}, r)
		if !ok {
			t.Fatal("expected a mutation with chance 1")
		}
		if math.Abs(v-5) > 0.5 {
			t.Fatalf("expected change within 0.5, got %v", v)
		}
	}
}

func TestScalarRelativeDistance(t *testing.T) {
	r := rng.New(2)
	f := Factor{Chance: 1, MaxDistance: 0.1}
	for i := 0; i < 100; i++ {
		v, _ := Scalar(200, f, r)
		if math.Abs(v-200) > 20 {
			t.Fatalf("expected change within 10%%, got %v", v)
		}
	}

	// Zero still moves under a relative factor.
	moved := false
	for i := 0; i < 10; i++ {
		if v, _ := Scalar(0, f, r); v != 0 {
			moved = true
		}
	}
	if !moved {
		t.Error("expected zero to move")
	}
}

func TestVectorBoundedDistance(t *testing.T) {
	r := rng.New(3)
	base := r3.Vec{X: 1, Y: 2, Z: 2}
	f := Factor{Chance: 1, MaxDistance: 0.5, Absolute: true}
	for i := 0; i < 100; i++ {
		v, ok := Vector(base, f, r)
		if !ok {
			t.Fatal("expected mutation")
		}
		if d := r3.Norm(r3.Sub(v, base)); d > 0.5+1e-12 {
			t.Fatalf("moved %v, expected at most 0.5", d)
		}
	}
}

func TestFlatClampsAndAlwaysChanges(t *testing.T) {
	r := rng.New(4)
	values := []float64{0, 0.5, 1, 1, 0}
	f := Factor{Chance: 0, MaxDistance: 5, Absolute: true}

	changed := Flat(values, f, 0, 1, r)

	if changed != 1 {
		t.Errorf("expected exactly one forced change, got %d", changed)
	}
	for i, v := range values {
		if v < 0 || v > 1 {
			t.Errorf("value %d out of range: %v", i, v)
		}
	}

	f.Chance = 1
	changed = Flat(values, f, 0, 1, r)
	assert.Equal(t, len(values), changed)
	assert.Equal(t, 0, Flat(nil, f, 0, 1, r))
}

func TestScaleToMax(t *testing.T) {
	values := []float64{0.1, 0.25, 0.5}
	ScaleToMax(values)
	assert.InDeltaSlice(t, []float64{0.2, 0.5, 1}, values, 1e-12)

	zeros := []float64{0, 0}
	ScaleToMax(zeros)
	assert.Equal(t, []float64{0, 0}, zeros)
}
