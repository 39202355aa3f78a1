package rng

import "testing"

func TestNewIsDeterministic(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 10; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d: expected equal values, got %v and %v", i, x, y)
		}
	}
}

func TestChanceBounds(t *testing.T) {
	r := New(1)
	for i := 0; i < 100; i++ {
		if Chance(r, 0) {
			t.Fatal("p=0 should never fire")
		}
		if !Chance(r, 1) {
			t.Fatal("p=1 should always fire")
		}
	}
}

func TestWeightedSkipsZeroWeights(t *testing.T) {
	r := New(3)
	counts := make([]int, 4)
	for i := 0; i < 2000; i++ {
		counts[Weighted(r, []float64{0, 1, -5, 3})]++
	}
	if counts[0] != 0 || counts[2] != 0 {
		t.Errorf("zero and negative weights should never be picked: %v", counts)
	}
	// Index 3 carries three times the weight of index 1.
	if counts[3] < 2*counts[1] {
		t.Errorf("expected index 3 to dominate, got %v", counts)
	}
	t.Logf("weighted counts: %v", counts)
}

func TestWeightedFallsBackToUniform(t *testing.T) {
	r := New(5)
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		seen[Weighted(r, []float64{0, 0, 0})] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all indices to appear, got %v", seen)
	}
	if Weighted(r, nil) != -1 {
		t.Error("expected -1 for empty weights")
	}
}

func TestShufflePermutes(t *testing.T) {
	r := New(9)
	vals := []int{0, 1, 2, 3, 4, 5}
	Shuffle(r, len(vals), func(i, j int) { vals[i], vals[j] = vals[j], vals[i] })
	seen := make(map[int]bool)
	for _, v := range vals {
		seen[v] = true
	}
	if len(seen) != 6 {
		t.Errorf("shuffle lost elements: %v", vals)
	}
}
