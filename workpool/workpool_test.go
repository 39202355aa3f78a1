package workpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestEveryTaskRunsOnce(t *testing.T) {
	p := NewRoundRobin(4, 2)

	const n = 1000
	var counts [n]atomic.Int32
	for i := 0; i < n; i++ {
		if err := p.Submit(func() { counts[i].Add(1) }); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()

	for i := range counts {
		if got := counts[i].Load(); got != 1 {
			t.Errorf("task %d ran %d times, expected 1", i, got)
		}
	}
}

func TestSameWorkerPreservesOrder(t *testing.T) {
	p := NewRoundRobin(3, 8)

	var mu sync.Mutex
	var seen []int
	// Every third task lands on worker 0.
	for i := 0; i < 30; i++ {
		task := func() {}
		if i%3 == 0 {
			task = func() {
				mu.Lock()
				seen = append(seen, i)
				mu.Unlock()
			}
		}
		if err := p.Submit(task); err != nil {
			t.Fatal(err)
		}
	}
	p.Stop()

	for j := 1; j < len(seen); j++ {
		if seen[j] < seen[j-1] {
			t.Fatalf("worker 0 ran out of order: %v", seen)
		}
	}
	if len(seen) != 10 {
		t.Errorf("expected 10 tasks on worker 0, got %d", len(seen))
	}
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewRoundRobin(1, 1)
	p.Stop()
	p.Stop()

	if err := p.Submit(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestDefaultWorkerCount(t *testing.T) {
	p := NewRoundRobin(0, 0)
	defer p.Stop()
	if p.Workers() < 1 {
		t.Errorf("expected at least one worker, got %d", p.Workers())
	}
}
