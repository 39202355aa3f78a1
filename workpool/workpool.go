// Package workpool runs submitted tasks on a fixed set of persistent workers.
package workpool

import (
	"errors"
	"runtime"
	"sync"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("workpool: stopped")

// Task is a unit of work.
type Task func()

// RoundRobin hands tasks to workers in turn. Each worker owns a queue, so
// tasks given to the same worker run in submission order.
type RoundRobin struct {
	mu      sync.Mutex
	queues  []chan Task
	next    int
	stopped bool
	wg      sync.WaitGroup
}

// NewRoundRobin starts workers goroutines, each with a queue of depth slots.
// workers <= 0 uses GOMAXPROCS.
func NewRoundRobin(workers, depth int) *RoundRobin {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if depth < 1 {
		depth = 1
	}

	p := &RoundRobin{queues: make([]chan Task, workers)}
	for i := range p.queues {
		p.queues[i] = make(chan Task, depth)
		p.wg.Add(1)
		go p.worker(p.queues[i])
	}
	return p
}

// Workers returns the number of workers.
func (p *RoundRobin) Workers() int {
	return len(p.queues)
}

// Submit queues task on the next worker. It blocks while that worker's queue
// is full.
func (p *RoundRobin) Submit(task Task) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	q := p.queues[p.next]
	p.next = (p.next + 1) % len(p.queues)
	// Sending under the lock keeps Stop from closing q mid-send.
	q <- task
	p.mu.Unlock()
	return nil
}

// Stop closes every queue, lets the workers drain what was already queued,
// and waits for them. It is safe to call more than once.
func (p *RoundRobin) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *RoundRobin) worker(q <-chan Task) {
	defer p.wg.Done()
	for task := range q {
		task()
	}
}
