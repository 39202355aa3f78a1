// Package damage provides the destroyed/resurrected capability that parts expose
// to the resource and thrust layers.
package damage

import "sync"

// Witness reports whether a part is destroyed and notifies on transitions.
type Witness interface {
	IsDestroyed() bool
	// Subscribe registers fn for destroyed/resurrected transitions. The returned
	// func removes the subscription; calling it more than once is a no-op.
	Subscribe(fn func(destroyed bool)) (unsubscribe func())
}

// State is a thread-safe Witness driven by an external damage system.
type State struct {
	mu          sync.Mutex
	destroyed   bool
	nextID      uint64
	subscribers map[uint64]func(bool)
}

var _ Witness = (*State)(nil)

// NewState creates an intact state.
func NewState() *State {
	return &State{subscribers: make(map[uint64]func(bool))}
}

// IsDestroyed reports the current state.
func (s *State) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Subscribe implements Witness.
func (s *State) Subscribe(fn func(destroyed bool)) func() {
	s.mu.Lock()
	if s.subscribers == nil {
		s.subscribers = make(map[uint64]func(bool))
	}
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// SubscriberCount returns the number of live subscriptions.
func (s *State) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Destroy marks the part destroyed. Subscribers are only told about transitions.
func (s *State) Destroy() {
	s.set(true)
}

// Resurrect marks the part intact again.
func (s *State) Resurrect() {
	s.set(false)
}

func (s *State) set(destroyed bool) {
	s.mu.Lock()
	if s.destroyed == destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = destroyed
	fns := make([]func(bool), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	// Notify outside the lock so listeners may query IsDestroyed.
	for _, fn := range fns {
		fn(destroyed)
	}
}
