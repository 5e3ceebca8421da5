package crdt

import "sync"

// serial delivers items to fn one at a time, in push order, without holding
// any document lock. Whoever finds the queue idle drains it, so a callback
// that writes back to the document only enqueues and never deadlocks.
type serial[T any] struct {
	fn func(T)

	mu       sync.Mutex
	pending  []T
	draining bool
	closed   bool
}

func newSerial[T any](fn func(T)) *serial[T] {
	return &serial[T]{fn: fn}
}

func (s *serial[T]) push(item T) {
	s.mu.Lock()
	if !s.closed {
		s.pending = append(s.pending, item)
	}
	s.mu.Unlock()
}

func (s *serial[T]) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 && !s.closed {
		item := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		s.fn(item)
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

func (s *serial[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.mu.Unlock()
}
