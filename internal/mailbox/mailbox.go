// Package mailbox provides an unbounded FIFO with a channel front-end.
// Push never blocks, which lets transports and the session queue accept
// work from callbacks without risking a deadlock on a full channel.
package mailbox

import (
	"context"
	"sync"

	"github.com/aretw0/lifecycle"
)

// Mailbox is an unbounded queue drained into Out by one pump goroutine.
type Mailbox[T any] struct {
	mu      sync.Mutex
	pending []T
	closed  bool
	wake    chan struct{}
	out     chan T
	stop    chan struct{}
}

// New starts the pump and returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
		stop: make(chan struct{}),
	}
	lifecycle.Go(context.Background(), m.pump)
	return m
}

// Push enqueues v. It reports false once the mailbox is closed.
func (m *Mailbox[T]) Push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.pending = append(m.pending, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// Out delivers items in push order. It is closed after Close.
func (m *Mailbox[T]) Out() <-chan T { return m.out }

// Len returns the number of items not yet handed to Out.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Close discards pending items and closes Out. Safe to call twice.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.pending = nil
	m.mu.Unlock()
	close(m.stop)
}

func (m *Mailbox[T]) pump(ctx context.Context) error {
	defer close(m.out)
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil
		}
		if len(m.pending) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.stop:
				return nil
			}
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		select {
		case m.out <- next:
		case <-m.stop:
			return nil
		}
	}
}
