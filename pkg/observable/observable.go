// Package observable provides a latest-value broadcast subject.
//
// A Subject remembers the last published value and replays it to every new
// subscriber, so late subscribers always start from current state. Publishing
// never blocks: when a subscriber's buffer is full its oldest pending value is
// discarded in favour of the new one, which conflates slow consumers onto the
// most recent state.
package observable

import (
	"sync"
)

// Subject is a latest-value, replaying, non-blocking broadcaster.
type Subject[T any] struct {
	mu     sync.Mutex
	latest T
	has    bool
	subs   map[uint64]chan T
	nextID uint64
	equal  func(a, b T) bool
	closed bool
}

// Option configures a Subject.
type Option[T any] func(*Subject[T])

// WithEqual suppresses publishes equal to the latest value.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Subject[T]) {
		s.equal = equal
	}
}

// WithInitial seeds the subject so the first subscriber receives v.
func WithInitial[T any](v T) Option[T] {
	return func(s *Subject[T]) {
		s.latest = v
		s.has = true
	}
}

// New creates a Subject.
func New[T any](opts ...Option[T]) *Subject[T] {
	s := &Subject[T]{
		subs: make(map[uint64]chan T),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish records v as the latest value and offers it to every subscriber.
// It returns false when the subject is closed or v was suppressed as a duplicate.
func (s *Subject[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.has && s.equal != nil && s.equal(s.latest, v) {
		return false
	}

	s.latest = v
	s.has = true
	for _, ch := range s.subs {
		offer(ch, v)
	}
	return true
}

// Subscribe registers a subscriber with the given buffer size (minimum 1).
// The latest value, if any, is delivered immediately. The returned cancel
// function unregisters and closes the channel; it is safe to call more than once.
func (s *Subject[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.has {
		ch <- s.latest
	}
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Latest returns the most recently published value.
func (s *Subject[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

// Subscribers returns the number of active subscribers.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// offer delivers v without blocking, evicting the oldest pending value if needed.
// Callers hold s.mu, so no other sender races for the freed slot.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
