// Package mailbox provides an unbounded, non-blocking FIFO for feeding
// commands into a single-goroutine event loop.
//
// Producers call Put from any goroutine and never block. The loop selects on
// Ready and then drains everything queued so far with Drain:
//
//	for {
//		select {
//		case <-mb.Ready():
//			for _, cmd := range mb.Drain() {
//				handle(cmd)
//			}
//		case <-ctx.Done():
//			return
//		}
//	}
package mailbox

import "sync"

// Mailbox is an unbounded FIFO with a level-triggered readiness channel.
type Mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put enqueues v. It never blocks.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever items may be waiting.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Drain removes and returns every queued item in arrival order.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
