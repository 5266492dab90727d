// Package buffer provides generic, thread-safe bounded buffers with overflow policies.
//
// CircularBuffer is a fixed-size ring that never blocks writers: on overflow it either
// evicts the oldest item or discards the incoming one. Statistics are always collected
// and Prometheus metrics can be enabled with WithMetrics().
package buffer

// Buffer represents a generic bounded buffer.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior on a full buffer depends on
	// the overflow policy. Returns an error only when the buffer is closed.
	Write(item T) error

	// Read retrieves and removes the oldest item.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Peek retrieves the oldest item without removing it.
	Peek() (T, bool)

	// Snapshot returns a copy of the buffered items, oldest first, without removing them.
	// The returned slice is never shared with the buffer.
	Snapshot() []T

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts down the buffer. Subsequent writes fail.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for the new one.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the incoming item when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped due to the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a new circular buffer with the specified capacity and options.
// Returns an error if metrics registration fails when metrics are requested.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
