package shaper

import (
	"time"

	"github.com/c360/telemetrystream/message"
)

// Emission is one paced output: a single event, or a batch for the buffer strategy.
type Emission struct {
	Events   []message.Event
	Batch    bool
	Strategy Strategy
	At       time.Time

	// Generation is the Discard count the loop had applied when the emission
	// was produced. Emissions older than the latest Discard carry stale data.
	Generation uint64
}

// Scheduler is the timing discipline of one strategy. Schedulers hold no timers;
// they are driven by explicit timestamps so a single runner timer can serve any
// strategy and every decision is reproducible in tests.
//
// The driver must call Fire for every deadline reported by Next that is not after
// now before offering an event at now.
type Scheduler interface {
	// Strategy identifies the discipline.
	Strategy() Strategy
	// Offer presents an event arriving at now. It returns an emission when the
	// strategy emits on receipt.
	Offer(ev message.Event, now time.Time) (Emission, bool)
	// Next reports the next deadline at which Fire must be called, if any.
	Next() (time.Time, bool)
	// Fire runs the deadline processing due at now.
	Fire(now time.Time) (Emission, bool)
	// Flush releases held state immediately, in this strategy's shape.
	Flush(now time.Time) (Emission, bool)
}

// NewScheduler creates the scheduler for cfg. Fixed-clock strategies anchor
// their window grid at start.
func NewScheduler(cfg Config, start time.Time) Scheduler {
	switch cfg.Strategy {
	case StrategyDebounce:
		return &Debounce{interval: cfg.Interval}
	case StrategyBuffer:
		return &Buffer{interval: cfg.Interval, size: cfg.BufferSize, start: start, windowEnd: start.Add(cfg.Interval)}
	case StrategySample:
		return &Sample{interval: cfg.Interval, start: start, nextTick: start.Add(cfg.Interval)}
	default:
		return &Throttle{interval: cfg.Interval}
	}
}

func single(s Strategy, ev message.Event, at time.Time) Emission {
	return Emission{Events: []message.Event{ev}, Strategy: s, At: at}
}

// nextBoundary returns the first grid point start+k*interval strictly after now.
func nextBoundary(start time.Time, interval time.Duration, now time.Time) time.Time {
	if now.Before(start) {
		return start.Add(interval)
	}
	k := now.Sub(start)/interval + 1
	return start.Add(k * interval)
}

// Throttle emits leading-edge only: an event is emitted on receipt when the last
// emission is at least one interval old, otherwise it is dropped.
type Throttle struct {
	interval time.Duration
	last     time.Time
	emitted  bool
}

// Strategy returns StrategyThrottle
func (t *Throttle) Strategy() Strategy { return StrategyThrottle }

// Offer emits ev if the throttle window has elapsed
func (t *Throttle) Offer(ev message.Event, now time.Time) (Emission, bool) {
	if t.emitted && now.Sub(t.last) < t.interval {
		return Emission{}, false
	}
	t.last = now
	t.emitted = true
	return single(StrategyThrottle, ev, now), true
}

// Next never reports a deadline; throttling holds nothing.
func (t *Throttle) Next() (time.Time, bool) { return time.Time{}, false }

// Fire is a no-op
func (t *Throttle) Fire(time.Time) (Emission, bool) { return Emission{}, false }

// Flush is a no-op
func (t *Throttle) Flush(time.Time) (Emission, bool) { return Emission{}, false }

// Debounce emits the most recent event once an interval passes without arrivals.
type Debounce struct {
	interval time.Duration
	pending  message.Event
	held     bool
	deadline time.Time
}

// Strategy returns StrategyDebounce
func (d *Debounce) Strategy() Strategy { return StrategyDebounce }

// Offer replaces the pending event and restarts the silence timer
func (d *Debounce) Offer(ev message.Event, now time.Time) (Emission, bool) {
	d.pending = ev
	d.held = true
	d.deadline = now.Add(d.interval)
	return Emission{}, false
}

// Next returns the silence deadline while an event is pending
func (d *Debounce) Next() (time.Time, bool) {
	return d.deadline, d.held
}

// Fire emits the pending event once the deadline has passed
func (d *Debounce) Fire(now time.Time) (Emission, bool) {
	if !d.held || now.Before(d.deadline) {
		return Emission{}, false
	}
	return d.Flush(now)
}

// Flush emits the pending event immediately
func (d *Debounce) Flush(now time.Time) (Emission, bool) {
	if !d.held {
		return Emission{}, false
	}
	ev := d.pending
	d.pending = message.Event{}
	d.held = false
	return single(StrategyDebounce, ev, now), true
}

// Buffer collects events into fixed windows anchored at creation and emits each
// non-empty window as one batch at its boundary. When size is positive a batch
// that reaches size is emitted at once and the window keeps collecting.
type Buffer struct {
	interval  time.Duration
	size      int
	start     time.Time
	windowEnd time.Time
	events    []message.Event
}

// Strategy returns StrategyBuffer
func (b *Buffer) Strategy() Strategy { return StrategyBuffer }

// Offer appends ev to the current window
func (b *Buffer) Offer(ev message.Event, now time.Time) (Emission, bool) {
	if len(b.events) == 0 && !now.Before(b.windowEnd) {
		// Idle windows are skipped without ticking; realign to the grid.
		b.windowEnd = nextBoundary(b.start, b.interval, now)
	}
	b.events = append(b.events, ev)
	if b.size > 0 && len(b.events) >= b.size {
		return b.Flush(now)
	}
	return Emission{}, false
}

// Next returns the window boundary while the window holds events
func (b *Buffer) Next() (time.Time, bool) {
	return b.windowEnd, len(b.events) > 0
}

// Fire closes the window if its boundary has passed
func (b *Buffer) Fire(now time.Time) (Emission, bool) {
	if now.Before(b.windowEnd) {
		return Emission{}, false
	}
	b.windowEnd = nextBoundary(b.start, b.interval, now)
	return b.Flush(now)
}

// Flush emits the collected batch, if any
func (b *Buffer) Flush(now time.Time) (Emission, bool) {
	if len(b.events) == 0 {
		return Emission{}, false
	}
	batch := b.events
	b.events = nil
	return Emission{Events: batch, Batch: true, Strategy: StrategyBuffer, At: now}, true
}

// Sample emits the most recent event at every tick of a fixed clock anchored at
// creation. Arrivals never move the clock; ticks with nothing new emit nothing.
type Sample struct {
	interval time.Duration
	start    time.Time
	nextTick time.Time
	latest   message.Event
	held     bool
}

// Strategy returns StrategySample
func (s *Sample) Strategy() Strategy { return StrategySample }

// Offer records ev as the latest sample candidate
func (s *Sample) Offer(ev message.Event, now time.Time) (Emission, bool) {
	if !s.held && !now.Before(s.nextTick) {
		s.nextTick = nextBoundary(s.start, s.interval, now)
	}
	s.latest = ev
	s.held = true
	return Emission{}, false
}

// Next returns the next tick while a candidate is held
func (s *Sample) Next() (time.Time, bool) {
	return s.nextTick, s.held
}

// Fire emits the candidate at a tick
func (s *Sample) Fire(now time.Time) (Emission, bool) {
	if now.Before(s.nextTick) {
		return Emission{}, false
	}
	s.nextTick = nextBoundary(s.start, s.interval, now)
	return s.Flush(now)
}

// Flush emits the candidate immediately
func (s *Sample) Flush(now time.Time) (Emission, bool) {
	if !s.held {
		return Emission{}, false
	}
	ev := s.latest
	s.latest = message.Event{}
	s.held = false
	return single(StrategySample, ev, now), true
}
