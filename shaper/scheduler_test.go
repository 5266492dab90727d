package shaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/message"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func ev(id string) message.Event {
	return message.Event{ID: id, Category: message.CategoryCPU, Value: 42, Timestamp: t0}
}

// drive feeds offers at the given millisecond offsets and fires deadlines the
// way Shaper.Run does, returning every emission in order.
func drive(s Scheduler, offers map[int]string, until int) []Emission {
	var out []Emission
	fire := func(now time.Time) {
		for {
			deadline, ok := s.Next()
			if !ok || deadline.After(now) {
				return
			}
			em, ok := s.Fire(now)
			if !ok {
				return
			}
			out = append(out, em)
		}
	}
	for ms := 0; ms <= until; ms++ {
		now := at(ms)
		if deadline, ok := s.Next(); ok && !deadline.After(now) {
			fire(deadline)
		}
		if id, ok := offers[ms]; ok {
			fire(now)
			if em, ok := s.Offer(ev(id), now); ok {
				out = append(out, em)
			}
		}
	}
	return out
}

func ids(em Emission) []string {
	var out []string
	for _, e := range em.Events {
		out = append(out, e.ID)
	}
	return out
}

func TestThrottle_LeadingEdge(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyThrottle, Interval: time.Second}, t0)

	out := drive(s, map[int]string{0: "a", 100: "b", 300: "c", 1100: "d"}, 1500)

	require.Len(t, out, 2)
	assert.Equal(t, []string{"a"}, ids(out[0]))
	assert.Equal(t, at(0), out[0].At)
	assert.Equal(t, []string{"d"}, ids(out[1]))
	assert.Equal(t, at(1100), out[1].At)
	assert.False(t, out[0].Batch)
	assert.Equal(t, StrategyThrottle, out[0].Strategy)
}

func TestThrottle_ExactIntervalEmits(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyThrottle, Interval: time.Second}, t0)

	_, ok := s.Offer(ev("a"), at(0))
	require.True(t, ok)
	_, ok = s.Offer(ev("b"), at(999))
	assert.False(t, ok)
	_, ok = s.Offer(ev("c"), at(1000))
	assert.True(t, ok)

	_, ok = s.Flush(at(1001))
	assert.False(t, ok, "throttle holds nothing")
}

func TestDebounce_EmitsLatestAfterSilence(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyDebounce, Interval: 300 * time.Millisecond}, t0)

	out := drive(s, map[int]string{0: "a", 200: "b", 400: "c"}, 1200)

	require.Len(t, out, 1)
	assert.Equal(t, []string{"c"}, ids(out[0]))
	assert.Equal(t, at(700), out[0].At)
}

func TestDebounce_SeparatedBursts(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyDebounce, Interval: 100 * time.Millisecond}, t0)

	out := drive(s, map[int]string{0: "a", 50: "b", 500: "c"}, 1000)

	require.Len(t, out, 2)
	assert.Equal(t, []string{"b"}, ids(out[0]))
	assert.Equal(t, at(150), out[0].At)
	assert.Equal(t, []string{"c"}, ids(out[1]))
	assert.Equal(t, at(600), out[1].At)
}

func TestBuffer_WindowBatch(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyBuffer, Interval: 200 * time.Millisecond}, t0)

	out := drive(s, map[int]string{50: "a", 150: "b"}, 1000)

	require.Len(t, out, 1, "empty windows emit nothing")
	assert.True(t, out[0].Batch)
	assert.Equal(t, []string{"a", "b"}, ids(out[0]))
	assert.Equal(t, at(200), out[0].At)
}

func TestBuffer_RealignsAfterIdleWindows(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyBuffer, Interval: 200 * time.Millisecond}, t0)

	out := drive(s, map[int]string{50: "a", 650: "b", 700: "c"}, 1000)

	require.Len(t, out, 2)
	assert.Equal(t, at(200), out[0].At)
	assert.Equal(t, []string{"b", "c"}, ids(out[1]))
	assert.Equal(t, at(800), out[1].At)
}

func TestBuffer_EarlyEmitAtSize(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyBuffer, Interval: time.Second, BufferSize: 2}, t0)

	out := drive(s, map[int]string{10: "a", 20: "b", 30: "c"}, 1500)

	require.Len(t, out, 2)
	assert.Equal(t, []string{"a", "b"}, ids(out[0]))
	assert.Equal(t, at(20), out[0].At)
	assert.Equal(t, []string{"c"}, ids(out[1]))
	assert.Equal(t, at(1000), out[1].At, "early emit keeps the window grid")
}

func TestBuffer_FlushPartialWindow(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategyBuffer, Interval: time.Second}, t0)

	_, ok := s.Offer(ev("a"), at(10))
	require.False(t, ok)

	em, ok := s.Flush(at(20))
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, ids(em))

	_, ok = s.Next()
	assert.False(t, ok)
}

func TestSample_FixedClock(t *testing.T) {
	s := NewScheduler(Config{Strategy: StrategySample, Interval: 100 * time.Millisecond}, t0)

	out := drive(s, map[int]string{10: "a", 20: "b", 90: "c", 150: "d", 420: "e"}, 600)

	require.Len(t, out, 3)
	assert.Equal(t, []string{"c"}, ids(out[0]))
	assert.Equal(t, at(100), out[0].At)
	assert.Equal(t, []string{"d"}, ids(out[1]))
	assert.Equal(t, at(200), out[1].At)
	assert.Equal(t, []string{"e"}, ids(out[2]))
	assert.Equal(t, at(500), out[2].At, "arrivals never move the clock")
}

func TestNextBoundary(t *testing.T) {
	interval := 100 * time.Millisecond
	assert.Equal(t, at(100), nextBoundary(t0, interval, at(0)))
	assert.Equal(t, at(100), nextBoundary(t0, interval, at(99)))
	assert.Equal(t, at(200), nextBoundary(t0, interval, at(100)))
	assert.Equal(t, at(500), nextBoundary(t0, interval, at(450)))
	assert.Equal(t, at(100), nextBoundary(t0, interval, t0.Add(-time.Second)))
}

func TestNewScheduler_Strategies(t *testing.T) {
	for _, strategy := range Strategies {
		t.Run(string(strategy), func(t *testing.T) {
			s := NewScheduler(Config{Strategy: strategy, Interval: time.Second}, t0)
			assert.Equal(t, strategy, s.Strategy())
			_, pending := s.Next()
			assert.False(t, pending)
		})
	}
}
