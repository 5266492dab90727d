package shaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/metric"
)

func startShaper(t *testing.T, cfg Config, opts ...Option) (*Shaper, chan message.Event, context.CancelFunc, <-chan error) {
	t.Helper()
	s, err := New(cfg, opts...)
	require.NoError(t, err)

	in := make(chan message.Event)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, in) }()
	t.Cleanup(cancel)
	return s, in, cancel, done
}

func receive(t *testing.T, out <-chan Emission, within time.Duration) Emission {
	t.Helper()
	select {
	case em, ok := <-out:
		require.True(t, ok, "emission channel closed")
		return em
	case <-time.After(within):
		t.Fatalf("no emission within %v", within)
		return Emission{}
	}
}

func assertQuiet(t *testing.T, out <-chan Emission, d time.Duration) {
	t.Helper()
	select {
	case em := <-out:
		t.Fatalf("unexpected emission %+v", em)
	case <-time.After(d):
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Strategy: "nope", Interval: time.Second})
	assert.True(t, errors.IsInvalid(err))
}

func TestShaper_ThrottlePassesLeadingEvent(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s, in, _, _ := startShaper(t, Config{Strategy: StrategyThrottle, Interval: time.Second}, WithMetrics(registry))

	in <- ev("a")
	in <- ev("b")

	em := receive(t, s.Out(), time.Second)
	assert.Equal(t, []string{"a"}, ids(em))
	assertQuiet(t, s.Out(), 150*time.Millisecond)
}

func TestShaper_DebounceEmitsAfterSilence(t *testing.T) {
	s, in, _, _ := startShaper(t, Config{Strategy: StrategyDebounce, Interval: 100 * time.Millisecond})

	in <- ev("a")
	in <- ev("b")
	in <- ev("c")

	em := receive(t, s.Out(), time.Second)
	assert.Equal(t, []string{"c"}, ids(em))
}

func TestShaper_ReconfigureFlushesOutgoingStrategy(t *testing.T) {
	s, in, _, _ := startShaper(t, Config{Strategy: StrategyBuffer, Interval: 10 * time.Second})

	in <- ev("a")
	in <- ev("b")

	require.NoError(t, s.Reconfigure(Config{Strategy: StrategyThrottle, Interval: time.Second}))

	em := receive(t, s.Out(), time.Second)
	assert.True(t, em.Batch)
	assert.Equal(t, StrategyBuffer, em.Strategy)
	assert.Equal(t, []string{"a", "b"}, ids(em))

	in <- ev("c")
	em = receive(t, s.Out(), time.Second)
	assert.Equal(t, StrategyThrottle, em.Strategy)
	assert.Equal(t, []string{"c"}, ids(em))
}

func TestShaper_DiscardDropsHeldState(t *testing.T) {
	s, in, _, done := startShaper(t, Config{Strategy: StrategyBuffer, Interval: 10 * time.Second})

	in <- ev("a")
	in <- ev("b")
	gen := s.Discard()
	assert.EqualValues(t, 1, gen)
	assert.Equal(t, gen, s.Generation())

	time.Sleep(50 * time.Millisecond)
	in <- ev("c")
	close(in)

	em := receive(t, s.Out(), time.Second)
	assert.Equal(t, []string{"c"}, ids(em), "held batch is dropped, not flushed")
	assert.Equal(t, gen, em.Generation)

	require.NoError(t, <-done)
	_, ok := <-s.Out()
	assert.False(t, ok)
}

func TestShaper_DiscardNeverBlocks(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Discard()
	}
	assert.EqualValues(t, 5, s.Generation())
	assert.Len(t, s.discard, 1)
}

func TestShaper_ReconfigureLatestWins(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, s.Reconfigure(Config{Strategy: StrategyDebounce, Interval: time.Second}))
	require.NoError(t, s.Reconfigure(Config{Strategy: StrategySample, Interval: 200 * time.Millisecond}))

	assert.Equal(t, StrategySample, s.Config().Strategy)
	require.Len(t, s.reconfig, 1)
	assert.Equal(t, StrategySample, (<-s.reconfig).Strategy)
}

func TestShaper_ReconfigureRejectsInvalid(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	err = s.Reconfigure(Config{Strategy: StrategyBuffer, Interval: time.Millisecond})
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, DefaultConfig(), s.Config())
	assert.Empty(t, s.reconfig)
}

func TestShaper_InputCloseFlushes(t *testing.T) {
	s, in, _, done := startShaper(t, Config{Strategy: StrategySample, Interval: 10 * time.Second})

	in <- ev("a")
	close(in)

	em := receive(t, s.Out(), time.Second)
	assert.Equal(t, []string{"a"}, ids(em))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input closed")
	}
	_, ok := <-s.Out()
	assert.False(t, ok)
}

func TestShaper_CancelDiscardsAndCloses(t *testing.T) {
	s, in, cancel, done := startShaper(t, Config{Strategy: StrategyDebounce, Interval: 10 * time.Second})

	in <- ev("a")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok := <-s.Out()
	assert.False(t, ok, "held event is discarded on cancel")
}
