package shaper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/metric"
)

// Shaper paces an event channel under a reconfigurable Scheduler. Run owns the
// only timer; Reconfigure swaps the scheduler from any goroutine without blocking.
type Shaper struct {
	mu  sync.RWMutex
	cfg Config

	reconfigMu sync.Mutex
	reconfig   chan Config
	discard    chan struct{}
	generation atomic.Uint64
	out        chan Emission

	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

// Option configures a Shaper
type Option func(*Shaper)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shaper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records emissions on the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Shaper) {
		s.metrics = registry.CoreMetrics()
	}
}

// WithOutputBuffer sets the capacity of the emission channel (default 16)
func WithOutputBuffer(n int) Option {
	return func(s *Shaper) {
		if n >= 0 {
			s.out = make(chan Emission, n)
		}
	}
}

// New creates a Shaper. The configuration must be valid.
func New(cfg Config, opts ...Option) (*Shaper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Shaper{
		cfg:      cfg,
		reconfig: make(chan Config, 1),
		discard:  make(chan struct{}, 1),
		out:      make(chan Emission, 16),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "shaper")
	return s, nil
}

// Out returns the emission channel. It is closed when Run returns.
func (s *Shaper) Out() <-chan Emission {
	return s.out
}

// Config returns the most recently accepted configuration.
func (s *Shaper) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reconfigure validates cfg and hands it to the running loop. It never blocks;
// if several configurations arrive before the loop picks one up, the latest wins.
func (s *Shaper) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.reconfigMu.Lock()
	defer s.reconfigMu.Unlock()
	for {
		select {
		case s.reconfig <- cfg:
			return nil
		default:
		}
		select {
		case <-s.reconfig:
		default:
		}
	}
}

// Discard asks the running loop to drop whatever the scheduler holds without
// emitting it. It never blocks and returns the new generation: every emission
// produced from state held before the call carries a lower Generation.
func (s *Shaper) Discard() uint64 {
	gen := s.generation.Add(1)
	select {
	case s.discard <- struct{}{}:
	default:
	}
	return gen
}

// Generation returns the number of Discard calls so far.
func (s *Shaper) Generation() uint64 {
	return s.generation.Load()
}

// Run paces events from in until ctx is cancelled or in is closed.
//
// On a strategy change the outgoing scheduler is flushed, so anything it held is
// emitted once in its own shape, and the new scheduler starts at the switch instant.
// A Discard request replaces the scheduler without flushing it.
// On cancellation held state is discarded and the timer is stopped; when in is
// closed held state is flushed first.
func (s *Shaper) Run(ctx context.Context, in <-chan message.Event) error {
	defer close(s.out)

	cfg := s.Config()
	sched := NewScheduler(cfg, s.now())
	var gen uint64

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	var timerC <-chan time.Time

	arm := func() {
		timer.Stop()
		timerC = nil
		if deadline, ok := sched.Next(); ok {
			timer.Reset(max(0, deadline.Sub(s.now())))
			timerC = timer.C
		}
	}

	emit := func(em Emission) {
		em.Generation = gen
		s.emit(ctx, em)
	}
	fireDue := func(now time.Time) {
		for {
			deadline, ok := sched.Next()
			if !ok || deadline.After(now) {
				return
			}
			em, ok := sched.Fire(now)
			if !ok {
				return
			}
			emit(em)
		}
	}

	s.logger.Debug("Shaper started", "strategy", sched.Strategy(), "interval", cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Shaper stopped")
			return nil

		case ev, ok := <-in:
			now := s.now()
			if !ok {
				fireDue(now)
				if em, ok := sched.Flush(now); ok {
					emit(em)
				}
				return nil
			}
			fireDue(now)
			if em, ok := sched.Offer(ev, now); ok {
				emit(em)
			}
			arm()

		case <-timerC:
			fireDue(s.now())
			arm()

		case next := <-s.reconfig:
			now := s.now()
			fireDue(now)
			if em, ok := sched.Flush(now); ok {
				emit(em)
			}
			s.logger.Info("Shaper reconfigured",
				"from", sched.Strategy(), "to", next.Strategy, "interval", next.Interval, "buffer_size", next.BufferSize)
			cfg = next
			sched = NewScheduler(cfg, now)
			arm()

		case <-s.discard:
			gen = s.generation.Load()
			sched = NewScheduler(cfg, s.now())
			s.logger.Debug("Shaper state discarded", "generation", gen)
			arm()
		}
	}
}

func (s *Shaper) emit(ctx context.Context, em Emission) {
	select {
	case s.out <- em:
		s.metrics.RecordEmission(string(em.Strategy))
	case <-ctx.Done():
	}
}
