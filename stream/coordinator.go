package stream

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/telemetrystream/aggregate"
	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/metric"
	"github.com/c360/telemetrystream/pkg/buffer"
	"github.com/c360/telemetrystream/pkg/mailbox"
	"github.com/c360/telemetrystream/pkg/observable"
	"github.com/c360/telemetrystream/shaper"
)

const defaultBacklog = 1024

// Drop reasons reported on the events_dropped_total metric.
const (
	DropPaused      = "paused"
	DropRateLimited = "rate_limited"
	DropBacklog     = "backlog"
	DropReset       = "reset"
	DropDiscarded   = "discarded"
)

// Source is the connection side of the pipeline. *connection.Manager
// implements it.
type Source interface {
	Connect()
	Disconnect()
	Run(ctx context.Context) error
	Events() <-chan message.Event
	Faults() <-chan connection.Fault
	States() *observable.Subject[connection.State]
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdPause
	cmdResume
	cmdConfigured
	cmdRecordError
	cmdClearMetrics
	cmdClearErrors
	cmdReset
)

type command struct {
	kind   commandKind
	config shaper.Config
	record ErrorRecord
}

// Coordinator wires a Source, a Shaper and an Aggregator together and is the
// only writer of ApplicationState. Controls may be called from any goroutine
// and never block.
type Coordinator struct {
	source     Source
	shaper     *shaper.Shaper
	aggregator *aggregate.Aggregator
	errorLog   buffer.Buffer[ErrorRecord]
	limiter    *shaper.Limiter
	initial    shaper.Config

	commands  *mailbox.Mailbox[command]
	snapshots *observable.Subject[ApplicationState]
	snapshot  atomic.Pointer[ApplicationState]
	shaperIn  chan message.Event
	configMu  sync.Mutex
	running   atomic.Bool

	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	now      func() time.Time
	backlog  int
	limit    *shaper.LimiterConfig

	// Loop-owned.
	state      ApplicationState
	generation uint64
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables pipeline metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Coordinator) {
		c.registry = registry
	}
}

// WithRateLimit sheds events above cfg.Rate before they reach the shaper.
func WithRateLimit(cfg shaper.LimiterConfig) Option {
	return func(c *Coordinator) {
		c.limit = &cfg
	}
}

// WithBacklog sets how many admitted events may wait for the shaper before
// new ones are dropped (default 1024).
func WithBacklog(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.backlog = n
		}
	}
}

// New creates a Coordinator that shapes events from source with cfg.
func New(source Source, cfg shaper.Config, opts ...Option) (*Coordinator, error) {
	if source == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "stream", "New", "require source")
	}

	c := &Coordinator{
		source:     source,
		aggregator: aggregate.New(),
		initial:    cfg,
		commands:   mailbox.New[command](),
		logger:     slog.Default(),
		now:        time.Now,
		backlog:    defaultBacklog,
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.logger
	c.logger = base.With("component", "stream")
	c.metrics = c.registry.CoreMetrics()

	sh, err := shaper.New(cfg, shaper.WithLogger(base), shaper.WithMetrics(c.registry))
	if err != nil {
		return nil, err
	}
	c.shaper = sh

	if c.limit != nil {
		if c.limiter, err = shaper.NewLimiter(*c.limit); err != nil {
			return nil, err
		}
	}

	c.errorLog, err = buffer.NewCircularBuffer(MaxErrors,
		buffer.WithOverflowPolicy[ErrorRecord](buffer.DropOldest),
		buffer.WithMetrics[ErrorRecord](c.registry, "error_log"))
	if err != nil {
		return nil, errors.WrapFatal(err, "stream", "New", "create error log")
	}

	c.shaperIn = make(chan message.Event, c.backlog)
	c.state = InitialState(cfg)
	c.snapshots = observable.New(observable.WithInitial(c.state))
	c.snapshot.Store(&c.state)
	return c, nil
}

// Start connects and resumes processing.
func (c *Coordinator) Start() { c.commands.Put(command{kind: cmdStart}) }

// Stop disconnects and pauses processing.
func (c *Coordinator) Stop() { c.commands.Put(command{kind: cmdStop}) }

// Pause discards incoming data while keeping the connection open.
func (c *Coordinator) Pause() { c.commands.Put(command{kind: cmdPause}) }

// Resume ends a pause.
func (c *Coordinator) Resume() { c.commands.Put(command{kind: cmdResume}) }

// ClearMetrics drops every aggregate and raw window.
func (c *Coordinator) ClearMetrics() { c.commands.Put(command{kind: cmdClearMetrics}) }

// ClearErrors empties the error log.
func (c *Coordinator) ClearErrors() { c.commands.Put(command{kind: cmdClearErrors}) }

// Reset disconnects and returns to the initial state and shaper configuration.
func (c *Coordinator) Reset() { c.commands.Put(command{kind: cmdReset}) }

// UpdateConfig merges patch over the current shaper configuration. An invalid
// result is rejected as a whole: the error is returned, an INVALID_CONFIG
// record is logged and the previous configuration stays in effect.
func (c *Coordinator) UpdateConfig(patch shaper.Patch) error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	merged, err := c.shaper.Config().Apply(patch)
	if err == nil {
		err = c.shaper.Reconfigure(merged)
	}
	if err != nil {
		c.commands.Put(command{kind: cmdRecordError, record: ErrorRecord{
			Code:      message.CodeInvalidConfig,
			Message:   err.Error(),
			Severity:  message.SeverityWarning,
			Timestamp: c.now(),
		}})
		return err
	}

	c.commands.Put(command{kind: cmdConfigured, config: merged})
	return nil
}

// Config returns the most recently accepted shaper configuration.
func (c *Coordinator) Config() shaper.Config {
	return c.shaper.Config()
}

// Snapshot returns the latest published state.
func (c *Coordinator) Snapshot() ApplicationState {
	return *c.snapshot.Load()
}

// Snapshots returns the state feed. New subscribers receive the latest state
// at once; slow subscribers are conflated onto the newest state.
func (c *Coordinator) Snapshots() *observable.Subject[ApplicationState] {
	return c.snapshots
}

// ConnectionStates returns the source's connection state feed.
func (c *Coordinator) ConnectionStates() *observable.Subject[connection.State] {
	return c.source.States()
}

// Run drives the pipeline until ctx is cancelled. It runs the source and the
// shaper in their own goroutines and waits for both before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "stream", "Run", "start coordinator")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	states, unsubscribe := c.source.States().Subscribe(16)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.source.Run(gctx) })
	g.Go(func() error { return c.shaper.Run(gctx, c.shaperIn) })

	c.logger.Info("Stream coordinator started", "strategy", c.initial.Strategy, "interval", c.initial.Interval)

	events := c.source.Events()
	faults := c.source.Faults()
	emissions := c.shaper.Out()

loop:
	for {
		select {
		case <-gctx.Done():
			break loop

		case <-c.commands.Ready():
			for _, cmd := range c.commands.Drain() {
				c.handle(cmd)
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.admit(ev)

		case f, ok := <-faults:
			if !ok {
				faults = nil
				continue
			}
			c.recordFault(f)

		case s, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			c.state.Connection = s
			c.publish()

		case em, ok := <-emissions:
			if !ok {
				emissions = nil
				continue
			}
			c.apply(em)
		}
	}

	cancel()
	err := g.Wait()
	c.snapshots.Close()
	c.logger.Info("Stream coordinator stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "stream", "Run", "run pipeline")
	}
	return nil
}

func (c *Coordinator) handle(cmd command) {
	switch cmd.kind {
	case cmdStart:
		c.source.Connect()
		c.state.Paused = false
		c.logger.Info("Stream started")
	case cmdStop:
		c.source.Disconnect()
		c.state.Paused = true
		c.discardPending(DropPaused)
		c.logger.Info("Stream stopped")
	case cmdPause:
		c.state.Paused = true
		c.discardPending(DropPaused)
		c.logger.Info("Stream paused")
	case cmdResume:
		c.state.Paused = false
		c.logger.Info("Stream resumed")
	case cmdConfigured:
		c.state.Shaper = cmd.config
	case cmdRecordError:
		c.appendError(cmd.record)
	case cmdClearMetrics:
		c.aggregator.Reset()
		c.state.Aggregates = map[message.Category]aggregate.Aggregate{}
		c.state.RawWindow = map[message.Category][]float64{}
		c.state.LastUpdate = time.Time{}
	case cmdClearErrors:
		c.errorLog.Clear()
		c.state.Errors = []ErrorRecord{}
	case cmdReset:
		c.source.Disconnect()
		c.discardPending(DropReset)
		c.aggregator.Reset()
		c.errorLog.Clear()
		c.configMu.Lock()
		if err := c.shaper.Reconfigure(c.initial); err != nil {
			c.logger.Error("Restore initial shaper configuration", "error", err)
		}
		c.configMu.Unlock()
		conn := c.state.Connection
		version := c.state.Version
		c.state = InitialState(c.initial)
		c.state.Connection = conn
		c.state.Version = version
		c.logger.Info("Stream reset")
	}
	c.publish()
}

// admit forwards an inbound event to the shaper unless it is shed.
func (c *Coordinator) admit(ev message.Event) {
	if c.state.Paused {
		c.drop(DropPaused)
		return
	}
	if c.limiter != nil {
		ok, report := c.limiter.Allow(c.now())
		if report != nil {
			c.appendError(ErrorRecord{
				Code:      message.CodeRateLimit,
				Message:   report.Error(),
				Severity:  message.SeverityWarning,
				Timestamp: c.now(),
				Retryable: true,
			})
			c.publish()
		}
		if !ok {
			c.drop(DropRateLimited)
			return
		}
	}
	select {
	case c.shaperIn <- ev:
	default:
		c.drop(DropBacklog)
	}
}

// discardPending drops admitted events the shaper has not taken yet and asks
// the shaper to drop what it holds. Emissions from before the call are then
// rejected by apply.
func (c *Coordinator) discardPending(reason string) {
	for {
		select {
		case <-c.shaperIn:
			c.drop(reason)
		default:
			c.generation = c.shaper.Discard()
			return
		}
	}
}

func (c *Coordinator) drop(reason string) {
	c.metrics.RecordDropped(reason)
	c.logger.Debug("Event dropped", "reason", reason)
}

// apply folds an emission into the aggregates and publishes one snapshot.
func (c *Coordinator) apply(em shaper.Emission) {
	if em.Generation < c.generation {
		for range em.Events {
			c.drop(DropDiscarded)
		}
		return
	}
	if c.state.Paused {
		for range em.Events {
			c.drop(DropPaused)
		}
		return
	}
	if len(em.Events) == 0 {
		return
	}

	aggregates := maps.Clone(c.state.Aggregates)
	windows := maps.Clone(c.state.RawWindow)
	for _, ev := range em.Events {
		aggregates[ev.Category] = c.aggregator.Update(ev.Category, ev.Value)
	}
	for category := range touched(em.Events) {
		windows[category] = c.aggregator.Window(category)
	}

	c.state.Aggregates = aggregates
	c.state.RawWindow = windows
	c.state.LastUpdate = c.now()
	c.publish()
}

func touched(events []message.Event) map[message.Category]struct{} {
	out := make(map[message.Category]struct{}, len(events))
	for _, ev := range events {
		out[ev.Category] = struct{}{}
	}
	return out
}

func (c *Coordinator) recordFault(f connection.Fault) {
	rec := ErrorRecord{
		Code:      f.Code,
		Message:   f.Message,
		Severity:  f.Severity,
		Timestamp: f.At,
		Retryable: f.Retryable,
	}
	if f.Err != nil {
		rec.Metadata = map[string]string{"cause": f.Err.Error()}
	}
	c.appendError(rec)
	c.publish()
}

func (c *Coordinator) appendError(rec ErrorRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now()
	}
	if err := c.errorLog.Write(rec); err != nil {
		c.logger.Error("Append error record", "error", err)
		return
	}
	c.state.Errors = c.errorLog.Snapshot()
	c.metrics.RecordError(rec.Code)

	switch rec.Severity {
	case message.SeverityCritical, message.SeverityError:
		c.logger.Error("Stream error", "code", rec.Code, "message", rec.Message, "retryable", rec.Retryable)
	default:
		c.logger.Warn("Stream error", "code", rec.Code, "message", rec.Message, "retryable", rec.Retryable)
	}
}

func (c *Coordinator) publish() {
	c.state.Version++
	s := c.state
	c.snapshot.Store(&s)
	c.snapshots.Publish(s)
	c.metrics.RecordSnapshot()
}
