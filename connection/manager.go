package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/metric"
	"github.com/c360/telemetrystream/pkg/mailbox"
	"github.com/c360/telemetrystream/pkg/observable"
)

const faultBuffer = 64

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdSend
)

type command struct {
	kind    commandKind
	payload []byte
}

// Loop notifications. gen identifies the connection attempt that produced them;
// anything from an older generation is stale and ignored.
type (
	dialResult struct {
		gen  uint64
		conn Conn
		err  error
	}
	connClosed struct {
		gen uint64
		err error
	}
	reconnectDue struct {
		gen uint64
	}
	latencySample struct {
		gen uint64
		rtt time.Duration
	}
)

// session is the per-connection context shared by the reader and pinger.
type session struct {
	gen      uint64
	conn     Conn
	cancel   context.CancelFunc
	pingSent atomic.Int64
}

// Manager owns a single transport connection and keeps it alive. All state
// changes happen on the goroutine running Run; the public controls only enqueue
// intent and never block.
type Manager struct {
	cfg     Config
	dialer  Dialer
	decoder message.Decoder
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time

	commands *mailbox.Mailbox[command]
	internal chan any
	states   *observable.Subject[State]
	events   chan message.Event
	faults   chan Fault
	current  atomic.Pointer[State]
	running  atomic.Bool
	overflow atomic.Int64

	// Loop-owned.
	ctx     context.Context
	state   State
	gen     uint64
	sess    *session
	timer   *time.Timer
	wg      sync.WaitGroup
	dialing context.CancelFunc
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records connection metrics on the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.metrics = registry.CoreMetrics()
	}
}

// WithDecoder replaces the payload decoder
func WithDecoder(d message.Decoder) Option {
	return func(m *Manager) {
		m.decoder = d
	}
}

// NewManager creates a Manager for dialer. It does nothing until Run is started
// and Connect is called.
func NewManager(dialer Dialer, cfg Config, opts ...Option) (*Manager, error) {
	if dialer == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "connection", "NewManager", "require dialer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initial := State{Status: StatusDisconnected}
	m := &Manager{
		cfg:      cfg,
		dialer:   dialer,
		logger:   slog.Default(),
		now:      time.Now,
		commands: mailbox.New[command](),
		internal: make(chan any),
		states: observable.New(
			observable.WithInitial(initial),
			observable.WithEqual(func(a, b State) bool { return a.Status == b.Status }),
		),
		events: make(chan message.Event, cfg.EventBuffer),
		faults: make(chan Fault, faultBuffer),
		state:  initial,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.decoder.Now == nil {
		m.decoder.Now = m.now
	}
	m.logger = m.logger.With("component", "connection")
	m.current.Store(&initial)
	return m, nil
}

// Connect requests a connection. It is a no-op while connected or connecting;
// otherwise it resets the reconnect budget and dials at once.
func (m *Manager) Connect() {
	m.commands.Put(command{kind: cmdConnect})
}

// Disconnect closes the connection cleanly and cancels any pending dial or
// reconnect. It is idempotent.
func (m *Manager) Disconnect() {
	m.commands.Put(command{kind: cmdDisconnect})
}

// Send encodes payload and writes it if a connection is open when the request
// is processed; otherwise it is dropped. Only encoding errors are returned.
func (m *Manager) Send(payload any) error {
	data, err := message.Encode(payload)
	if err != nil {
		return err
	}
	m.commands.Put(command{kind: cmdSend, payload: data})
	return nil
}

// States returns the status feed. Subscribers receive the current state on
// subscription and then one value per status change.
func (m *Manager) States() *observable.Subject[State] {
	return m.states
}

// State returns the most recent state, including latency updates that did
// not change the status.
func (m *Manager) State() State {
	return *m.current.Load()
}

// Events returns decoded events in arrival order. It is closed when Run returns.
func (m *Manager) Events() <-chan message.Event {
	return m.events
}

// Faults returns connection and protocol faults. It is closed when Run returns.
// Faults are dropped if the channel is full.
func (m *Manager) Faults() <-chan Fault {
	return m.faults
}

// Run processes connection intent until ctx is cancelled, then disconnects,
// waits for its goroutines and closes the output channels. It may only be
// called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "connection", "Run", "start manager")
	}
	m.ctx = ctx

	defer func() {
		m.disconnect()
		m.wg.Wait()
		close(m.events)
		close(m.faults)
		m.states.Close()
		m.logger.Debug("Connection manager stopped")
	}()

	m.logger.Debug("Connection manager started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-m.commands.Ready():
			for _, cmd := range m.commands.Drain() {
				m.handleCommand(cmd)
			}

		case n := <-m.internal:
			m.handleNotification(n)
		}
	}
}

func (m *Manager) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdConnect:
		if m.state.Status == StatusConnected || m.state.Status == StatusConnecting {
			return
		}
		m.stopTimer()
		m.state.ReconnectAttempts = 0
		m.dial()

	case cmdDisconnect:
		m.disconnect()

	case cmdSend:
		m.write(cmd.payload)
	}
}

func (m *Manager) handleNotification(n any) {
	switch n := n.(type) {
	case dialResult:
		m.onDialResult(n)
	case connClosed:
		m.onClosed(n)
	case reconnectDue:
		if n.gen != m.gen {
			return
		}
		m.timer = nil
		m.dial()
	case latencySample:
		if n.gen != m.gen || m.sess == nil {
			return
		}
		m.state.Latency = n.rtt
		m.metrics.RecordLatency(n.rtt)
		m.publish()
	}
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	m.dialing = cancel
	m.transition(StatusConnecting)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		conn, err := m.dialer.Dial(ctx)
		if !m.notify(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (m *Manager) onDialResult(r dialResult) {
	if r.gen != m.gen {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		return
	}
	m.dialing = nil

	if r.err != nil {
		m.logger.Warn("Connection attempt failed", "error", r.err, "attempt", m.state.ReconnectAttempts)
		m.transition(StatusError)
		m.fault(Fault{
			Code:      message.CodeConnFailed,
			Message:   "connection attempt failed: " + r.err.Error(),
			Severity:  message.SeverityError,
			Retryable: true,
			Err:       errors.WrapTransient(r.err, "connection", "Dial", "open connection"),
		})
		m.scheduleReconnect()
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	sess := &session{gen: r.gen, conn: r.conn, cancel: cancel}
	m.sess = sess

	m.state.ReconnectAttempts = 0
	m.state.LastConnectedAt = m.now()
	m.transition(StatusConnected)

	m.wg.Add(1)
	go m.read(ctx, sess)
	if m.cfg.PingInterval > 0 {
		m.wg.Add(1)
		go m.ping(ctx, sess)
	}
}

func (m *Manager) onClosed(c connClosed) {
	if c.gen != m.gen || m.sess == nil {
		return
	}
	m.closeSession()

	if errors.Is(c.err, errors.ErrClosedNormally) {
		m.logger.Info("Connection closed by peer")
		m.state.ReconnectAttempts = 0
		m.transition(StatusDisconnected)
		return
	}

	m.logger.Warn("Connection lost", "error", c.err)
	m.transition(StatusDisconnected)
	m.fault(Fault{
		Code:      message.CodeClosed,
		Message:   "connection closed unexpectedly",
		Severity:  message.SeverityWarning,
		Retryable: true,
		Err: errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrConnectionLost, c.err),
			"connection", "read", "read message"),
	})
	m.scheduleReconnect()
}

// scheduleReconnect arms the reconnect timer for the next attempt, or trips the
// circuit breaker once the budget is spent. Only Connect re-arms it.
func (m *Manager) scheduleReconnect() {
	backoff := m.cfg.Backoff()
	next := int(m.state.ReconnectAttempts) + 1

	if !backoff.Allows(next) {
		m.logger.Error("Reconnect attempts exhausted", "attempts", m.state.ReconnectAttempts)
		m.transition(StatusDisconnected)
		m.fault(Fault{
			Code:     message.CodeReconnectExhausted,
			Message:  "maximum reconnection attempts reached",
			Severity: message.SeverityCritical,
			Err: errors.Wrap(errors.ErrMaxRetriesExceeded, "connection", "scheduleReconnect",
				"reconnect"),
		})
		return
	}

	delay := backoff.Delay(next)
	m.state.ReconnectAttempts = uint(next)
	m.storeCurrent()
	m.metrics.RecordReconnect()
	m.logger.Info("Reconnect scheduled", "attempt", next, "delay", delay)

	gen := m.gen
	m.wg.Add(1)
	m.timer = time.AfterFunc(delay, func() {
		defer m.wg.Done()
		m.notify(reconnectDue{gen: gen})
	})
}

func (m *Manager) disconnect() {
	m.gen++
	m.stopTimer()
	if m.dialing != nil {
		m.dialing()
		m.dialing = nil
	}
	if m.sess != nil {
		m.closeSession()
		m.logger.Info("Disconnected")
	}
	m.state.ReconnectAttempts = 0
	m.transition(StatusDisconnected)
}

func (m *Manager) closeSession() {
	m.sess.cancel()
	if err := m.sess.conn.Close(); err != nil {
		m.logger.Debug("Close connection", "error", err)
	}
	m.sess = nil
}

func (m *Manager) stopTimer() {
	if m.timer != nil && m.timer.Stop() {
		m.wg.Done()
	}
	m.timer = nil
}

func (m *Manager) write(data []byte) {
	if m.sess == nil {
		m.logger.Debug("Send dropped while not connected", "bytes", len(data))
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	defer cancel()
	if err := m.sess.conn.WriteMessage(ctx, data); err != nil {
		m.logger.Debug("Send failed", "error", err)
	}
}

// read decodes inbound payloads until the connection ends.
func (m *Manager) read(ctx context.Context, sess *session) {
	defer m.wg.Done()

	for {
		data, err := sess.conn.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.notify(connClosed{gen: sess.gen, err: err})
			}
			return
		}

		frame, err := m.decoder.Decode(data)
		if err != nil {
			m.metrics.RecordReceived("malformed")
			m.logger.Debug("Malformed message", "error", err)
			m.sendFault(Fault{
				Code:      message.CodeInvalidMessage,
				Message:   "failed to decode message",
				Severity:  message.SeverityWarning,
				Retryable: true,
				At:        m.now(),
				Err:       err,
			})
			continue
		}
		m.metrics.RecordReceived(frame.Kind.String())

		switch frame.Kind {
		case message.KindEvent:
			select {
			case m.events <- frame.Event:
			case <-ctx.Done():
				return
			}
		case message.KindFault:
			f := frame.Fault
			m.sendFault(Fault{
				Code:      f.Code,
				Message:   f.Message,
				Severity:  f.Severity,
				Retryable: f.Severity != message.SeverityCritical,
				At:        f.Timestamp,
				Err:       errors.ErrServerFault,
			})
		case message.KindControl:
			m.handleControl(ctx, sess, frame.Control)
		}
	}
}

func (m *Manager) handleControl(ctx context.Context, sess *session, c message.Control) {
	switch c.Type {
	case message.ControlPong:
		sent := sess.pingSent.Swap(0)
		if sent == 0 {
			return
		}
		m.notify(latencySample{gen: sess.gen, rtt: m.now().Sub(time.Unix(0, sent))})
	case message.ControlPing:
		reply, _ := message.Encode(message.Control{Type: message.ControlPong, Timestamp: m.now().UTC()})
		if err := sess.conn.WriteMessage(ctx, reply); err != nil {
			m.logger.Debug("Pong failed", "error", err)
		}
	default:
		m.logger.Debug("Control frame", "type", c.Type, "message", c.Message)
	}
}

// ping measures latency every PingInterval while the session lives.
func (m *Manager) ping(ctx context.Context, sess *session) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if p, ok := sess.conn.(RTTProvider); ok {
			rtt, err := p.RTT()
			if err != nil {
				m.logger.Debug("RTT measurement failed", "error", err)
				continue
			}
			m.notify(latencySample{gen: sess.gen, rtt: rtt})
			continue
		}

		now := m.now()
		sess.pingSent.Store(now.UnixNano())
		if err := sess.conn.WriteMessage(ctx, message.Ping(now)); err != nil {
			m.logger.Debug("Ping failed", "error", err)
		}
	}
}

// notify hands n to the loop. It returns false once the manager is stopping.
func (m *Manager) notify(n any) bool {
	select {
	case m.internal <- n:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) fault(f Fault) {
	f.At = m.now()
	m.sendFault(f)
}

// sendFault never blocks. Faults that find the channel full are counted and
// reported as one METRICS_STREAM_ERROR fault ahead of the next one delivered.
func (m *Manager) sendFault(f Fault) {
	if n := m.overflow.Load(); n > 0 {
		summary := Fault{
			Code:      message.CodeStreamError,
			Message:   fmt.Sprintf("%d faults dropped, fault channel full", n),
			Severity:  message.SeverityWarning,
			Retryable: true,
			At:        m.now(),
		}
		select {
		case m.faults <- summary:
			m.overflow.Add(-n)
		default:
		}
	}

	select {
	case m.faults <- f:
	default:
		dropped := m.overflow.Add(1)
		m.logger.Warn("Fault dropped, channel full", "code", f.Code, "dropped", dropped)
	}
}

func (m *Manager) transition(status Status) {
	prev := m.state.Status
	m.state.Status = status
	m.publish()
	m.metrics.RecordConnectionStatus(status.Gauge())
	if prev != status {
		m.logger.Info("Connection status changed", "from", prev, "to", status,
			"reconnect_attempts", m.state.ReconnectAttempts)
	}
}

func (m *Manager) publish() {
	m.storeCurrent()
	m.states.Publish(m.state)
}

func (m *Manager) storeCurrent() {
	s := m.state
	m.current.Store(&s)
}
