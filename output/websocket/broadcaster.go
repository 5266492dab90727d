package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/metric"
	"github.com/c360/telemetrystream/stream"
)

// MessageTypeSnapshot is the envelope type of state messages.
const MessageTypeSnapshot = "snapshot"

// MessageEnvelope wraps every message sent to display clients.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Feed is a latest-value state subscription. The stream coordinator's
// Snapshots subject satisfies it.
type Feed interface {
	Subscribe(buffer int) (<-chan stream.ApplicationState, func())
}

// Config controls client handling.
type Config struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// AllowedOrigins restricts browser origins. Empty allows any origin.
	AllowedOrigins []string
}

// DefaultConfig returns the default client settings
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Metrics holds Prometheus metrics for the broadcaster
type Metrics struct {
	clientsConnected   prometheus.Gauge
	connectionTotal    prometheus.Counter
	messagesSent       prometheus.Counter
	bytesSent          prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry, logger *slog.Logger) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Number of currently connected display clients",
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "client_connections_total",
			Help:      "Total display client connections",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total snapshot messages sent to display clients",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent to display clients",
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "client_disconnections_total",
			Help:      "Total display client disconnections",
		}, []string{"disconnect_reason"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "Display server errors",
		}, []string{"error_type"}),
	}

	register := []error{
		registry.RegisterGauge("broadcaster", "clients_connected", m.clientsConnected),
		registry.RegisterCounter("broadcaster", "client_connections_total", m.connectionTotal),
		registry.RegisterCounter("broadcaster", "messages_sent_total", m.messagesSent),
		registry.RegisterCounter("broadcaster", "bytes_sent_total", m.bytesSent),
		registry.RegisterCounterVec("broadcaster", "client_disconnections_total", m.disconnectionTotal),
		registry.RegisterCounterVec("broadcaster", "errors_total", m.errorsTotal),
	}
	for _, err := range register {
		if err != nil {
			logger.Warn("Metric registration failed", "error", err)
		}
	}
	return m
}

func (m *Metrics) error(kind string) {
	if m != nil {
		m.errorsTotal.WithLabelValues(kind).Inc()
	}
}

// client is one connected display.
type client struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time
	writeMu     sync.Mutex
	closeOnce   sync.Once
	done        chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Broadcaster serves state snapshots to websocket display clients. Each client
// receives the latest snapshot on connect, then one message per published
// snapshot; a client that falls behind skips straight to the newest state.
type Broadcaster struct {
	feed     Feed
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *Metrics
	registry *metric.MetricsRegistry

	mu      sync.RWMutex
	clients map[string]*client
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics registers broadcaster metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Broadcaster) {
		b.registry = registry
	}
}

// WithConfig overrides the client settings
func WithConfig(cfg Config) Option {
	return func(b *Broadcaster) {
		b.cfg = cfg
	}
}

// NewBroadcaster creates a Broadcaster publishing feed.
func NewBroadcaster(feed Feed, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		feed:    feed,
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "broadcaster")
	b.metrics = newMetrics(b.registry, b.logger)
	b.upgrader = websocket.Upgrader{CheckOrigin: b.checkOrigin}
	return b
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and streams snapshots until the client leaves
// or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.metrics.error("connection_upgrade")
		b.logger.Debug("Upgrade failed", "error", err)
		return
	}

	c := &client{
		id:          uuid.New().String(),
		conn:        conn,
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}

	count, ok := b.register(c)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	if b.metrics != nil {
		b.metrics.connectionTotal.Inc()
		b.metrics.clientsConnected.Set(float64(count))
	}
	b.logger.Info("Client connected", "client_id", c.id, "remote", r.RemoteAddr, "clients", count)

	go b.readLoop(c)
	go b.writeLoop(c)
}

// register tracks c and reserves its two goroutines. It fails once Close has
// started, so Close never waits on a client it did not see.
func (b *Broadcaster) register(c *client) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return 0, false
	}
	b.clients[c.id] = c
	b.wg.Add(2)
	return len(b.clients), true
}

// readLoop consumes client frames so pongs and close frames are processed.
func (b *Broadcaster) readLoop(c *client) {
	defer b.wg.Done()
	defer b.remove(c, "client_closed")

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
	})
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writeLoop(c *client) {
	defer b.wg.Done()

	states, unsubscribe := b.feed.Subscribe(1)
	defer unsubscribe()

	var ping <-chan time.Time
	if b.cfg.PingInterval > 0 {
		ticker := time.NewTicker(b.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return

		case state, ok := <-states:
			if !ok {
				b.remove(c, "feed_closed")
				return
			}
			if err := b.send(c, state); err != nil {
				b.metrics.error("write")
				b.logger.Debug("Write failed", "client_id", c.id, "error", err)
				b.remove(c, "write_error")
				return
			}

		case <-ping:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(b.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				b.metrics.error("ping")
				b.remove(c, "ping_error")
				return
			}
		}
	}
}

func (b *Broadcaster) send(c *client, state stream.ApplicationState) error {
	data, err := Encode(state, time.Now())
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "broadcaster", "send", "write snapshot")
	}

	if b.metrics != nil {
		b.metrics.messagesSent.Inc()
		b.metrics.bytesSent.Add(float64(len(data)))
	}
	return nil
}

// Encode builds the snapshot envelope for state.
func Encode(state stream.ApplicationState, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, errors.WrapInvalid(err, "broadcaster", "Encode", "marshal state")
	}
	data, err := json.Marshal(MessageEnvelope{
		Type:      MessageTypeSnapshot,
		ID:        uuid.New().String(),
		Timestamp: now.UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "broadcaster", "Encode", "marshal envelope")
	}
	return data, nil
}

func (b *Broadcaster) remove(c *client, reason string) {
	b.mu.Lock()
	_, present := b.clients[c.id]
	delete(b.clients, c.id)
	count := len(b.clients)
	b.mu.Unlock()

	c.close()
	if !present {
		return
	}
	if b.metrics != nil {
		b.metrics.clientsConnected.Set(float64(count))
		b.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
	}
	b.logger.Info("Client disconnected", "client_id", c.id, "reason", reason,
		"duration", time.Since(c.connectedAt).Round(time.Millisecond))
}

// Close disconnects every client with a going-away frame and waits for their
// goroutines. New connections are refused afterwards.
func (b *Broadcaster) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		b.remove(c, "shutdown")
	}
	b.wg.Wait()
	return nil
}

func (b *Broadcaster) checkOrigin(r *http.Request) bool {
	if len(b.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range b.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
