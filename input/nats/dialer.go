package nats

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/errors"
)

const defaultTimeout = 5 * time.Second

// Dialer connects to a NATS server and subscribes to a telemetry subject.
// The client's own reconnect logic is disabled; the connection manager owns
// reconnection.
type Dialer struct {
	URL     string
	Subject string
	// CommandSubject receives outbound payloads. Writes are dropped when empty.
	CommandSubject string
	Name           string
	Timeout        time.Duration
	TLSConfig      *tls.Config
}

// Dial connects and subscribes.
func (d *Dialer) Dial(ctx context.Context) (connection.Conn, error) {
	if d.URL == "" || d.Subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "nats", "Dial", "require url and subject")
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "nats", "Dial", "connect")
	}

	opts := []nats.Option{
		nats.Timeout(timeout),
		nats.NoReconnect(),
	}
	if d.Name != "" {
		opts = append(opts, nats.Name(d.Name))
	}
	if d.TLSConfig != nil {
		opts = append(opts, nats.Secure(d.TLSConfig))
	}

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, errors.WrapTransient(errors.MarkTimeout(err), "nats", "Dial", "connect")
	}

	sub, err := nc.SubscribeSync(d.Subject)
	if err != nil {
		nc.Close()
		return nil, errors.WrapTransient(err, "nats", "Dial", "subscribe "+d.Subject)
	}
	return &Conn{nc: nc, sub: sub, commandSubject: d.CommandSubject}, nil
}

// Conn is one NATS connection with its telemetry subscription.
type Conn struct {
	nc             *nats.Conn
	sub            *nats.Subscription
	commandSubject string
	closed         atomic.Bool
}

// ReadMessage returns the next message on the telemetry subject.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	msg, err := c.sub.NextMsgWithContext(ctx)
	if err == nil {
		return msg.Data, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if c.closed.Load() {
		return nil, errors.Wrap(errors.ErrClosedNormally, "nats", "ReadMessage", "read message")
	}
	if stderrors.Is(err, nats.ErrConnectionClosed) || stderrors.Is(err, nats.ErrBadSubscription) {
		err = stderrors.Join(errors.ErrConnectionLost, err)
	}
	return nil, errors.WrapTransient(err, "nats", "ReadMessage", "read message")
}

// WriteMessage publishes data to the command subject.
func (c *Conn) WriteMessage(_ context.Context, data []byte) error {
	if c.commandSubject == "" {
		return nil
	}
	if err := c.nc.Publish(c.commandSubject, data); err != nil {
		return errors.WrapTransient(err, "nats", "WriteMessage", "publish")
	}
	return nil
}

// RTT measures the server round trip.
func (c *Conn) RTT() (time.Duration, error) {
	rtt, err := c.nc.RTT()
	if err != nil {
		return 0, errors.WrapTransient(err, "nats", "RTT", "measure round trip")
	}
	return rtt, nil
}

// Close unsubscribes and closes the connection.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.sub.Unsubscribe()
	c.nc.Close()
	return nil
}

var (
	_ connection.Conn        = (*Conn)(nil)
	_ connection.RTTProvider = (*Conn)(nil)
)
