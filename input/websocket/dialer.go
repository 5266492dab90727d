package websocket

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/errors"
)

const (
	defaultHandshakeTimeout = 45 * time.Second
	closeGracePeriod        = time.Second
)

// Dialer opens websocket connections to a telemetry source.
type Dialer struct {
	URL              string
	HandshakeTimeout time.Duration
	// ReadLimit caps inbound message size in bytes. Zero means no limit.
	ReadLimit int64
	Header    http.Header
	TLSConfig *tls.Config
}

// Dial performs the websocket handshake.
func (d *Dialer) Dial(ctx context.Context) (connection.Conn, error) {
	if d.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "websocket", "Dial", "require url")
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  d.TLSConfig,
	}

	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.WrapTransient(errors.MarkTimeout(err), "websocket", "Dial", "handshake")
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	return &Conn{ws: ws}, nil
}

// Conn adapts a gorilla websocket connection to connection.Conn.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// ReadMessage blocks for the next data message. Cancelling ctx interrupts the
// read by expiring the read deadline.
func (c *Conn) ReadMessage(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return nil, errors.Wrap(errors.ErrClosedNormally, "websocket", "ReadMessage", "read message")
	}
	return nil, errors.WrapTransient(err, "websocket", "ReadMessage", "read message")
}

// WriteMessage sends data as a text message. Writes are serialized.
func (c *Conn) WriteMessage(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errors.WrapTransient(err, "websocket", "WriteMessage", "set write deadline")
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "websocket", "WriteMessage", "write message")
	}
	return nil
}

// Close sends a normal-closure frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

var _ connection.Conn = (*Conn)(nil)
