package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/telemetrystream/errors"
)

// fakeDialer hands out scripted results in order; once the script is exhausted
// every dial succeeds with a fresh fakeConn.
type fakeDialer struct {
	mu      sync.Mutex
	script  []error
	conns   []*fakeConn
	dials   atomic.Int32
	dialed  chan *fakeConn
	withRTT time.Duration
}

func newFakeDialer(script ...error) *fakeDialer {
	return &fakeDialer{script: script, dialed: make(chan *fakeConn, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.dials.Add(1)

	d.mu.Lock()
	var err error
	if len(d.script) > 0 {
		err, d.script = d.script[0], d.script[1:]
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	d.dialed <- c
	if d.withRTT > 0 {
		return &rttConn{fakeConn: c, rtt: d.withRTT}, nil
	}
	return c, nil
}

type fakeConn struct {
	in      chan []byte
	fail    chan error
	written chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		fail:    make(chan error, 1),
		written: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case err := <-c.fail:
		return nil, err
	case <-c.closed:
		return nil, errors.ErrConnectionLost
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteMessage(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errors.ErrNotConnected
	default:
	}
	select {
	case c.written <- data:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type rttConn struct {
	*fakeConn
	rtt time.Duration
}

func (c *rttConn) RTT() (time.Duration, error) {
	return c.rtt, nil
}
