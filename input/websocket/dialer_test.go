package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/connection"
	"github.com/c360/telemetrystream/errors"
	"github.com/c360/telemetrystream/message"
	"github.com/c360/telemetrystream/testutil"
)

func dial(t *testing.T, server *testutil.MockServer) connection.Conn {
	t.Helper()
	d := &Dialer{URL: server.URL(), HandshakeTimeout: time.Second}
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case <-server.Connected():
	case <-time.After(time.Second):
		t.Fatal("server did not accept")
	}
	return conn
}

func TestDialer_ReadWrite(t *testing.T) {
	server := testutil.NewMockServer(t)
	conn := dial(t, server)

	server.Send([]byte(testutil.TestEventPayloads[0]))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, testutil.TestEventPayloads[0], string(data))

	require.NoError(t, conn.WriteMessage(ctx, []byte(`{"type":"subscribe"}`)))
	assert.Eventually(t, func() bool { return len(server.Received()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDialer_PingIsAnswered(t *testing.T) {
	server := testutil.NewMockServer(t)
	conn := dial(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.WriteMessage(ctx, message.Ping(time.Now())))

	data, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	frame, err := message.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, message.KindControl, frame.Kind)
	assert.Equal(t, message.ControlPong, frame.Control.Type)
}

func TestDialer_NormalCloseIsClean(t *testing.T) {
	server := testutil.NewMockServer(t)
	conn := dial(t, server)

	server.CloseClients(websocket.CloseNormalClosure)

	_, err := conn.ReadMessage(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrClosedNormally))
	assert.False(t, errors.IsTransient(err))
}

func TestDialer_AbnormalCloseIsTransient(t *testing.T) {
	server := testutil.NewMockServer(t)
	conn := dial(t, server)

	server.CloseClients(websocket.CloseGoingAway)

	_, err := conn.ReadMessage(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrClosedNormally))
	assert.True(t, errors.IsTransient(err))
}

func TestDialer_ReadHonorsContext(t *testing.T) {
	server := testutil.NewMockServer(t)
	conn := dial(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := conn.ReadMessage(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDialer_HandshakeRejected(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.SetReject(true)

	d := &Dialer{URL: server.URL()}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestDialer_HandshakeTimeout(t *testing.T) {
	addr := testutil.SilentListener(t)

	d := &Dialer{URL: "ws://" + addr + "/telemetry", HandshakeTimeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConnectionTimeout), "got %v", err)
	assert.True(t, errors.IsTransient(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDialer_MissingURL(t *testing.T) {
	_, err := (&Dialer{}).Dial(context.Background())
	assert.True(t, errors.IsInvalid(err))
}

func TestDialer_WithManager(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.SetWelcome(true)

	cfg := connection.DefaultConfig()
	cfg.InitialDelay = 20 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	m, err := connection.NewManager(&Dialer{URL: server.URL()}, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	m.Connect()
	require.Eventually(t, func() bool { return m.State().Connected() }, 2*time.Second, 10*time.Millisecond)

	server.Send(testutil.EventPayload("network", 33.3))
	select {
	case ev := <-m.Events():
		assert.Equal(t, message.CategoryNetwork, ev.Category)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	// An abrupt drop is reconnected.
	server.DropClients()
	require.Eventually(t, func() bool { return server.Accepts() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return m.State().Connected() }, 2*time.Second, 10*time.Millisecond)

	// A normal close is final.
	server.CloseClients(websocket.CloseNormalClosure)
	require.Eventually(t, func() bool { return m.State().Status == connection.StatusDisconnected },
		2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, server.Accepts())
}
