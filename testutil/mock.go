package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// MockServer is a scripted websocket telemetry source backed by httptest.
// It answers application-level pings with pongs and records everything
// clients send.
type MockServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	accepts  int
	reject   bool
	welcome  bool

	connected chan struct{}
}

// NewMockServer starts a server that is shut down when the test ends.
func NewMockServer(t *testing.T) *MockServer {
	t.Helper()
	m := &MockServer{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		connected: make(chan struct{}, 16),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// URL returns the ws:// address of the server.
func (m *MockServer) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

// SetReject makes new handshakes fail with 503 while on.
func (m *MockServer) SetReject(reject bool) {
	m.mu.Lock()
	m.reject = reject
	m.mu.Unlock()
}

// SetWelcome makes the server greet each client with a connected frame.
func (m *MockServer) SetWelcome(welcome bool) {
	m.mu.Lock()
	m.welcome = welcome
	m.mu.Unlock()
}

// Connected is signalled once per accepted client.
func (m *MockServer) Connected() <-chan struct{} {
	return m.connected
}

// Accepts returns the number of accepted handshakes.
func (m *MockServer) Accepts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepts
}

// Send writes payload to every connected client.
func (m *MockServer) Send(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

// CloseClients closes every client with the given close code.
func (m *MockServer) CloseClients(code int) {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// DropClients closes every client socket without a close frame.
func (m *MockServer) DropClients() {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Received returns a copy of every message clients sent.
func (m *MockServer) Received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.received))
	copy(out, m.received)
	return out
}

// Close stops the server and disconnects every client.
func (m *MockServer) Close() {
	m.DropClients()
	m.server.Close()
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	reject := m.reject
	m.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	c, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conns = append(m.conns, c)
	m.accepts++
	if m.welcome {
		_ = c.WriteMessage(websocket.TextMessage, []byte(TestControlPayloads[0]))
	}
	m.mu.Unlock()

	select {
	case m.connected <- struct{}{}:
	default:
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.received = append(m.received, data)
		if strings.Contains(string(data), `"type":"ping"`) {
			_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		}
		m.mu.Unlock()
	}
}
