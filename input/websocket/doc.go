// Package websocket provides the websocket transport for the connection manager.
//
// Dialer performs the handshake with gorilla/websocket and returns a Conn.
// Text and binary data messages are delivered as raw payloads; a close frame
// with code 1000 from the peer is reported as errors.ErrClosedNormally so the
// manager ends the session without reconnecting. Any other read error is
// transient. Close sends a 1000 close frame before closing the socket.
package websocket
