// Package websocket serves application state snapshots to display clients.
//
// A Broadcaster is an http.Handler. Each upgraded connection gets its own
// latest-value subscription on the state feed, so a client always receives
// the current snapshot on connect and a slow client skips intermediate
// snapshots rather than stalling the pipeline.
//
//	b := websocket.NewBroadcaster(coordinator.Snapshots(),
//	    websocket.WithLogger(logger),
//	    websocket.WithMetrics(registry))
//	mux.Handle("/ws", b)
//	defer b.Close()
//
// Messages are JSON envelopes:
//
//	{"type":"snapshot","id":"<uuid>","timestamp":1700000000000,"payload":{...}}
//
// Clients are not expected to send anything; inbound frames are read and
// discarded so that close and pong frames are handled. The server pings every
// PingInterval and drops clients whose writes exceed WriteTimeout.
package websocket
