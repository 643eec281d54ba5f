// Package nswire provides a namespace-based real-time communication layer on
// top of WebSocket connections.
//
// The library implements path-keyed namespaces (isolated channels with their
// own client sets, handlers and statistics), a connection state machine with
// session resolution and role enforcement, keepalive health checking,
// per-client rate and size limiting, and broadcast fan-out that optionally
// spans horizontally scaled instances through a Redis pub/sub transport.
//
// # Architecture
//
// A Server owns a namespace registry. Literal paths map directly to
// namespaces; paths with `:param` segments register pattern templates that
// materialize into concrete namespaces on first matching connection, with
// the extracted parameters available on the connection context. All
// namespaces live under the reserved prefix /api/1/ws.
//
// Each upgrade request walks a fixed state machine: session resolution,
// authorization (requireAuth / requireRoles, with an optional public
// whitelist bypass), an optional per-connection create hook for
// pattern-derived namespaces, then handshake and registration. Handlers are
// bound at namespace creation and never change afterwards.
//
// # Quick Start
//
//	import (
//	    "github.com/nswire/nswire"
//	    "github.com/nswire/nswire/ws"
//	)
//
//	srv := ws.New(ws.DefaultConfig(), ws.Dependencies{Logger: log})
//
//	srv.CreateNamespace("/api/1/ws/chat", nswire.NamespaceOptions{
//	    OnConnect: func(clientID string, ctx *nswire.Ctx) {
//	        log.Info("joined", zap.String("client", clientID))
//	    },
//	    OnMessage: func(clientID string, msg map[string]any, ctx *nswire.Ctx) error {
//	        return srv.Broadcast(context.Background(), "/api/1/ws/chat", msg, ctx)
//	    },
//	})
//
//	srv.Start(ctx)
//
// # Wire Format
//
// Every server-to-client frame is a JSON envelope:
//
//	{ "success": true,  "data": <payload> }
//	{ "success": false, "error": "<string>", "code": <string|null> }
//
// The handshake completes with a welcome frame:
//
//	{ "success": true, "data": { "type": "connected", "clientId": "...",
//	  "namespace": "/api/1/ws/chat",
//	  "ctx": { "username": "...", "roles": [], "firstName": "...",
//	           "lastName": "...", "initials": "..." } } }
//
// Client-to-server frames are arbitrary JSON objects; the server appends the
// resolved username before handler dispatch. The IP address and path
// parameters of a connection are never echoed to clients.
//
// # Keepalive
//
// A single process-wide sweep pings every client each pingInterval and evicts
// any client whose last pong is older than pongTimeout+pingInterval. Eviction
// uses the same teardown path as a clean close; disconnect handlers cannot
// tell them apart.
//
// # Limiting
//
// Frames above messageLimits.maxSize bytes are dropped and logged, never
// surfaced to the client. Each client additionally has a sliding window of
// accepted-message timestamps: once messageLimits.maxMessages accumulate
// within messageLimits.interval, further frames are dropped until the window
// drains. Upgrade attempts themselves pass through a global token bucket.
//
// # Distributed Fan-Out
//
// With a Redis transport configured, broadcasts publish on a channel derived
// from the namespace path ("/api/1/ws/chat" -> "nswire:ns:api:1:ws:chat"; the
// translation is unambiguous because ':' is rejected inside literal path
// segments). Each instance subscribes once, maps channels back to paths,
// drops its own publications by instance id and fans remote payloads out to
// its local clients. Without a transport, broadcasts are local-only; this is
// an accepted limitation, not a failure. No ordering is guaranteed across
// instances broadcasting concurrently.
//
// # Important
//
//   - Message handlers run in goroutines; overlapping handlers for one
//     client may complete in any order.
//   - Delivery is best effort and in-memory only. There is no durability or
//     at-least-once guarantee.
//   - Configure the origin check in production (never use ws.AllOrigins()
//     outside development).
package nswire
