package nswire

import (
	"context"
	"net/http"
	"time"
)

// Server is a namespace-based real-time communication server.
//
// Namespaces are isolated channels keyed by path. Every path lives under the
// reserved API prefix (see APIPrefix). A path may contain `:param` segments,
// in which case it registers a pattern template that materializes into
// concrete literal namespaces on first matching connection.
//
// Example usage:
//
//	import "github.com/nswire/nswire/ws"
//
//	srv := ws.New(ws.DefaultConfig(), ws.Dependencies{Logger: log})
//
//	srv.CreateNamespace("/api/1/ws/room/:id", nswire.NamespaceOptions{
//	    OnMessage: func(clientID string, msg map[string]any, ctx *nswire.Ctx) error {
//	        return srv.Broadcast(context.Background(), "/api/1/ws/room/"+ctx.Params["id"], msg, ctx)
//	    },
//	})
//
//	srv.Start(ctx)
type Server interface {
	// Start starts the server and begins accepting upgrade requests.
	// It returns an error if the server is already running or the listen
	// address cannot be bound.
	Start(ctx context.Context) error

	// Stop gracefully stops the server and closes all client connections.
	Stop(ctx context.Context) error

	// Handler returns the HTTP handler serving upgrade requests under the
	// reserved prefix, for callers that embed the server into an existing
	// mux instead of calling Start.
	Handler() http.Handler

	// CreateNamespace registers a namespace for the given path. The path
	// must start with APIPrefix. Paths containing `:param` segments register
	// a pattern template; literal paths register immediately. Registering a
	// duplicate literal path fails without mutating existing state.
	CreateNamespace(path string, opts NamespaceOptions) error

	// RemoveNamespace deletes a literal namespace. When removeIfEmpty is
	// true the removal is skipped (and logged) if the namespace still has
	// connected clients. Returns whether the namespace was removed.
	RemoveNamespace(path string, removeIfEmpty bool) bool

	// Broadcast sends data to every client connected to the namespace at
	// path, merged with the sender context (a system identity is used when
	// sender is nil). When a distributed transport is configured the payload
	// is also published so other instances fan out to their own clients.
	//
	// Delivery is best effort and cross-instance ordering is not guaranteed
	// when two instances broadcast to the same namespace at overlapping
	// times.
	Broadcast(ctx context.Context, path string, data map[string]any, sender *Ctx) error

	// SendToClient sends data to a single client in the namespace at path.
	// If the client is absent or its connection is not open the call is a
	// no-op and the condition is logged.
	SendToClient(ctx context.Context, clientID, path string, data map[string]any, sender *Ctx) error

	// Metrics returns the full metrics snapshot: per-namespace health,
	// active users, message rates, the activity log and known instances.
	Metrics() Metrics

	// PublicMetrics returns the metrics snapshot filtered to the configured
	// public allow-list, for unprivileged observers.
	PublicMetrics() Metrics
}

// Client represents one connected client inside a namespace.
type Client interface {
	// ID returns the client identifier, unique within its namespace. It is
	// either supplied by the client on connect (reconnection continuity) or
	// generated by the server.
	ID() string

	// Ctx returns the identity context resolved during the handshake.
	Ctx() *Ctx

	// IsAlive reports whether the connection is still open.
	IsAlive() bool
}

// ConnectHandler fires after a client completes the handshake and is
// registered in its namespace.
type ConnectHandler func(clientID string, ctx *Ctx)

// MessageHandler fires for each accepted inbound message. The message map is
// the parsed client JSON with the resolved username appended. Handlers run on
// their own goroutine; overlapping invocations for one client may complete in
// any order. A returned error is reported to the originating client as a
// generic error frame.
type MessageHandler func(clientID string, message map[string]any, ctx *Ctx) error

// DisconnectHandler fires after a client has been removed from its namespace,
// whether the disconnect was a clean close, an error or a keepalive eviction.
type DisconnectHandler func(clientID string, ctx *Ctx)

// CreateHook runs for pattern-derived namespaces between authorization and
// handshake completion. It receives the raw upgrade request and the proposed
// context. It may return the context unchanged, return an amended context to
// use instead, or return an error to reject the connection.
type CreateHook func(r *http.Request, ctx *Ctx) (*Ctx, error)

// NamespaceOptions carries the full configuration of a namespace. All
// handlers are bound at creation time; namespaces are immutable afterwards.
type NamespaceOptions struct {
	// RequireAuth rejects connections whose session is not authenticated.
	RequireAuth bool
	// RequireRoles rejects sessions holding none of the listed roles.
	RequireRoles []string
	// OnCreate runs once per connection on pattern-derived namespaces.
	OnCreate CreateHook

	OnConnect    ConnectHandler
	OnMessage    MessageHandler
	OnDisconnect DisconnectHandler
}

// Session is the identity resolved from an upgrade request by the session
// collaborator. A nil or zero Session is an anonymous visitor.
type Session struct {
	Authenticated bool
	Username      string
	Roles         []string
	FirstName     string
	LastName      string
}

// SessionResolver resolves the session attached to an upgrade request.
type SessionResolver interface {
	Resolve(r *http.Request) (*Session, error)
}

// Authorizer enforces authentication and role checks against a resolved
// session. Policy definition is out of scope; only enforcement happens here.
type Authorizer interface {
	IsAuthenticated(s *Session) bool
	// IsAuthorized reports whether the session holds at least one of roles.
	IsAuthorized(s *Session, roles []string) bool
}

// Transport is the optional distributed pub/sub used to fan broadcasts out
// across horizontally scaled instances. Publish is fire and forget; Subscribe
// delivers asynchronously. Absence of a transport degrades broadcasts to
// single-instance delivery.
type Transport interface {
	IsAvailable(ctx context.Context) bool
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, pattern string, fn func(channel string, payload []byte)) error
	Close() error
}

// Instance describes one process in a scaled deployment, as seen through
// transport heartbeats. The registry is advisory and used for diagnostics.
type Instance struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	LastSeen time.Time `json:"lastSeen"`
	Status   string    `json:"status"`
}

// NamespaceMetrics is the per-namespace slice of a metrics snapshot.
type NamespaceMetrics struct {
	// Health is one of "healthy", "warning" or "inactive", classified from
	// the elapsed time since last activity against the configured
	// statusTimeouts thresholds.
	Health            string    `json:"health"`
	Clients           int       `json:"clients"`
	ActiveUsers       int       `json:"activeUsers"`
	MessagesPerMinute int       `json:"messagesPerMinute"`
	TotalMessages     uint64    `json:"totalMessages"`
	LastActivity      time.Time `json:"lastActivity"`
}

// ActivityEntry is one bounded, truncated entry of the global activity log.
type ActivityEntry struct {
	At        time.Time `json:"at"`
	Namespace string    `json:"namespace"`
	Summary   string    `json:"summary"`
}

// Metrics is a point-in-time snapshot of server statistics.
type Metrics struct {
	StartedAt     time.Time                   `json:"startedAt"`
	Uptime        time.Duration               `json:"uptime"`
	TotalMessages uint64                      `json:"totalMessages"`
	Namespaces    map[string]NamespaceMetrics `json:"namespaces"`
	ActivityLog   []ActivityEntry             `json:"activityLog"`
	Instances     []Instance                  `json:"instances"`
}
