// Package realtime implements the namespace registry, connection lifecycle,
// health checking, limiting, broadcast coordination and metrics behind the
// public nswire.Server interface.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nswire/nswire"
	"github.com/nswire/nswire/internal/config"
	"github.com/nswire/nswire/internal/protocol"
)

// Options wires the server with its collaborators. Zero-value fields fall
// back to safe defaults: a nop logger, anonymous sessions, role enforcement
// against the session, no transport and an allow-nothing origin check.
type Options struct {
	Config      *config.Config
	Logger      *zap.Logger
	Sessions    nswire.SessionResolver
	Auth        nswire.Authorizer
	Transport   nswire.Transport
	CheckOrigin func(r *http.Request) bool
}

// Server implements nswire.Server.
type Server struct {
	cfg       *config.Config
	log       *zap.Logger
	sessions  nswire.SessionResolver
	auth      nswire.Authorizer
	transport nswire.Transport

	instanceID string
	registry   *Registry
	stats      *GlobalStats
	instances  *InstanceRegistry

	upgrader       websocket.Upgrader
	upgradeLimiter *rate.Limiter
	mux            *http.ServeMux

	mu         sync.Mutex
	running    bool
	subscribed bool
	httpServer *http.Server
	loopCancel context.CancelFunc
}

// NewServer builds a server from options. It does not bind the listen
// address or start background loops; see Start.
func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = nswire.AnonymousSessions{}
	}
	auth := opts.Auth
	if auth == nil {
		auth = nswire.RoleAuthorizer{}
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return false }
	}

	s := &Server{
		cfg:        cfg,
		log:        log.With(zap.String("scope", "realtime")),
		sessions:   sessions,
		auth:       auth,
		transport:  opts.Transport,
		instanceID: uuid.NewString(),
		stats:      NewGlobalStats(cfg.ActivityLogMaxSize, cfg.ActivityLogEntryBytes),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		upgradeLimiter: rate.NewLimiter(rate.Limit(cfg.UpgradeLimits.PerSecond), cfg.UpgradeLimits.Burst),
	}
	s.registry = NewRegistry(log)
	s.instances = NewInstanceRegistry(s.instanceID, cfg.Addr, cfg.InstanceRegistryInterval)

	s.mux = http.NewServeMux()
	s.mux.HandleFunc(nswire.APIPrefix+"/", s.handleUpgrade)
	return s
}

// Handler returns the HTTP handler serving upgrade requests.
func (s *Server) Handler() http.Handler { return s.mux }

// CreateNamespace registers a literal namespace or a pattern template.
func (s *Server) CreateNamespace(path string, opts nswire.NamespaceOptions) error {
	return s.registry.Create(path, opts)
}

// RemoveNamespace deletes a literal namespace, optionally refusing while
// clients remain connected.
func (s *Server) RemoveNamespace(path string, removeIfEmpty bool) bool {
	return s.registry.Remove(path, removeIfEmpty)
}

// Start binds the listen address, starts the health sweep, the instance
// heartbeat and the remote subscription, then serves until Stop or context
// cancellation.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(nswire.ErrServerAlreadyRunning)
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.mu.Unlock()

	go s.healthLoop(loopCtx)
	go s.heartbeatLoop(loopCtx)
	s.subscribeRemote(loopCtx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		cancel()
		return err
	case <-ctx.Done():
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		s.log.Info("server started", zap.String("addr", s.cfg.Addr), zap.String("instance", s.instanceID))
		return nil
	}
}

// Stop closes every client connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Debug(nswire.ErrServerNotRunning)
		return nil
	}
	s.running = false
	cancel := s.loopCancel
	srv := s.httpServer
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ns := range s.registry.All() {
		for _, c := range ns.snapshot() {
			s.teardown(ns, c, websocket.CloseGoingAway, "server shutting down")
		}
	}
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleUpgrade runs the connection state machine: throttle, namespace
// resolution, session resolution, authorization, create hook, handshake.
// Every rejection refuses the upgrade with a plain HTTP status; no frame
// ever reaches a rejected client.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.upgradeLimiter.Allow() {
		s.log.Warn("upgrade throttled", zap.String("remote", r.RemoteAddr))
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	path := r.URL.Path
	ns, params, ok := s.registry.Resolve(path)
	if !ok {
		s.log.Info("rejecting connection to unknown namespace", zap.String("path", path))
		http.Error(w, nswire.ErrUnknownNamespace, http.StatusNotFound)
		return
	}

	sess, err := s.sessions.Resolve(r)
	if err != nil {
		s.log.Warn("session resolution failed, treating as anonymous",
			zap.String("path", path), zap.Error(err))
		sess = nil
	}

	whitelisted := s.cfg.PublicAccess.Enabled && matchWhitelist(path, s.cfg.PublicAccess.Whitelisted)
	if !whitelisted {
		if ns.opts.RequireAuth && !s.auth.IsAuthenticated(sess) {
			s.log.Info("rejecting unauthenticated connection", zap.String("path", path))
			http.Error(w, nswire.ErrNotAuthenticated, http.StatusForbidden)
			return
		}
		if len(ns.opts.RequireRoles) > 0 && !s.auth.IsAuthorized(sess, ns.opts.RequireRoles) {
			s.log.Info("rejecting connection lacking required role",
				zap.String("path", path), zap.Strings("required", ns.opts.RequireRoles))
			http.Error(w, nswire.ErrNotAuthorized, http.StatusForbidden)
			return
		}
	}

	userCtx := nswire.CtxFromSession(sess, remoteIP(r))
	userCtx.Params = params

	if ns.fromPattern && ns.opts.OnCreate != nil {
		amended, err := s.runCreateHook(ns.opts.OnCreate, r, userCtx)
		if err != nil {
			s.log.Info("create hook rejected connection", zap.String("path", path), zap.Error(err))
			http.Error(w, nswire.ErrCreateHookRejected, http.StatusForbidden)
			return
		}
		if amended != nil {
			userCtx = amended
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.String("path", path), zap.Error(err))
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	readWait := s.cfg.PingInterval + s.cfg.PongTimeout
	window := newSlidingWindow(s.cfg.MessageLimits.Interval, s.cfg.MessageLimits.MaxMessages)
	client := newClient(clientID, path, conn, userCtx, window, readWait)

	if prev, ok := ns.client(clientID); ok {
		// Reconnection reusing its id: the stale connection goes through
		// the ordinary teardown before the id is rebound.
		s.log.Info("replacing client connection", zap.String("client", clientID), zap.String("path", path))
		s.teardown(ns, prev, websocket.CloseNormalClosure, "superseded by reconnection")
	}
	ns.addClient(client)
	connectionsActive.Inc()

	welcome, err := protocol.EncodeWelcome(clientID, path, userCtx.Public())
	if err != nil {
		s.log.Error("encoding welcome frame", zap.Error(err))
	} else if err := client.Send(welcome); err != nil {
		s.log.Warn("sending welcome frame", zap.String("client", clientID), zap.Error(err))
	}

	s.stats.RecordEvent(path, "connect "+userCtx.Username)
	s.log.Info("client connected",
		zap.String("client", clientID), zap.String("path", path),
		zap.String("username", userCtx.Username), zap.String("remote", r.RemoteAddr))

	if ns.opts.OnConnect != nil {
		s.safeConnect(ns.opts.OnConnect, client)
	}

	go s.readLoop(ns, client)
}

// readLoop is the per-connection message loop. Inbound frames pass size and
// rate checks before JSON parsing; handlers dispatch on their own goroutine.
func (s *Server) readLoop(ns *Namespace, c *Client) {
	defer s.teardown(ns, c, websocket.CloseNormalClosure, "")

	limits := s.cfg.MessageLimits
	readWait := s.cfg.PingInterval + s.cfg.PongTimeout
	// The transport-level cap sits above the drop ceiling so oversized
	// frames can be read and discarded instead of killing the connection.
	c.conn.SetReadLimit(4*limits.MaxSize + 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("read error", zap.String("client", c.ID()), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

		if int64(len(data)) > limits.MaxSize {
			droppedTotal.WithLabelValues("oversize").Inc()
			s.log.Warn("dropping oversized frame",
				zap.String("client", c.ID()), zap.Int("bytes", len(data)), zap.Int64("ceiling", limits.MaxSize))
			continue
		}
		now := time.Now()
		if !c.allow(now) {
			droppedTotal.WithLabelValues("rate").Inc()
			s.log.Warn("dropping frame over rate limit",
				zap.String("client", c.ID()), zap.Int("ceiling", limits.MaxMessages))
			continue
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			s.log.Info("malformed message", zap.String("client", c.ID()), zap.Error(err))
			if sendErr := c.Send(protocol.EncodeError(nswire.ErrMalformedMessage, nswire.CodeMalformedMessage)); sendErr != nil {
				s.log.Warn("sending error frame", zap.Error(sendErr))
			}
			continue
		}

		msg["username"] = c.Ctx().Username
		ns.recordActivity(now)
		messagesTotal.Inc()
		s.stats.RecordMessage(ns.Path(), summarize(msg, data))

		if ns.opts.OnMessage != nil {
			go s.invokeMessage(ns, c, msg)
		}
	}
}

// invokeMessage runs one handler call. Errors and panics are contained; the
// originating client receives a generic error frame, nothing else surfaces.
func (s *Server) invokeMessage(ns *Namespace, c *Client, msg map[string]any) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v", nswire.ErrHandlerFailed, r)
			}
		}()
		return ns.opts.OnMessage(c.ID(), msg, c.Ctx())
	}()
	if err == nil {
		return
	}
	s.log.Error("message handler failed",
		zap.String("path", ns.Path()), zap.String("client", c.ID()), zap.Error(err))
	if sendErr := c.Send(protocol.EncodeError(nswire.ErrHandlerFailed, nswire.CodeHandlerError)); sendErr != nil {
		s.log.Warn("sending handler error frame", zap.Error(sendErr))
	}
}

// teardown removes the client from its namespace, closes the connection and
// fires the disconnect handler, in that order. Runs at most once per client
// regardless of how many paths (read loop exit, eviction, shutdown,
// namespace removal) race to it.
func (s *Server) teardown(ns *Namespace, c *Client, code int, reason string) {
	c.teardownOnce.Do(func() {
		removed := ns.removeClient(c)
		if err := c.Close(code, reason); err != nil {
			s.log.Debug("closing client", zap.String("client", c.ID()), zap.Error(err))
		}
		if removed {
			connectionsActive.Dec()
		}
		s.log.Info("client disconnected", zap.String("client", c.ID()), zap.String("path", ns.Path()))
		if ns.opts.OnDisconnect != nil {
			s.safeDisconnect(ns.opts.OnDisconnect, c)
		}
	})
}

func (s *Server) safeConnect(h nswire.ConnectHandler, c *Client) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("connect handler panicked", zap.String("client", c.ID()), zap.Any("panic", r))
		}
	}()
	h(c.ID(), c.Ctx())
}

func (s *Server) safeDisconnect(h nswire.DisconnectHandler, c *Client) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("disconnect handler panicked", zap.String("client", c.ID()), zap.Any("panic", r))
		}
	}()
	h(c.ID(), c.Ctx())
}

func (s *Server) runCreateHook(hook nswire.CreateHook, r *http.Request, ctx *nswire.Ctx) (amended *nswire.Ctx, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			amended, err = nil, fmt.Errorf("%s: panic: %v", nswire.ErrCreateHookRejected, rec)
		}
	}()
	return hook(r, ctx.Clone())
}

// Metrics returns the full snapshot.
func (s *Server) Metrics() nswire.Metrics {
	return s.buildMetrics(time.Now(), nil)
}

// PublicMetrics filters the snapshot to the configured allow-list. With
// public access disabled, or enabled without any allow-list entries, the
// view carries only uptime: the public view never falls open.
func (s *Server) PublicMetrics() nswire.Metrics {
	now := time.Now()
	whitelist := s.cfg.PublicAccess.Whitelisted
	if !s.cfg.PublicAccess.Enabled || len(whitelist) == 0 {
		return nswire.Metrics{
			StartedAt:  s.stats.StartedAt(),
			Uptime:     now.Sub(s.stats.StartedAt()),
			Namespaces: map[string]nswire.NamespaceMetrics{},
		}
	}
	return s.buildMetrics(now, whitelist)
}

func (s *Server) buildMetrics(now time.Time, whitelist []string) nswire.Metrics {
	m := nswire.Metrics{
		StartedAt:  s.stats.StartedAt(),
		Uptime:     now.Sub(s.stats.StartedAt()),
		Namespaces: make(map[string]nswire.NamespaceMetrics),
	}
	for _, ns := range s.registry.All() {
		if whitelist != nil && !matchWhitelist(ns.Path(), whitelist) {
			continue
		}
		m.Namespaces[ns.Path()] = ns.metricsSnapshot(now, s.cfg.StatusTimeouts.Warning, s.cfg.StatusTimeouts.Inactive)
	}
	for _, e := range s.stats.Entries() {
		if whitelist != nil && !matchWhitelist(e.Namespace, whitelist) {
			continue
		}
		m.ActivityLog = append(m.ActivityLog, e)
	}
	if whitelist == nil {
		m.TotalMessages = s.stats.Total()
		m.Instances = s.instances.Snapshot(now)
	}
	return m
}

// matchWhitelist matches a path against allow-list entries: exact paths or
// prefix wildcards ending in '*'.
func matchWhitelist(path string, patterns []string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// summarize builds an activity-log line from an accepted message. The type
// field is the most useful discriminator; the raw length keeps entries
// cheap.
func summarize(msg map[string]any, raw []byte) string {
	t, _ := msg["type"].(string)
	user, _ := msg["username"].(string)
	return fmt.Sprintf("message type=%q from=%q bytes=%d", t, user, len(raw))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
