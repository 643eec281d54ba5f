package realtime

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nswire/nswire"
)

// patternNamespace is a registered path template. It holds configuration and
// handler bindings only and never holds live clients; concrete namespaces
// are cloned from it on first matching connection.
type patternNamespace struct {
	pattern *pathPattern
	opts    nswire.NamespaceOptions
}

// Registry maps literal paths to namespaces and keeps the ordered pattern
// list used for lazy materialization.
type Registry struct {
	log *zap.Logger

	mu         sync.RWMutex
	namespaces map[string]*Namespace
	patterns   []*patternNamespace
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:        log.With(zap.String("scope", "registry")),
		namespaces: make(map[string]*Namespace),
	}
}

// Create registers a namespace for path. Paths with `:param` segments
// register a template and return immediately; literal paths register a live
// namespace. Duplicate literal paths fail without mutating state.
func (r *Registry) Create(path string, opts nswire.NamespaceOptions) error {
	if hasParams(path) {
		p, err := compilePattern(path)
		if err != nil {
			return err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.patterns = append(r.patterns, &patternNamespace{pattern: p, opts: opts})
		r.log.Info("registered pattern namespace", zap.String("path", path))
		return nil
	}

	if err := validateLiteralPath(path); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.namespaces[path]; exists {
		return errors.New(nswire.ErrDuplicateNamespace + ": " + path)
	}
	r.namespaces[path] = newNamespace(path, opts, false)
	r.log.Info("registered namespace", zap.String("path", path))
	return nil
}

// Remove deletes a literal namespace. With removeIfEmpty the removal is
// skipped when clients are still connected; otherwise remaining clients are
// closed first. Returns whether the namespace was removed, never errors.
func (r *Registry) Remove(path string, removeIfEmpty bool) bool {
	r.mu.Lock()
	ns, ok := r.namespaces[path]
	if !ok {
		r.mu.Unlock()
		r.log.Info("remove skipped, namespace not found", zap.String("path", path))
		return false
	}
	if removeIfEmpty && ns.clientCount() > 0 {
		r.mu.Unlock()
		r.log.Info("remove skipped, namespace has clients",
			zap.String("path", path), zap.Int("clients", ns.clientCount()))
		return false
	}
	delete(r.namespaces, path)
	r.mu.Unlock()

	for _, c := range ns.snapshot() {
		if err := c.Close(websocket.CloseGoingAway, "namespace removed"); err != nil {
			r.log.Warn("closing client on namespace removal", zap.Error(err))
		}
	}
	r.log.Info("removed namespace", zap.String("path", path))
	return true
}

// Get returns the literal namespace for path.
func (r *Registry) Get(path string) (*Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.namespaces[path]
	return ns, ok
}

// All returns a snapshot of every live namespace.
func (r *Registry) All() []*Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Namespace, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		out = append(out, ns)
	}
	return out
}

// Resolve finds the namespace serving a concrete connection path. The
// literal lookup and the pattern match run independently so parameters
// populate even when the literal namespace already exists from an earlier
// connection. The first pattern match for a new concrete path materializes a
// fresh namespace from the template.
func (r *Registry) Resolve(path string) (*Namespace, map[string]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns := r.namespaces[path]

	var params map[string]string
	var matched *patternNamespace
	for _, p := range r.patterns {
		if m, ok := p.pattern.match(path); ok {
			params = m
			matched = p
			break
		}
	}

	if ns == nil {
		if matched == nil {
			return nil, nil, false
		}
		if err := validateLiteralPath(path); err != nil {
			r.log.Warn("rejecting pattern match with invalid concrete path",
				zap.String("path", path), zap.Error(err))
			return nil, nil, false
		}
		ns = newNamespace(path, matched.opts, true)
		r.namespaces[path] = ns
		r.log.Info("materialized namespace from pattern",
			zap.String("path", path), zap.String("pattern", matched.pattern.source))
	}

	return ns, params, true
}
