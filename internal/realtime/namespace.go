package realtime

import (
	"sync"
	"time"

	"github.com/nswire/nswire"
)

// rateWindow is the trailing interval used for messages-per-minute figures.
const rateWindow = time.Minute

// Namespace is one isolated channel: a client set, immutable handler
// bindings and local statistics. Namespaces are created once (at startup or
// lazily for pattern matches) and live until explicitly removed.
type Namespace struct {
	path        string
	opts        nswire.NamespaceOptions
	fromPattern bool
	createdAt   time.Time

	mu            sync.RWMutex
	clients       map[string]*Client
	totalMessages uint64
	lastActivity  time.Time
	recent        []time.Time
}

func newNamespace(path string, opts nswire.NamespaceOptions, fromPattern bool) *Namespace {
	now := time.Now()
	return &Namespace{
		path:         path,
		opts:         opts,
		fromPattern:  fromPattern,
		createdAt:    now,
		lastActivity: now,
		clients:      make(map[string]*Client),
	}
}

func (n *Namespace) Path() string { return n.path }

// addClient registers c under its id. Callers resolve id collisions (a
// reconnection reusing its id) before registering.
func (n *Namespace) addClient(c *Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clients[c.ID()] = c
}

// removeClient removes the entry for c only if it is still the registered
// client for its id, so tearing down a replaced connection never evicts its
// successor.
func (n *Namespace) removeClient(c *Client) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.clients[c.ID()] != c {
		return false
	}
	delete(n.clients, c.ID())
	return true
}

func (n *Namespace) client(id string) (*Client, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.clients[id]
	return c, ok
}

func (n *Namespace) clientCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// snapshot returns the current client set for iteration outside the lock.
func (n *Namespace) snapshot() []*Client {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Client, 0, len(n.clients))
	for _, c := range n.clients {
		out = append(out, c)
	}
	return out
}

// recordActivity bumps the message counter and the trailing rate window.
// Stale window entries are pruned on every call; the window never grows
// unbounded.
func (n *Namespace) recordActivity(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.totalMessages++
	n.lastActivity = now
	cutoff := now.Add(-rateWindow)
	keep := n.recent[:0]
	for _, t := range n.recent {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	n.recent = append(keep, now)
}

// metricsSnapshot classifies namespace health against the two status
// thresholds and reports distinct users and the trailing message rate.
func (n *Namespace) metricsSnapshot(now time.Time, warning, inactive time.Duration) nswire.NamespaceMetrics {
	n.mu.RLock()
	defer n.mu.RUnlock()

	health := "healthy"
	switch idle := now.Sub(n.lastActivity); {
	case idle >= inactive:
		health = "inactive"
	case idle >= warning:
		health = "warning"
	}

	users := make(map[string]struct{}, len(n.clients))
	for _, c := range n.clients {
		users[c.Ctx().Username] = struct{}{}
	}

	perMinute := 0
	cutoff := now.Add(-rateWindow)
	for _, t := range n.recent {
		if t.After(cutoff) {
			perMinute++
		}
	}

	return nswire.NamespaceMetrics{
		Health:            health,
		Clients:           len(n.clients),
		ActiveUsers:       len(users),
		MessagesPerMinute: perMinute,
		TotalMessages:     n.totalMessages,
		LastActivity:      n.lastActivity,
	}
}
