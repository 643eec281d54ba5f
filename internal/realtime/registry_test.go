package realtime

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nswire/nswire"
)

// TestRegistryCreateLiteral tests literal registration and duplicate handling
func TestRegistryCreateLiteral(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zap.NewNop())
	if err := r.Create("/api/1/ws/chat", nswire.NamespaceOptions{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ns, ok := r.Get("/api/1/ws/chat")
	if !ok {
		t.Fatal("registered namespace not found")
	}

	// The duplicate must fail and must not disturb the original.
	if err := r.Create("/api/1/ws/chat", nswire.NamespaceOptions{}); err == nil {
		t.Error("duplicate Create() should fail")
	}
	if again, _ := r.Get("/api/1/ws/chat"); again != ns {
		t.Error("failed duplicate registration replaced the namespace")
	}
}

// TestRegistryCreateRejectsBadPaths tests path validation at registration
func TestRegistryCreateRejectsBadPaths(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zap.NewNop())
	for _, path := range []string{"/elsewhere/chat", "/api/1/ws/a:b", "/api/1/ws//x"} {
		if err := r.Create(path, nswire.NamespaceOptions{}); err == nil {
			t.Errorf("Create(%q) should fail", path)
		}
	}
}

// TestRegistryPatternMaterialization tests lazy creation from templates
func TestRegistryPatternMaterialization(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zap.NewNop())
	if err := r.Create("/api/1/ws/room/:id", nswire.NamespaceOptions{}); err != nil {
		t.Fatalf("Create(pattern) error = %v", err)
	}

	// The template itself is not a live namespace.
	if len(r.All()) != 0 {
		t.Fatalf("len(All()) = %d before any connection, want 0", len(r.All()))
	}

	ns42, params, ok := r.Resolve("/api/1/ws/room/42")
	if !ok {
		t.Fatal("Resolve(room/42) should match the pattern")
	}
	if params["id"] != "42" {
		t.Errorf("id = %q, want 42", params["id"])
	}
	if !ns42.fromPattern {
		t.Error("materialized namespace should be marked as pattern-born")
	}

	// A second resolve reuses the materialized namespace.
	again, _, _ := r.Resolve("/api/1/ws/room/42")
	if again != ns42 {
		t.Error("second Resolve materialized a duplicate namespace")
	}

	// A different concrete value is a separate namespace.
	ns43, params, _ := r.Resolve("/api/1/ws/room/43")
	if ns43 == ns42 {
		t.Error("distinct parameter values should map to distinct namespaces")
	}
	if params["id"] != "43" {
		t.Errorf("id = %q, want 43", params["id"])
	}
	if len(r.All()) != 2 {
		t.Errorf("len(All()) = %d, want 2", len(r.All()))
	}
}

// TestRegistryResolveParamsForExistingNamespace tests that parameters
// populate even when the concrete namespace pre-exists
func TestRegistryResolveParamsForExistingNamespace(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zap.NewNop())
	if err := r.Create("/api/1/ws/room/77", nswire.NamespaceOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Create("/api/1/ws/room/:id", nswire.NamespaceOptions{}); err != nil {
		t.Fatal(err)
	}

	_, params, ok := r.Resolve("/api/1/ws/room/77")
	if !ok {
		t.Fatal("Resolve() should find the literal namespace")
	}
	if params["id"] != "77" {
		t.Errorf("id = %q, want 77 (pattern match runs even for literal hits)", params["id"])
	}
}

// TestRegistryResolveUnknown tests that unmatched paths resolve to nothing
func TestRegistryResolveUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zap.NewNop())
	if _, _, ok := r.Resolve("/api/1/ws/nowhere"); ok {
		t.Error("unknown path should not resolve")
	}
}

// TestRegistryRemove tests removal semantics
func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry(zap.NewNop())
	if err := r.Create("/api/1/ws/chat", nswire.NamespaceOptions{}); err != nil {
		t.Fatal(err)
	}

	if r.Remove("/api/1/ws/missing", false) {
		t.Error("removing an unknown namespace should report false")
	}

	ns, _ := r.Get("/api/1/ws/chat")
	ns.addClient(&Client{id: "c-1"})
	if r.Remove("/api/1/ws/chat", true) {
		t.Error("removeIfEmpty must skip a namespace with clients")
	}
	if _, ok := r.Get("/api/1/ws/chat"); !ok {
		t.Fatal("skipped removal must leave the namespace in place")
	}

	c, _ := ns.client("c-1")
	ns.removeClient(c)

	if !r.Remove("/api/1/ws/chat", true) {
		t.Error("empty namespace should be removed")
	}
	if _, ok := r.Get("/api/1/ws/chat"); ok {
		t.Error("removed namespace still resolvable")
	}
}

// TestNamespaceClientAccounting tests add/remove and replacement safety
func TestNamespaceClientAccounting(t *testing.T) {
	t.Parallel()

	ns := newNamespace("/api/1/ws/chat", nswire.NamespaceOptions{}, false)
	first := &Client{id: "c-1"}
	ns.addClient(first)

	if ns.clientCount() != 1 {
		t.Fatalf("clientCount() = %d, want 1", ns.clientCount())
	}

	// A reconnection rebinds the id; tearing down the replaced connection
	// afterwards must not evict the successor.
	second := &Client{id: "c-1"}
	ns.addClient(second)
	if ns.removeClient(first) {
		t.Error("removing a superseded client should report false")
	}
	got, ok := ns.client("c-1")
	if !ok || got != second {
		t.Error("successor client was evicted by the stale removal")
	}
	if !ns.removeClient(second) {
		t.Error("removing the registered client should report true")
	}
}

// TestNamespaceMetricsSnapshot tests health classification and counters
func TestNamespaceMetricsSnapshot(t *testing.T) {
	t.Parallel()

	ns := newNamespace("/api/1/ws/chat", nswire.NamespaceOptions{}, false)
	now := time.Now()
	warning := 5 * time.Minute
	inactive := 30 * time.Minute

	ns.recordActivity(now.Add(-time.Second))
	ns.recordActivity(now.Add(-time.Second))
	m := ns.metricsSnapshot(now, warning, inactive)
	if m.Health != "healthy" {
		t.Errorf("Health = %q, want healthy", m.Health)
	}
	if m.TotalMessages != 2 || m.MessagesPerMinute != 2 {
		t.Errorf("TotalMessages = %d, MessagesPerMinute = %d, want 2 and 2", m.TotalMessages, m.MessagesPerMinute)
	}

	ns.mu.Lock()
	ns.lastActivity = now.Add(-10 * time.Minute)
	ns.mu.Unlock()
	if m := ns.metricsSnapshot(now, warning, inactive); m.Health != "warning" {
		t.Errorf("Health = %q after 10m idle, want warning", m.Health)
	}

	ns.mu.Lock()
	ns.lastActivity = now.Add(-time.Hour)
	ns.mu.Unlock()
	if m := ns.metricsSnapshot(now, warning, inactive); m.Health != "inactive" {
		t.Errorf("Health = %q after 1h idle, want inactive", m.Health)
	}
}

// TestNamespaceDistinctUsers tests the active user count
func TestNamespaceDistinctUsers(t *testing.T) {
	t.Parallel()

	ns := newNamespace("/api/1/ws/chat", nswire.NamespaceOptions{}, false)
	ns.addClient(&Client{id: "c-1", userCtx: &nswire.Ctx{Username: "alice"}})
	ns.addClient(&Client{id: "c-2", userCtx: &nswire.Ctx{Username: "alice"}})
	ns.addClient(&Client{id: "c-3", userCtx: &nswire.Ctx{Username: "bob"}})

	m := ns.metricsSnapshot(time.Now(), time.Minute, time.Hour)
	if m.Clients != 3 {
		t.Errorf("Clients = %d, want 3", m.Clients)
	}
	if m.ActiveUsers != 2 {
		t.Errorf("ActiveUsers = %d, want 2 (alice counted once)", m.ActiveUsers)
	}
}
