package realtime

import (
	"testing"
	"time"

	"github.com/nswire/nswire"
)

// TestInstanceRegistry tests heartbeat tracking and status derivation
func TestInstanceRegistry(t *testing.T) {
	t.Parallel()

	r := NewInstanceRegistry("self-id", ":8080", 15*time.Second)
	now := time.Now()

	// Own heartbeats echoed back through the transport are ignored.
	r.Observe(nswire.Instance{ID: "self-id", LastSeen: now})

	r.Observe(nswire.Instance{ID: "fresh", Address: ":8081", LastSeen: now.Add(-5 * time.Second)})
	r.Observe(nswire.Instance{ID: "stale", Address: ":8082", LastSeen: now.Add(-20 * time.Second)})
	r.Observe(nswire.Instance{ID: "gone", Address: ":8083", LastSeen: now.Add(-time.Minute)})

	snap := r.Snapshot(now)

	byID := make(map[string]nswire.Instance, len(snap))
	for _, inst := range snap {
		byID[inst.ID] = inst
	}

	if len(snap) != 3 {
		t.Fatalf("len(snapshot) = %d, want 3 (self + fresh + stale)", len(snap))
	}
	if snap[0].ID != "self-id" || snap[0].Status != "self" {
		t.Errorf("first entry = %+v, want the local instance", snap[0])
	}
	if byID["fresh"].Status != "online" {
		t.Errorf("fresh status = %q, want online", byID["fresh"].Status)
	}
	if byID["stale"].Status != "stale" {
		t.Errorf("stale status = %q, want stale", byID["stale"].Status)
	}
	if _, ok := byID["gone"]; ok {
		t.Error("instance unseen for twice the threshold should be pruned")
	}
}

// TestInstanceRegistryRefresh tests that a new heartbeat revives a stale entry
func TestInstanceRegistryRefresh(t *testing.T) {
	t.Parallel()

	r := NewInstanceRegistry("self-id", ":8080", 15*time.Second)
	now := time.Now()

	r.Observe(nswire.Instance{ID: "peer", LastSeen: now.Add(-20 * time.Second)})
	r.Observe(nswire.Instance{ID: "peer", LastSeen: now})

	snap := r.Snapshot(now)
	if len(snap) != 2 {
		t.Fatalf("len(snapshot) = %d, want 2", len(snap))
	}
	if snap[1].Status != "online" {
		t.Errorf("refreshed peer status = %q, want online", snap[1].Status)
	}
}
