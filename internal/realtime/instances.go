package realtime

import (
	"sync"
	"time"

	"github.com/nswire/nswire"
)

// InstanceRegistry tracks the remote processes seen through transport
// heartbeats. It is advisory only: broadcasts never consult it, it exists
// for diagnostics in the metrics snapshot.
type InstanceRegistry struct {
	self       nswire.Instance
	staleAfter time.Duration

	mu      sync.RWMutex
	remotes map[string]nswire.Instance
}

func NewInstanceRegistry(id, address string, staleAfter time.Duration) *InstanceRegistry {
	return &InstanceRegistry{
		self:       nswire.Instance{ID: id, Address: address, Status: "self"},
		staleAfter: staleAfter,
		remotes:    make(map[string]nswire.Instance),
	}
}

// Observe records a heartbeat from a remote instance. Heartbeats from the
// local instance are ignored.
func (r *InstanceRegistry) Observe(inst nswire.Instance) {
	if inst.ID == r.self.ID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[inst.ID] = inst
}

// Snapshot returns the local instance followed by every known remote, with
// status derived from heartbeat age. Instances unseen for twice the stale
// threshold are pruned.
func (r *InstanceRegistry) Snapshot(now time.Time) []nswire.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	self := r.self
	self.LastSeen = now
	out := []nswire.Instance{self}

	for id, inst := range r.remotes {
		age := now.Sub(inst.LastSeen)
		if age > 2*r.staleAfter {
			delete(r.remotes, id)
			continue
		}
		if age > r.staleAfter {
			inst.Status = "stale"
		} else {
			inst.Status = "online"
		}
		out = append(out, inst)
	}
	return out
}
