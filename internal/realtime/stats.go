package realtime

import (
	"sync"
	"time"

	"github.com/nswire/nswire"
)

// GlobalStats holds the process start time, the total message counter and
// the bounded activity log. The log is a most-recent-N ring; every summary
// is truncated to the configured byte ceiling before storage, so logging the
// same content twice yields two entries of identical length.
type GlobalStats struct {
	startedAt time.Time

	mu         sync.Mutex
	total      uint64
	entries    []nswire.ActivityEntry
	maxEntries int
	entryBytes int
}

func NewGlobalStats(maxEntries, entryBytes int) *GlobalStats {
	return &GlobalStats{
		startedAt:  time.Now(),
		maxEntries: maxEntries,
		entryBytes: entryBytes,
	}
}

func (g *GlobalStats) StartedAt() time.Time { return g.startedAt }

func (g *GlobalStats) Total() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

// RecordMessage counts an accepted inbound message and appends a truncated
// summary to the activity log.
func (g *GlobalStats) RecordMessage(nsPath, summary string) {
	g.record(nsPath, summary, true)
}

// RecordEvent appends a diagnostic entry (connects, broadcasts) without
// touching the message counter.
func (g *GlobalStats) RecordEvent(nsPath, summary string) {
	g.record(nsPath, summary, false)
}

func (g *GlobalStats) record(nsPath, summary string, countMessage bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if countMessage {
		g.total++
	}
	g.entries = append(g.entries, nswire.ActivityEntry{
		At:        time.Now(),
		Namespace: nsPath,
		Summary:   truncate(summary, g.entryBytes),
	})
	if overflow := len(g.entries) - g.maxEntries; overflow > 0 {
		g.entries = append(g.entries[:0], g.entries[overflow:]...)
	}
}

// Entries returns a copy of the activity log, newest last.
func (g *GlobalStats) Entries() []nswire.ActivityEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]nswire.ActivityEntry(nil), g.entries...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
