package realtime

import (
	"sync"
	"time"
)

// slidingWindow is the per-client frequency limiter: a window of
// accepted-message timestamps. Stale entries are pruned on every check and
// the accepted timestamp appended in the same step; there is no separate
// reset.
type slidingWindow struct {
	mu       sync.Mutex
	interval time.Duration
	max      int
	stamps   []time.Time
}

func newSlidingWindow(interval time.Duration, max int) *slidingWindow {
	return &slidingWindow{interval: interval, max: max}
}

// allow reports whether a message arriving at now is within the frequency
// ceiling, recording it when accepted.
func (w *slidingWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.interval)
	keep := w.stamps[:0]
	for _, t := range w.stamps {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.stamps = keep

	if len(w.stamps) >= w.max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}
