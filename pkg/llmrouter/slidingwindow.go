package llmrouter

import (
	"sync"
	"time"
)

// slidingWindow counts events within a trailing duration, used for RPM
// limits, per-tenant hourly quotas, and the escalation budget -- all three
// are "N per window" constraints in §4.C and §5.
type slidingWindow struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	events   []time.Time
	nowFn    func() time.Time
}

func newSlidingWindow(window time.Duration, limit int) *slidingWindow {
	return &slidingWindow{window: window, limit: limit, nowFn: time.Now}
}

func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	w.events = w.events[i:]
}

// Allow reports whether one more event fits within the window, and if so
// records it. It does not allow events beyond the limit -- callers must
// wait for a slot to free (§5 "exceeding a slot blocks until one frees").
func (w *slidingWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.nowFn()
	w.prune(now)
	if len(w.events) >= w.limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// Count returns the number of events currently within the window.
func (w *slidingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.nowFn())
	return len(w.events)
}
