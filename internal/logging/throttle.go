package logging

import (
	"sync"
	"time"
)

// Throttle rate-limits repeated log statements per key. The first event for a
// key always passes; subsequent events pass once per interval and report how
// many were suppressed in between.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	entries  map[string]*throttleEntry
}

type throttleEntry struct {
	last       time.Time
	suppressed int
}

// NewThrottle builds a throttle with the given minimum interval between
// emissions of the same key.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		now:      time.Now,
		entries:  make(map[string]*throttleEntry),
	}
}

// Allow reports whether an event for key should be logged now, along with the
// number of events suppressed since the last allowed one.
func (t *Throttle) Allow(key string) (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	entry, ok := t.entries[key]
	if !ok {
		t.entries[key] = &throttleEntry{last: now}
		return true, 0
	}

	if now.Sub(entry.last) < t.interval {
		entry.suppressed++
		return false, 0
	}

	suppressed := entry.suppressed
	entry.last = now
	entry.suppressed = 0
	return true, suppressed
}
