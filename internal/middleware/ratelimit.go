package middleware

import (
	"sync"
	"time"
)

// Limiter decides whether a request identified by key may proceed. Handlers
// key mutating requests by client IP plus path, with a per-endpoint limit.
type Limiter interface {
	Allow(key string, limit int) bool
}

// MemoryLimiter is a sliding-window limiter over an in-process map. It is
// not shared across instances: running N processes multiplies the effective
// limit by N. Keys are only pruned by the sliding filter.
type MemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether the number of hits inside
// the window, including this one, is within limit.
func (l *MemoryLimiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, ts := range l.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	l.hits[key] = kept

	return len(kept) <= limit
}
