package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a fixed-window counter held in process memory. It is the
// only shared mutable state in the request pipeline and guards itself with a
// single mutex; stale windows are pruned periodically during Allow calls.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastPrune time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryLimiter constructs a limiter permitting limit requests per window.
func NewMemoryLimiter(limit int, windowSize time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 60
	}
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow reports whether one more request under the key fits in the current
// window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	w, ok := l.windows[key]
	if !ok || !w.resetAt.After(now) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// pruneLocked drops expired windows at most once per window length so the map
// cannot grow unbounded with one-off keys.
func (l *MemoryLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	for key, w := range l.windows {
		if !w.resetAt.After(now) {
			delete(l.windows, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
