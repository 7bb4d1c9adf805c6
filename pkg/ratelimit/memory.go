package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process sliding-window log limiter for
// single-instance deployments and tests. The mutex makes the
// purge-count-insert step atomic per call.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string][]time.Time)}
}

// Check records an event for identifier if the window has room.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, policy Policy) (Result, error) {
	now := time.Now()
	windowStart := now.Add(-policy.Interval)

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.windows[identifier]

	// Drop events older than the trailing window.
	kept := events[:0]
	for _, ts := range events {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= policy.MaxRequests {
		l.windows[identifier] = kept
		return Result{
			Allowed: false,
			Limit:   policy.MaxRequests,
			ResetAt: kept[0].Add(policy.Interval).Unix(),
		}, nil
	}

	l.windows[identifier] = append(kept, now)
	return Result{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests - len(kept) - 1,
		ResetAt:   now.Add(policy.Interval).Unix(),
	}, nil
}
