// Package ratelimit implements sliding-window rate limiting keyed by an
// arbitrary identifier string (e.g. "login:1.2.3.4" or "mfa-send:<userID>").
// The window counts events in the trailing interval rather than fixed
// calendar buckets, so a burst cannot straddle a bucket boundary.
package ratelimit

import (
	"context"
	"time"
)

// Policy describes one action class's budget: at most MaxRequests events
// within any trailing Interval.
type Policy struct {
	Interval    time.Duration
	MaxRequests int
}

// Result reports the outcome of a single Check call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is the unix-seconds time at which the window frees a slot.
	ResetAt int64
}

// Limiter enforces a Policy per identifier. The purge-count-insert step
// must be atomic per identifier; concurrent bursts must not exceed the
// limit. On backing-store failure implementations fail open (allow the
// request): availability of login is prioritized over strict limiting.
type Limiter interface {
	Check(ctx context.Context, identifier string, policy Policy) (Result, error)
}
