// Package cache provides the short-lived key-value store used to stage
// one-time codes and not-yet-confirmed MFA secrets ahead of permanent
// persistence. Values are JSON-serialized and expire strictly by TTL;
// there is no LRU or size bound because volume is one entry per in-flight
// enrollment or challenge.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL key-value store with opaque serialized values.
// Implementations must treat a missing or expired key identically:
// Get reports found=false with no error.
type Cache interface {
	// Set stores value under key for ttl. A zero ttl stores without expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get unmarshals the value for key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
