// Package cache abstracts the two cross-request coordination primitives the
// authentication core depends on: a shared key-value cache with per-entry
// TTL, and an advisory mutual-exclusion lock acquired with a timeout.
// Production deployments back both with Redis; tests and single-instance
// dev use the in-memory implementations.
package cache

import (
	"context"
	"time"
)

// Cache is a shared key-value store with per-entry TTL, visible to all
// concurrent request handlers.
type Cache interface {
	// Get returns the value for key and whether it was present and unexpired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put stores value under key for ttl. A later Put overwrites both the
	// value and the remaining TTL.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Locker is an advisory exclusive lock keyed by scope. Acquisition blocks up
// to timeout; a false return means the lock could not be obtained in time.
type Locker interface {
	TryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
