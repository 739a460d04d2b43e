// Package cache holds the fast, TTL-bound session store.
package cache

import (
	"context"
	"time"
)

// keyPrefix namespaces session entries in a shared cache
const keyPrefix = "conversation:"

// Cache is a string key/value store with per-entry expiry
type Cache interface {
	// Get returns the value and true on a hit. A miss is ("", false, nil).
	Get(ctx context.Context, key string) (string, bool, error)
	// SetWithExpiry stores value and resets its time-to-live to exactly ttl.
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// SessionKey returns the cache key holding a conversation's live session
func SessionKey(conversationID string) string {
	return keyPrefix + conversationID
}
