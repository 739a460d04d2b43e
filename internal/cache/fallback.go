package cache

import (
	"chat-memory/internal/logger"
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Ensure FallbackCache implements Cache interface
var _ Cache = (*FallbackCache)(nil)

// FallbackCache serves from a primary backend and degrades to an in-process
// map whenever the primary fails. Backend errors are logged, never returned.
type FallbackCache struct {
	primary Cache
	memory  *MemoryCache
}

// NewFallbackCache composes primary with memory. primary may be nil, in which
// case the memory cache serves everything.
func NewFallbackCache(primary Cache, memory *MemoryCache) *FallbackCache {
	if memory == nil {
		memory = NewMemoryCache()
	}
	return &FallbackCache{primary: primary, memory: memory}
}

// Get prefers the memory tier: it only holds entries written while the primary
// was failing, and those are newer than anything the primary has.
func (f *FallbackCache) Get(ctx context.Context, key string) (string, bool, error) {
	if val, ok, _ := f.memory.Get(ctx, key); ok {
		return val, true, nil
	}
	if f.primary == nil {
		return "", false, nil
	}
	val, ok, err := f.primary.Get(ctx, key)
	if err != nil {
		f.warn("get", key, err)
		return "", false, nil
	}
	return val, ok, nil
}

func (f *FallbackCache) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.primary != nil {
		err := f.primary.SetWithExpiry(ctx, key, value, ttl)
		if err == nil {
			// The primary is authoritative again for this key
			_ = f.memory.Delete(ctx, key)
			return nil
		}
		f.warn("set", key, err)
	}
	return f.memory.SetWithExpiry(ctx, key, value, ttl)
}

func (f *FallbackCache) Delete(ctx context.Context, key string) error {
	if f.primary != nil {
		if err := f.primary.Delete(ctx, key); err != nil {
			f.warn("delete", key, err)
		}
	}
	return f.memory.Delete(ctx, key)
}

// PurgeExpired drops expired entries from the memory tier; the primary expires its own keys
func (f *FallbackCache) PurgeExpired() int {
	return f.memory.PurgeExpired()
}

// Ping reports the health of the primary backend
func (f *FallbackCache) Ping(ctx context.Context) error {
	if f.primary == nil {
		return errors.New("cache: no primary backend, serving from memory")
	}
	return f.primary.Ping(ctx)
}

func (f *FallbackCache) Close() error {
	if f.primary != nil {
		return f.primary.Close()
	}
	return nil
}

func (f *FallbackCache) warn(op, key string, err error) {
	logger.Log.WithFields(logrus.Fields{
		"op":    op,
		"key":   key,
		"error": err,
	}).Warn("Cache backend unavailable, using in-memory fallback")
}
