package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemoryCache() (*MemoryCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryCache()
	m.SetClock(clock.Now)
	return m, clock
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	m, _ := newTestMemoryCache()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetWithExpiry(ctx, "k", "v", time.Minute))
	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	require.NoError(t, m.Delete(ctx, "k"))
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)

	// Deleting a missing key is fine
	assert.NoError(t, m.Delete(ctx, "k"))
}

func TestMemoryCache_Expiry(t *testing.T) {
	m, clock := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, m.SetWithExpiry(ctx, "k", "v", 10*time.Second))

	clock.Advance(9 * time.Second)
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestMemoryCache_SetResetsTTL(t *testing.T) {
	m, clock := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, m.SetWithExpiry(ctx, "k", "v1", 10*time.Second))
	clock.Advance(8 * time.Second)
	require.NoError(t, m.SetWithExpiry(ctx, "k", "v2", 10*time.Second))
	clock.Advance(8 * time.Second)

	val, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v2", val)
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	m, clock := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, m.SetWithExpiry(ctx, "short", "v", time.Second))
	require.NoError(t, m.SetWithExpiry(ctx, "long", "v", time.Hour))
	assert.Equal(t, 2, m.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, m.PurgeExpired())
	assert.Equal(t, 1, m.Len())
	assert.Zero(t, m.PurgeExpired())
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "conversation:conv_1", SessionKey("conv_1"))
}
