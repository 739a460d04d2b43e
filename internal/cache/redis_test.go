package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	rc, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))

	_, ok, err := rc.Get(ctx, "conversation:a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.SetWithExpiry(ctx, "conversation:a", `{"v":1}`, 600*time.Second))
	assert.Equal(t, 600*time.Second, mr.TTL("conversation:a"))

	val, ok, err := rc.Get(ctx, "conversation:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"v":1}`, val)

	require.NoError(t, rc.Delete(ctx, "conversation:a"))
	assert.False(t, mr.Exists("conversation:a"))
}

func TestRedisCache_Expiry(t *testing.T) {
	rc, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, rc.SetWithExpiry(ctx, "k", "v", 10*time.Second))
	mr.FastForward(11 * time.Second)

	_, ok, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_BackendErrors(t *testing.T) {
	rc, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, rc.Ping(ctx))
	mr.SetError("ERR backend down")

	_, _, err := rc.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, rc.SetWithExpiry(ctx, "k", "v", time.Second))
	assert.Error(t, rc.Delete(ctx, "k"))
	assert.Error(t, rc.Ping(ctx))
}
