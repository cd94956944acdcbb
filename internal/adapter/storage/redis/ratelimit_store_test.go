package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRateLimitStore(t *testing.T, now *time.Time) (*RateLimitStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRateLimitStore(client)
	store.now = func() time.Time { return *now }
	return store, mr
}

func TestRateLimitStore_Allow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 10, 0, time.UTC)
	store, mr := newTestRateLimitStore(t, &now)
	ctx := context.Background()

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := int64(1); i <= 3; i++ {
			result, err := store.Allow(ctx, "10.0.0.1:auth_login", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d should be allowed", i)
			assert.Equal(t, int64(3), result.Limit)
			assert.Equal(t, 3-i, result.Remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.1:auth_login", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, int64(0), result.Remaining)
	})

	t.Run("different keys are independent", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.2:auth_login", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, int64(4), result.Remaining)
	})

	t.Run("counter carries an expiry", func(t *testing.T) {
		_, err := store.Allow(ctx, "10.0.0.3:balances", 10, time.Minute)
		require.NoError(t, err)

		windowID := now.Unix() / 60
		ttl := mr.TTL("ratelimit:10.0.0.3:balances:" + itoa(windowID))
		assert.Equal(t, 61*time.Second, ttl)
	})

	t.Run("ResetAt is the next window boundary", func(t *testing.T) {
		result, err := store.Allow(ctx, "10.0.0.4:balances", 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC).Unix(), result.ResetAt)
	})

	t.Run("new window resets the count", func(t *testing.T) {
		key := "10.0.0.5:auth_register"
		_, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)

		result, err := store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)

		now = now.Add(time.Minute)
		mr.FastForward(time.Minute)

		result, err = store.Allow(ctx, key, 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	})
}

func TestRateLimitStore_Unavailable(t *testing.T) {
	now := time.Now()
	store, mr := newTestRateLimitStore(t, &now)
	mr.Close()

	_, err := store.Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}
