package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "snapshot:acc:current", []byte(`{"packages":[]}`), time.Minute))

	b, ok, err := c.Get(ctx, "snapshot:acc:current")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"packages":[]}`), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "snapshot:acc:current")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_NoTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.Zero(t, mr.TTL("k"))

	mr.FastForward(time.Hour)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisCache_Delete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "summary:current", []byte("[]"), time.Minute))
	require.NoError(t, c.Delete(ctx, "summary:current"))
	require.False(t, mr.Exists("summary:current"))

	// deleting a missing key is fine
	require.NoError(t, c.Delete(ctx, "summary:current"))

	mr.Close()
	err := c.Delete(ctx, "summary:current")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis del")
}

func TestRedisCache_GetError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis get")
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestRateLimiter_AllowPerMinute(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())
	rl.now = func() time.Time { return time.Date(2024, 1, 5, 10, 0, 30, 0, time.UTC) }

	ctx := context.Background()
	ok, err := rl.AllowPerMinute(ctx, "17track:register", 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("rl:17track:register:202401051000"))

	ok, err = rl.AllowPerMinute(ctx, "17track:register", 1)
	require.NoError(t, err)
	require.False(t, ok)

	rl.now = func() time.Time { return time.Date(2024, 1, 5, 10, 1, 0, 0, time.UTC) }
	ok, err = rl.AllowPerMinute(ctx, "17track:register", 1)
	require.NoError(t, err)
	require.True(t, ok)
}
