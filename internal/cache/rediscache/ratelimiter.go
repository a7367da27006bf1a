package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	c   *redis.Client
	now func() time.Time
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c:   newClient(addr),
		now: time.Now,
	}
}

// Allow increments key and sets its TTL to window. Returns (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// AllowPerMinute applies limit to the current wall-clock minute of scope.
func (rl *RateLimiter) AllowPerMinute(ctx context.Context, scope string, limit int64) (bool, error) {
	key := "rl:" + scope + ":" + rl.now().UTC().Format("200601021504")
	ok, _, err := rl.Allow(ctx, key, limit, 70*time.Second)
	return ok, err
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
