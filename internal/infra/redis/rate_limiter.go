package redis

import (
	"context"
	"fmt"
	"time"

	"avatar-live-server/internal/domain/ports/repository"
)

var _ repository.RateLimiter = (*RateLimiter)(nil)

// RateLimiter counts requests per key in fixed windows aligned to the
// window length, so every instance agrees on where a window starts.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

func (r *RateLimiter) bucket(key string, window time.Duration) string {
	return fmt.Sprintf("%s:%d", key, r.now().UnixNano()/int64(window))
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	b := r.bucket(key, window)
	count, err := r.client.Incr(ctx, b)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, b, window); err != nil {
			// a counter without TTL would never reset
			_ = r.client.Del(ctx, b)
			return false, err
		}
	}
	return count <= int64(limit), nil
}

// ClientKey namespaces a limiter key by scope ("ws", "http").
func ClientKey(clientID, scope string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, clientID)
}
