package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"
)

// RateLimiter is a fixed-window counter: INCR, and EXPIRE on the first hit.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}

// AlertKey hashes an alert bucket (a caller key or the text) so a repeating failure is throttled
// without muting unrelated ones.
func AlertKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return "rate_limit:alert:" + hex.EncodeToString(sum[:8])
}
