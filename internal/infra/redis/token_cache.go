package redis

import (
	"context"
	"errors"
	"time"

	"order-bridge/internal/domain"
	"order-bridge/internal/domain/ports/repository"
	"order-bridge/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

var _ repository.TokenCache = (*TokenCache)(nil)

// sealer encrypts the token at rest; see security.Sealer.
type sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// TokenCache keeps the Feishu tenant access token across restarts.
type TokenCache struct {
	client RedisClient
	key    string
	seal   sealer // optional
}

func NewTokenCache(client RedisClient, appID string) *TokenCache {
	return &TokenCache{
		client: client,
		key:    "feishu:tenant_token:" + appID,
	}
}

// WithSealer makes the cache store tokens encrypted.
func (c *TokenCache) WithSealer(s sealer) *TokenCache {
	c.seal = s
	return c
}

func (c *TokenCache) Get(ctx context.Context) (string, error) {
	v, err := c.client.Get(ctx, c.key)
	if errors.Is(err, redis.Nil) || (err == nil && v == "") {
		metrics.IncCacheRequest("tenant_token", "miss")
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if c.seal != nil {
		// Written under another key or before sealing was enabled: treat as a miss.
		if v, err = c.seal.Open(v); err != nil {
			metrics.IncCacheRequest("tenant_token", "unreadable")
			return "", domain.ErrNotFound
		}
	}
	metrics.IncCacheRequest("tenant_token", "hit")
	return v, nil
}

func (c *TokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if c.seal != nil {
		sealed, err := c.seal.Seal(token)
		if err != nil {
			return err
		}
		token = sealed
	}
	return c.client.Set(ctx, c.key, token, ttl)
}

func (c *TokenCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.key)
}
