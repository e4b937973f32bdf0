package repository

import (
	"context"
	"time"
)

// TokenCache keeps the storage access token across restarts.
// Get returns domain.ErrNotFound on a miss.
type TokenCache interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}
