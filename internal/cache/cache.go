// Package cache holds the embedding cache backends: Redis when configured,
// an in-process ristretto cache otherwise.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encodable values. Implementations treat corrupt
// entries as misses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
