package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache is the in-process cache. Values are held as encoded JSON
// so callers see the same copy semantics as with RedisCache.
type RistrettoCache struct {
	c *ristretto.Cache
}

// NewRistrettoCache sizes the cache by total encoded bytes.
func NewRistrettoCache(maxBytes int64) (*RistrettoCache, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{c: c}, nil
}

func (r *RistrettoCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	v, ok := r.c.Get(key)
	if !ok {
		return false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		r.c.Del(key)
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		r.c.Del(key)
		return false, nil
	}
	return true, nil
}

func (r *RistrettoCache) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	// a rejected set is a cache miss later, not an error
	r.c.SetWithTTL(key, b, int64(len(b)), ttl)
	return nil
}

func (r *RistrettoCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		r.c.Del(k)
	}
	return nil
}

// Wait blocks until buffered writes are applied.
func (r *RistrettoCache) Wait() { r.c.Wait() }

func (r *RistrettoCache) Close() { r.c.Close() }
