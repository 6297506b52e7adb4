package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRistrettoCache_RoundTrip(t *testing.T) {
	c, err := NewRistrettoCache(1 << 20)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	var out []float32
	hit, err := c.GetJSON(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "k", []float32{0.5, 0.25}, time.Hour))
	c.Wait()

	hit, err = c.GetJSON(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []float32{0.5, 0.25}, out)

	require.NoError(t, c.Del(ctx, "k"))
	hit, _ = c.GetJSON(ctx, "k", &out)
	assert.False(t, hit)
}

func TestRistrettoCache_CorruptEntryIsMiss(t *testing.T) {
	c, err := NewRistrettoCache(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	c.c.SetWithTTL("bad", []byte("{not json"), 9, time.Hour)
	c.Wait()

	var out map[string]any
	hit, err := c.GetJSON(context.Background(), "bad", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}
