package fontcache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T) (*Cache, *clock) {
	t.Helper()
	c, err := Open(Options{
		Path:          ":memory:",
		TTL:           time.Hour,
		SweepInterval: 10 * time.Minute,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestPutGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "Inter")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "Inter", []byte("ttf-v1")))
	require.NoError(t, c.Put(ctx, "Inter", []byte("ttf-v2")))

	data, ok, err := c.Get(ctx, "Inter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ttf-v2", string(data))
}

func TestExpiry(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Roboto", []byte("ttf")))
	clk.t = clk.t.Add(2 * time.Hour)

	_, ok, err := c.Get(ctx, "Roboto")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are misses")

	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestPutRefreshesExpiredEntry(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "Lato", []byte("old")))
	clk.t = clk.t.Add(2 * time.Hour)
	require.NoError(t, c.Put(ctx, "Lato", []byte("new")))

	data, ok, err := c.Get(ctx, "Lato")
	require.NoError(t, err)
	require.True(t, ok, "a re-put entry gets a fresh expiry")
	assert.Equal(t, "new", string(data))

	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMaybeSweepOncePerInterval(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()

	assert.True(t, c.MaybeSweep(ctx))
	clk.t = clk.t.Add(time.Minute)
	assert.False(t, c.MaybeSweep(ctx))
	clk.t = clk.t.Add(10 * time.Minute)
	assert.True(t, c.MaybeSweep(ctx))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}
