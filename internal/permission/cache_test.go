package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consoleauth/internal/platform/clock"
)

func newTestCache(t *testing.T) (*Cache[bool], *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewCache[bool](WithCacheClock(clk)), clk
}

func TestCache_TTL(t *testing.T) {
	c, clk := newTestCache(t)
	c.Set("k", true, time.Second)

	clk.Advance(900 * time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.True(t, v)

	clk.Advance(200 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "stale entry evicted on read")
}

func TestCache_ExactlyAtTTLIsFresh(t *testing.T) {
	c, clk := newTestCache(t)
	c.Set("k", true, time.Second)
	clk.Advance(time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestCache_DefaultTTL(t *testing.T) {
	c, clk := newTestCache(t)
	c.Set("k", true, 0)

	clk.Advance(DefaultTTL)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.Advance(time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("a", true, time.Minute)
	c.Set("b", false, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("b")
	require.True(t, ok)
	assert.False(t, v, "false answers are cached too")

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestCache_Cleanup(t *testing.T) {
	c, clk := newTestCache(t)
	c.Set("short", true, time.Second)
	c.Set("long", true, time.Hour)

	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Len())
	assert.Zero(t, c.Cleanup())
}

func TestCache_Janitor(t *testing.T) {
	c, clk := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Set("k", true, time.Second)
	c.StartJanitor(ctx, time.Minute)
	clk.Advance(time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, time.Millisecond)
}
