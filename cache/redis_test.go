package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/bgremover/config"
)

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	c := NewResultCache(&config.RedisConfig{Addr: s.Addr(), TTL: time.Hour})
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestResultCache_GetSet(t *testing.T) {
	t.Parallel()

	c, s := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	url, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, url)

	require.NoError(t, c.Set(ctx, "k1", "http://files/processed/a.png"))
	url, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "http://files/processed/a.png", url)

	assert.Equal(t, time.Hour, s.TTL("bgremover:k1"))

	s.FastForward(2 * time.Hour)
	url, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestResultCache_Unavailable(t *testing.T) {
	t.Parallel()

	c, s := newTestCache(t)
	s.Close()

	_, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestKey(t *testing.T) {
	t.Parallel()

	a := Key("remove_background", "u1", "http://x/a.png")
	assert.Equal(t, a, Key("remove_background", "u1", "http://x/a.png"))
	assert.NotEqual(t, a, Key("remove_background", "u2", "http://x/a.png"))
	assert.NotEqual(t, a, Key("change_background", "u1", "http://x/a.png"))
	// 分隔符保证拼接歧义不会撞键
	assert.NotEqual(t, Key("op", "ab", "c"), Key("op", "a", "bc"))
	assert.Regexp(t, `^remove_background:[0-9a-f]{32}$`, a)
}
