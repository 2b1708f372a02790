package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb), mr
}

func TestFixedWindowAllowResetsAfterWindow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	const scope = "discount-validate:10.0.0.1"

	for want := int64(1); want <= 2; want++ {
		allowed, count, err := client.FixedWindowAllow(ctx, scope, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, count)
	}
	assert.Equal(t, time.Minute, mr.TTL("sf:rate_limit:"+scope))

	allowed, count, err := client.FixedWindowAllow(ctx, scope, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)

	mr.FastForward(time.Minute + time.Second)
	allowed, count, err = client.FixedWindowAllow(ctx, scope, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, int64(1), count)
}

func TestSetNXAndLookup(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	k := client.IdempotencyKey("orders", "abc")

	_, found, err := client.Lookup(ctx, k)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := client.SetNX(ctx, k, "first", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = client.SetNX(ctx, k, "second", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := client.Lookup(ctx, k)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "first", v)

	require.NoError(t, client.Del(ctx, k))
	_, found, err = client.Lookup(ctx, k)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReleaseIfOwnerChecksHolder(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	k := client.LockKey("cron")

	ok, err := client.SetNX(ctx, k, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, k, "owner-b")
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists(k))

	released, err = client.ReleaseIfOwner(ctx, k, "owner-a")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists(k))
}

func TestKeysAreNamespaced(t *testing.T) {
	var c *Client
	assert.Equal(t, "sf:idempotency:orders:abc", c.IdempotencyKey("orders", "abc"))
	assert.Equal(t, "sf:idempotency:orders", c.IdempotencyKey(" orders ", ""))
	assert.Equal(t, "sf:rate_limit:scope", c.RateLimitKey("scope"))
	assert.Equal(t, "sf:lock:cron:prod", c.LockKey("cron:prod"))
}

func TestDisconnectedClient(t *testing.T) {
	ctx := context.Background()
	c := &Client{}
	_, _, err := c.Lookup(ctx, "k")
	assert.ErrorIs(t, err, errNotConnected)
	_, err = c.SetNX(ctx, "k", "v", time.Second)
	assert.ErrorIs(t, err, errNotConnected)
	_, _, err = c.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.ErrorIs(t, err, errNotConnected)
	assert.ErrorIs(t, c.Ping(ctx), errNotConnected)
	assert.NoError(t, c.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:          "redis://:pw@localhost:6380/3",
		PoolSize:     12,
		MinIdleConns: 4,
		DialTimeout:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 12, opts.PoolSize)
	assert.Equal(t, 4, opts.MinIdleConns)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}
