package eventing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func newDeduper(t *testing.T, ttl time.Duration) (*Deduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	d, err := NewDeduper(redis.NewFromClient(raw), ttl)
	require.NoError(t, err)
	return d, mr
}

func TestDeduperClaimsOncePerConsumer(t *testing.T) {
	d, _ := newDeduper(t, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	first, err := d.Claim(ctx, "invoices", id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.Claim(ctx, "invoices", id)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := d.Claim(ctx, "analytics", id)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestDeduperReleaseAllowsRetry(t *testing.T) {
	d, _ := newDeduper(t, time.Hour)
	ctx := context.Background()
	id := uuid.New()

	_, err := d.Claim(ctx, "invoices", id)
	require.NoError(t, err)
	require.NoError(t, d.Release(ctx, "invoices", id))

	retry, err := d.Claim(ctx, "invoices", id)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestDeduperClaimExpires(t *testing.T) {
	d, mr := newDeduper(t, time.Minute)
	ctx := context.Background()
	id := uuid.New()

	_, err := d.Claim(ctx, "invoices", id)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	again, err := d.Claim(ctx, "invoices", id)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestDeduperRejectsBadInput(t *testing.T) {
	d, _ := newDeduper(t, time.Hour)
	_, err := d.Claim(context.Background(), " ", uuid.New())
	assert.Error(t, err)
	_, err = d.Claim(context.Background(), "invoices", uuid.Nil)
	assert.Error(t, err)

	_, err = NewDeduper(nil, time.Hour)
	assert.Error(t, err)
}
