package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(rdb)
}

func TestIOCKey_IsTenantScoped(t *testing.T) {
	assert.Equal(t, "ioc:t1:ip:1.2.3.4", IOCKey("t1", "ip", "1.2.3.4"))
	assert.NotEqual(t, IOCKey("t1", "ip", "1.2.3.4"), IOCKey("t2", "ip", "1.2.3.4"))
}

func TestFPKey_IsGloballyScoped(t *testing.T) {
	assert.Equal(t, "fp:fp-001", FPKey("fp-001"))
}

func TestIOCConfidenceTTL_Boundaries(t *testing.T) {
	assert.Equal(t, 30*24*3600e9, float64(IOCConfidenceTTL(81)))
	assert.Equal(t, 7*24*3600e9, float64(IOCConfidenceTTL(65)))
	assert.Equal(t, 24*3600e9, float64(IOCConfidenceTTL(30)))
}

func TestCache_IOCRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.SetIOC(ctx, "t1", "ip", "1.2.3.4", 90, []byte(`{"score":90}`))

	v, ok := c.GetIOC(ctx, "t1", "ip", "1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, `{"score":90}`, string(v))

	_, ok = c.GetIOC(ctx, "t2", "ip", "1.2.3.4")
	assert.False(t, ok, "cross-tenant read must miss")
}

func TestCache_GetMissIsFailOpen(t *testing.T) {
	c := newTestCache(t)
	v, ok := c.GetIOC(context.Background(), "t1", "ip", "nope")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestCache_KillSwitchScan(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SetKillSwitch(ctx, "tenant", "t1", []byte(`{"active":true}`)))
	require.NoError(t, c.SetKillSwitch(ctx, "tenant", "t2", []byte(`{"active":true}`)))

	keys, err := c.ScanKillSwitches(ctx, "tenant")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestCache_KillSwitchRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetKillSwitch(ctx, "tenant", "unknown")
	assert.False(t, ok, "missing kill switch must read as unknown, fail-open")

	require.NoError(t, c.SetKillSwitch(ctx, "tenant", "t1", []byte(`{"active":true}`)))
	v, ok := c.GetKillSwitch(ctx, "tenant", "t1")
	require.True(t, ok)
	assert.Equal(t, `{"active":true}`, string(v))
}

func TestCache_FPPatternRoundTripAndInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok := c.GetFPPattern(ctx, "fp-001")
	assert.False(t, ok)

	c.SetFPPattern(ctx, "fp-001", []byte(`{"regex":"old"}`))
	v, ok := c.GetFPPattern(ctx, "fp-001")
	require.True(t, ok)
	assert.Equal(t, `{"regex":"old"}`, string(v))

	c.InvalidateFPPattern(ctx, "fp-001", []byte(`{"regex":"new"}`))
	v, ok = c.GetFPPattern(ctx, "fp-001")
	require.True(t, ok)
	assert.Equal(t, `{"regex":"new"}`, string(v))
}
