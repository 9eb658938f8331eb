package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "ledger", "payouts.changed"), mr
}

type payload struct {
	Name  string `json:"name"`
	Total string `json:"total"`
}

func TestVersionInitialisesToOne(t *testing.T) {
	c, _ := newTestCache(t)
	ver, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
}

func TestGetSetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, c.Set(ctx, "k", payload{Name: "a", Total: "10.00"}, time.Minute))
	hit, err = c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "10.00", out.Total)
}

func TestSetHonoursTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", payload{Name: "a"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	var out payload
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestBumpAdvancesVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	_, err := c.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	ver, err := c.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
}

func TestListenBumpsOnChangeNotice(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Listen(ctx))
	require.NoError(t, c.Notify(ctx, "payout-updated"))

	require.Eventually(t, func() bool {
		ver, err := c.Version(context.Background())
		return err == nil && ver == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Versioned
	ctx := context.Background()
	hit, err := c.Get(ctx, "k", &payload{})
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Set(ctx, "k", payload{}, time.Minute))
	require.NoError(t, c.Bump(ctx))
}
