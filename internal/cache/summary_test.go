package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitefin/internal/core"
)

func summaryAt(siteID string, revision, balance int64) core.Summary {
	s := core.Totals{FundsReceived: balance}.Summary(siteID)
	s.Revision = revision
	s.UpdatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return s
}

func TestSummaryLRU_KeepsNewestRevision(t *testing.T) {
	ctx := context.Background()
	c := NewSummaryLRU(10, time.Hour)

	c.Put(ctx, summaryAt("a", 2, 200))
	c.Put(ctx, summaryAt("a", 1, 100))

	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, int64(200), got.Balance.Cents)

	c.Put(ctx, summaryAt("a", 3, 300))
	got, _ = c.Get(ctx, "a")
	assert.Equal(t, int64(3), got.Revision)

	c.Delete(ctx, "a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestSummaryLRU_RegisteredWithManager(t *testing.T) {
	c := NewSummaryLRU(10, 10*time.Millisecond)
	c.Put(context.Background(), summaryAt("a", 1, 1))

	m := NewManager()
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)
	defer m.Stop()

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
	m.Stop()
}

func TestSummaryEncoding(t *testing.T) {
	in := core.Totals{
		FundsReceived: 100000, Expenses: 20000, Advances: 5000,
		Invoices: 10000, AdvancePaidToSupervisor: 10000,
	}.Summary("site-1")
	in.Revision = 7
	in.UpdatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	data, err := encodeSummary(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"balance":55000`)

	out, err := decodeSummary(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.Consistent())

	_, err = decodeSummary([]byte("{"))
	assert.Error(t, err)
}

func TestRedisSummaryCache_UnreachableDegradesToMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisSummaryCache(client, "", time.Minute)
	assert.Equal(t, "sitefin:summary:a", c.key("a"))

	ctx := context.Background()
	c.Put(ctx, summaryAt("a", 1, 1))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	c.Delete(ctx, "a")
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Connect(ctx, "redis://127.0.0.1:1/0")
	assert.Error(t, err)

	_, err = Connect(ctx, "redis://%zz")
	assert.Error(t, err)
}
