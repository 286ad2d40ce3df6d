package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/urgency-engine/internal/model"
)

// newRedisStore connects to REDIS_TEST_URL and flushes its database. The
// URL should name a throwaway database, e.g. redis://localhost:6379/15.
func newRedisStore(t *testing.T) (*CachedStore, *redis.Client) {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return NewCachedStore(NewMemoryStore(), rdb, time.Minute), rdb
}

func TestCachedStore_DeleteQuotesInRange(t *testing.T) {
	s, rdb := newRedisStore(t)
	ctx := context.Background()

	dates := map[string]string{
		"q-feb28": "2026-02-28",
		"q-mar01": "2026-03-01",
		"q-mar02": "2026-03-02",
		"q-mar03": "2026-03-03",
		"q-mar09": "2026-03-09",
	}
	for key, date := range dates {
		e := entry(key, date, model.UrgencyHigh, 0)
		e.ExpiresAt = time.Now().Add(time.Hour)
		require.NoError(t, s.PutQuote(ctx, e))
	}

	n, err := s.DeleteQuotesInRange(ctx, day("2026-03-01"), day("2026-03-03"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	members, err := rdb.ZRange(ctx, quoteIndexKey, 0, -1).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"q-feb28", "q-mar09"}, members)

	// A quote written after an invalidation stays indexed for the next one.
	late := entry("q-mar02-late", "2026-03-02", model.UrgencyHigh, 0)
	late.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, s.PutQuote(ctx, late))

	n, err = s.DeleteQuotesInRange(ctx, day("2026-03-02"), day("2026-03-02"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	exists, err := rdb.Exists(ctx, "q-mar02-late").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestCachedStore_QuoteRoundTrip(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	e := entry("q-1", "2026-03-01", model.UrgencyCritical, 0)
	e.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, s.PutQuote(ctx, e))

	got, err := s.GetQuote(ctx, "q-1", time.Now())
	require.NoError(t, err)
	assert.True(t, got.Pricing.CurrentPrice.Equal(e.Pricing.CurrentPrice))

	_, err = s.GetQuote(ctx, "q-1", e.ExpiresAt)
	assert.ErrorIs(t, err, ErrNotFound)
}
