package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atmx/urgency-engine/internal/apperr"
	"github.com/atmx/urgency-engine/internal/metrics"
	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/store"
	"github.com/atmx/urgency-engine/internal/timeutil"
)

// QuoteCache stores computed quotes by cache key. Reads degrade to a miss
// on backend failure; writes do not.
type QuoteCache struct {
	store store.QuoteStore
}

// NewQuoteCache wraps a quote store.
func NewQuoteCache(st store.QuoteStore) *QuoteCache {
	return &QuoteCache{store: st}
}

// Get returns the cached quote for key if it has not expired at now.
func (c *QuoteCache) Get(ctx context.Context, key string, now time.Time) (*model.UrgencyPricing, bool) {
	entry, err := c.store.GetQuote(ctx, key, now)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return &entry.Pricing, true
	case errors.Is(err, store.ErrNotFound):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("quote cache read failed, computing fresh", "key", key, "err", err)
	}
	return nil, false
}

// Put stores p under key until p.ExpiresAt. A failure is returned as
// apperr.ErrStorage.
func (c *QuoteCache) Put(ctx context.Context, key string, p *model.UrgencyPricing) error {
	target, err := timeutil.ParseDate(p.TargetDate)
	if err != nil {
		return apperr.Computation("quote has unparseable target date %q", p.TargetDate)
	}
	entry := &model.CacheEntry{
		Key:          key,
		TargetDate:   target,
		UrgencyLevel: p.UrgencyLevel,
		Pricing:      *p,
		CreatedAt:    p.CalculatedAt,
		ExpiresAt:    p.ExpiresAt,
	}
	if err := c.store.PutQuote(ctx, entry); err != nil {
		metrics.CacheWriteFailures.Inc()
		slog.Error("quote cache write failed", "key", key, "err", err)
		return apperr.Storage("cache quote "+key, err)
	}
	return nil
}

// Stats counts live entries per urgency level. Backend failures yield
// zero counts.
func (c *QuoteCache) Stats(ctx context.Context, now time.Time) model.CacheStats {
	counts, err := c.store.CountQuotesByLevel(ctx, now)
	if err != nil {
		slog.Warn("quote cache stats failed", "err", err)
		return model.CacheStats{}
	}
	return model.NewCacheStats(counts)
}

// InvalidateRange removes every cached quote whose target date falls in
// [start, end] and returns how many were removed.
func (c *QuoteCache) InvalidateRange(ctx context.Context, start, end time.Time) (int64, error) {
	n, err := c.store.DeleteQuotesInRange(ctx, start, end)
	if err != nil {
		return 0, apperr.Storage("invalidate quotes", err)
	}
	metrics.CacheInvalidations.Add(float64(n))
	return n, nil
}
