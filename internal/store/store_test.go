package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/urgency-engine/internal/model"
)

var now = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func entry(key, target string, level model.UrgencyLevel, ttl time.Duration) *model.CacheEntry {
	return &model.CacheEntry{
		Key:          key,
		TargetDate:   day(target),
		UrgencyLevel: level,
		Pricing: model.UrgencyPricing{
			TargetDate:   target,
			CurrentPrice: decimal.NewFromInt(949),
			BasePrice:    decimal.NewFromInt(150),
			UrgencyLevel: level,
			CacheKey:     key,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// backends returns every Store implementation that can run without an
// external server.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "urgency.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestQuoteRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutQuote(ctx, entry("k1", "2026-02-27", model.UrgencyHigh, 15*time.Minute)))

			got, err := s.GetQuote(ctx, "k1", now)
			require.NoError(t, err)
			assert.Equal(t, "k1", got.Key)
			assert.Equal(t, model.UrgencyHigh, got.UrgencyLevel)
			assert.True(t, got.Pricing.CurrentPrice.Equal(decimal.NewFromInt(949)))
			assert.True(t, got.TargetDate.Equal(day("2026-02-27")))

			_, err = s.GetQuote(ctx, "k1", now.Add(15*time.Minute))
			assert.ErrorIs(t, err, ErrNotFound, "entry must be invisible once expired")

			_, err = s.GetQuote(ctx, "missing", now)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPutQuoteOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutQuote(ctx, entry("k", "2026-02-27", model.UrgencyHigh, time.Minute)))
			require.NoError(t, s.PutQuote(ctx, entry("k", "2026-02-27", model.UrgencyHigh, time.Hour)))

			_, err := s.GetQuote(ctx, "k", now.Add(30*time.Minute))
			assert.NoError(t, err)
		})
	}
}

func TestDeleteQuotesInRange(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, e := range []*model.CacheEntry{
				entry("a", "2026-02-28", model.UrgencyHigh, time.Hour),
				entry("b", "2026-03-01", model.UrgencyMedium, time.Hour),
				entry("c", "2026-03-03", model.UrgencyMedium, time.Hour),
				entry("d", "2026-03-05", model.UrgencyMedium, time.Hour),
				entry("e", "2026-03-06", model.UrgencyLow, time.Hour),
			} {
				require.NoError(t, s.PutQuote(ctx, e))
			}

			n, err := s.DeleteQuotesInRange(ctx, day("2026-03-01"), day("2026-03-05"))
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)

			for _, key := range []string{"b", "c", "d"} {
				_, err := s.GetQuote(ctx, key, now)
				assert.ErrorIs(t, err, ErrNotFound, key)
			}
			for _, key := range []string{"a", "e"} {
				_, err := s.GetQuote(ctx, key, now)
				assert.NoError(t, err, key)
			}
		})
	}
}

func TestCountQuotesByLevel(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutQuote(ctx, entry("c1", "2026-02-21", model.UrgencyCritical, 5*time.Minute)))
			require.NoError(t, s.PutQuote(ctx, entry("h1", "2026-02-25", model.UrgencyHigh, 15*time.Minute)))
			require.NoError(t, s.PutQuote(ctx, entry("h2", "2026-02-26", model.UrgencyHigh, 15*time.Minute)))
			require.NoError(t, s.PutQuote(ctx, entry("l1", "2026-05-01", model.UrgencyLow, 6*time.Hour)))

			counts, err := s.CountQuotesByLevel(ctx, now.Add(10*time.Minute))
			require.NoError(t, err)

			stats := model.NewCacheStats(counts)
			assert.Equal(t, model.CacheStats{Total: 3, Critical: 0, High: 2, Medium: 0, Low: 1}, stats)
		})
	}
}

func TestEventsFilterAndDeactivate(t *testing.T) {
	ctx := context.Background()
	events := []model.EventMultiplier{
		{ID: "ev-1", Name: "Expo", StartDate: day("2026-03-01"), EndDate: day("2026-03-05"), Multiplier: 2.0, Cities: []string{"Austin"}, ImpactLevel: "medium", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "ev-2", Name: "Festival", StartDate: day("2026-03-10"), EndDate: day("2026-03-12"), Multiplier: 3.0, Cities: []string{"Denver", "Boulder"}, ImpactLevel: "high", Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "ev-3", Name: "Anywhere", StartDate: day("2026-03-04"), EndDate: day("2026-03-04"), Multiplier: 1.2, ImpactLevel: "low", Active: true, CreatedAt: now, UpdatedAt: now},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := range events {
				require.NoError(t, s.InsertEvent(ctx, &events[i]))
			}

			all, err := s.ListEvents(ctx, model.EventFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"ev-1", "ev-3", "ev-2"}, ids(all), "ordered by start date")

			window, err := s.ListEvents(ctx, model.EventFilter{Start: day("2026-03-05"), End: day("2026-03-10")})
			require.NoError(t, err)
			assert.Equal(t, []string{"ev-1", "ev-2"}, ids(window), "inclusive span overlap")

			denver, err := s.ListEvents(ctx, model.EventFilter{City: "denver"})
			require.NoError(t, err)
			assert.Equal(t, []string{"ev-2"}, ids(denver), "city match ignores case")

			got, err := s.GetEvent(ctx, "ev-2")
			require.NoError(t, err)
			assert.Equal(t, []string{"Denver", "Boulder"}, got.Cities)
			assert.Equal(t, "high", got.ImpactLevel)

			later := now.Add(time.Hour)
			require.NoError(t, s.DeactivateEvent(ctx, "ev-1", later))

			active, err := s.ListEvents(ctx, model.EventFilter{})
			require.NoError(t, err)
			assert.Equal(t, []string{"ev-3", "ev-2"}, ids(active))

			withInactive, err := s.ListEvents(ctx, model.EventFilter{IncludeInactive: true})
			require.NoError(t, err)
			assert.Len(t, withInactive, 3)

			ev1, err := s.GetEvent(ctx, "ev-1")
			require.NoError(t, err)
			assert.False(t, ev1.Active)
			assert.True(t, ev1.UpdatedAt.Equal(later))

			assert.ErrorIs(t, s.DeactivateEvent(ctx, "nope", later), ErrNotFound)
			_, err = s.GetEvent(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPricingConfigLookup(t *testing.T) {
	ctx := context.Background()

	mem := NewMemoryStore()
	_, err := mem.GetPricingConfig(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)
	mem.SetPricingConfig(model.PricingConfig{Key: "default", Steepness: 2.5, LookbackWindow: 60})
	cfg, err := mem.GetPricingConfig(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.Steepness)

	// Migrate seeds the default row.
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "cfg.db"))
	require.NoError(t, err)
	defer sqlite.Close()

	cfg, err = sqlite.GetPricingConfig(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, model.PricingConfig{Key: "default", Steepness: 2.0, LookbackWindow: 90}, *cfg)

	require.NoError(t, sqlite.SavePricingConfig(ctx, model.PricingConfig{Key: "default", Steepness: 3.0, LookbackWindow: 30}))
	cfg, err = sqlite.GetPricingConfig(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Steepness)
	assert.Equal(t, 30, cfg.LookbackWindow)
}

func TestDemandConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := model.MarketDemandConfig{
		Profile:        "resort",
		BaseMultiplier: 1.1,
		DayOfWeek:      map[string]float64{"friday": 1.3, "saturday": 1.4},
		Seasonal:       map[int]float64{0: 0.8, 6: 1.5},
	}

	mem := NewMemoryStore()
	mem.SetDemandConfig(want)

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "demand.db"))
	require.NoError(t, err)
	defer sqlite.Close()
	require.NoError(t, sqlite.SaveDemandConfig(ctx, want))

	for name, s := range map[string]Store{"memory": mem, "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetDemandConfig(ctx, "resort")
			require.NoError(t, err)
			assert.Equal(t, want, *got)

			_, err = s.GetDemandConfig(ctx, "urban")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ev := model.EventMultiplier{ID: "x", StartDate: day("2026-03-01"), EndDate: day("2026-03-01"), Multiplier: 2, Cities: []string{"Austin"}, Active: true}
	require.NoError(t, s.InsertEvent(ctx, &ev))
	assert.Error(t, s.InsertEvent(ctx, &ev), "duplicate id")

	ev.Cities[0] = "Mutated"
	got, err := s.GetEvent(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"Austin"}, got.Cities)

	got.Cities[0] = "Again"
	again, err := s.GetEvent(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"Austin"}, again.Cities)
}

func ids(events []model.EventMultiplier) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestEventUUID(t *testing.T) {
	id := "5f0c6a0e-3b7c-4d8e-9a51-2c4f1e7d9b30"
	got, err := eventUUID(id)
	require.NoError(t, err)
	assert.Equal(t, id, got.String())

	for _, bad := range []string{"", "nope", "ev-1", "5f0c6a0e-3b7c"} {
		_, err := eventUUID(bad)
		assert.ErrorIs(t, err, ErrNotFound, bad)
	}
}
