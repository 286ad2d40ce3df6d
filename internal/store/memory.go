package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/timeutil"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	quotes  map[string]model.CacheEntry
	configs map[string]model.PricingConfig
	demand  map[string]model.MarketDemandConfig
	events  map[string]*model.EventMultiplier
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes:  make(map[string]model.CacheEntry),
		configs: make(map[string]model.PricingConfig),
		demand:  make(map[string]model.MarketDemandConfig),
		events:  make(map[string]*model.EventMultiplier),
	}
}

// SetPricingConfig seeds a pricing config row.
func (s *MemoryStore) SetPricingConfig(cfg model.PricingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Key] = cfg
}

// SetDemandConfig seeds a demand config row.
func (s *MemoryStore) SetDemandConfig(cfg model.MarketDemandConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demand[cfg.Profile] = cloneDemand(cfg)
}

// --- Quotes ---

func (s *MemoryStore) GetQuote(_ context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.quotes[key]
	if !ok || !e.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) PutQuote(_ context.Context, entry *model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes[entry.Key] = *cloneEntry(*entry)
	return nil
}

func (s *MemoryStore) DeleteQuotesInRange(_ context.Context, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, to := timeutil.StartOfDay(start), timeutil.StartOfDay(end)
	var n int64
	for key, e := range s.quotes {
		day := timeutil.StartOfDay(e.TargetDate)
		if day.Before(from) || day.After(to) {
			continue
		}
		delete(s.quotes, key)
		n++
	}
	return n, nil
}

func (s *MemoryStore) CountQuotesByLevel(_ context.Context, now time.Time) (map[model.UrgencyLevel]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.UrgencyLevel]int)
	for _, e := range s.quotes {
		if e.ExpiresAt.After(now) {
			counts[e.UrgencyLevel]++
		}
	}
	return counts, nil
}

// --- Config ---

func (s *MemoryStore) GetPricingConfig(_ context.Context, key string) (*model.PricingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[key]
	if !ok {
		return nil, fmt.Errorf("pricing config %s: %w", key, ErrNotFound)
	}
	return &cfg, nil
}

func (s *MemoryStore) GetDemandConfig(_ context.Context, profile string) (*model.MarketDemandConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.demand[profile]
	if !ok {
		return nil, fmt.Errorf("demand config %s: %w", profile, ErrNotFound)
	}
	c := cloneDemand(cfg)
	return &c, nil
}

// --- Events ---

func (s *MemoryStore) ListEvents(_ context.Context, filter model.EventFilter) ([]model.EventMultiplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.EventMultiplier, 0, len(s.events))
	for _, ev := range s.events {
		if matchesFilter(ev, filter) {
			events = append(events, cloneEvent(*ev))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartDate.Before(events[j].StartDate)
	})
	return events, nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.EventMultiplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	c := cloneEvent(*ev)
	return &c, nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, ev *model.EventMultiplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	c := cloneEvent(*ev)
	s.events[ev.ID] = &c
	return nil
}

func (s *MemoryStore) DeactivateEvent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	ev.Active = false
	ev.UpdatedAt = at
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// --- Copies (callers must not alias stored state) ---

func cloneEntry(e model.CacheEntry) *model.CacheEntry {
	c := e
	if e.Pricing.Projections != nil {
		c.Pricing.Projections = make([]model.PriceProjection, len(e.Pricing.Projections))
		copy(c.Pricing.Projections, e.Pricing.Projections)
	}
	return &c
}

func cloneEvent(ev model.EventMultiplier) model.EventMultiplier {
	c := ev
	c.Cities = append([]string(nil), ev.Cities...)
	return c
}

func cloneDemand(cfg model.MarketDemandConfig) model.MarketDemandConfig {
	c := cfg
	c.DayOfWeek = make(map[string]float64, len(cfg.DayOfWeek))
	for k, v := range cfg.DayOfWeek {
		c.DayOfWeek[k] = v
	}
	c.Seasonal = make(map[int]float64, len(cfg.Seasonal))
	for k, v := range cfg.Seasonal {
		c.Seasonal[k] = v
	}
	return c
}
