// Package store defines the persistence contract for the urgency pricing
// engine. Implementations include PostgreSQL (source of truth), Redis
// (quote cache in front of a primary), SQLite via gorm (single node) and
// in-memory (for testing).
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atmx/urgency-engine/internal/model"
)

// ErrNotFound is returned when a row is absent or, for quotes, expired.
var ErrNotFound = errors.New("store: not found")

// QuoteStore holds cached quote snapshots.
type QuoteStore interface {
	// GetQuote returns the entry for key if it has not expired at now.
	GetQuote(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error)

	// PutQuote inserts or replaces the entry for entry.Key.
	PutQuote(ctx context.Context, entry *model.CacheEntry) error

	// DeleteQuotesInRange removes entries whose target date falls in
	// [start, end] (calendar days, inclusive) and returns how many went.
	DeleteQuotesInRange(ctx context.Context, start, end time.Time) (int64, error)

	// CountQuotesByLevel counts entries that have not expired at now.
	CountQuotesByLevel(ctx context.Context, now time.Time) (map[model.UrgencyLevel]int, error)
}

// ConfigStore holds pricing configuration and event multipliers.
type ConfigStore interface {
	// GetPricingConfig returns curve parameters stored under key.
	GetPricingConfig(ctx context.Context, key string) (*model.PricingConfig, error)

	// GetDemandConfig returns the demand tables for a location profile.
	GetDemandConfig(ctx context.Context, profile string) (*model.MarketDemandConfig, error)

	// ListEvents returns events matching filter, ordered by start date.
	// Date bounds select events overlapping [Start, End].
	ListEvents(ctx context.Context, filter model.EventFilter) ([]model.EventMultiplier, error)

	// GetEvent retrieves an event by ID, active or not.
	GetEvent(ctx context.Context, id string) (*model.EventMultiplier, error)

	// InsertEvent persists a new event.
	InsertEvent(ctx context.Context, ev *model.EventMultiplier) error

	// DeactivateEvent soft-deletes an event.
	DeactivateEvent(ctx context.Context, id string, at time.Time) error
}

// Store is the full persistence interface.
type Store interface {
	QuoteStore
	ConfigStore

	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}

// matchesFilter reports whether ev intersects the filter's date bounds and
// passes its city and active constraints.
func matchesFilter(ev *model.EventMultiplier, f model.EventFilter) bool {
	if !f.IncludeInactive && !ev.Active {
		return false
	}
	if !f.End.IsZero() && ev.StartDate.After(f.End) {
		return false
	}
	if !f.Start.IsZero() && ev.EndDate.Before(f.Start) {
		return false
	}
	if f.City != "" {
		found := false
		for _, c := range ev.Cities {
			if strings.EqualFold(c, f.City) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
