// Package model defines the core domain types shared across the urgency
// pricing engine. All monetary values use shopspring/decimal; multipliers
// are plain float64 factors.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UrgencyLevel is the coarse urgency tier derived from days until check-in.
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyLow      UrgencyLevel = "low"
)

// UrgencyLevels lists the tiers from most to least time-sensitive.
var UrgencyLevels = []UrgencyLevel{UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow}

// Valid reports whether l is one of the four known tiers.
func (l UrgencyLevel) Valid() bool {
	switch l {
	case UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// UrgencyContext is the fully resolved input for one price computation.
// It is built per request and never mutated afterwards.
type UrgencyContext struct {
	TargetDate             time.Time
	CurrentDate            time.Time
	DaysUntilCheckIn       int
	HoursUntilCheckIn      int
	BasePrice              decimal.Decimal
	UrgencySteepness       float64
	MarketDemandMultiplier float64
	LookbackWindow         int // days
}

// PriceProjection is a forecast price at a fixed number of days before check-in.
type PriceProjection struct {
	DaysOut            int             `json:"daysOut"`
	HoursOut           int             `json:"hoursOut"`
	Price              decimal.Decimal `json:"price"`
	Multiplier         float64         `json:"multiplier"`
	IncreaseFromNow    decimal.Decimal `json:"increaseFromNow"`
	PercentageIncrease float64         `json:"percentageIncrease"`
	UrgencyLevel       UrgencyLevel    `json:"urgencyLevel"`
	Timestamp          time.Time       `json:"timestamp"`
}

// PricingParameters echoes the effective inputs of a quote.
type PricingParameters struct {
	BasePrice              decimal.Decimal `json:"basePrice"`
	UrgencySteepness       float64         `json:"urgencySteepness"`
	MarketDemandMultiplier float64         `json:"marketDemandMultiplier"`
	LookbackWindow         int             `json:"lookbackWindow"`
}

// UrgencyPricing is a computed quote. Read-only once created; a fresh
// computation supersedes it after ExpiresAt.
type UrgencyPricing struct {
	TargetDate          string            `json:"targetDate"` // YYYY-MM-DD
	CurrentPrice        decimal.Decimal   `json:"currentPrice"`
	CurrentMultiplier   float64           `json:"currentMultiplier"`
	BasePrice           decimal.Decimal   `json:"basePrice"`
	MarketAdjustedBase  decimal.Decimal   `json:"marketAdjustedBase"`
	UrgencyPremium      decimal.Decimal   `json:"urgencyPremium"`
	UrgencyLevel        UrgencyLevel      `json:"urgencyLevel"`
	DaysUntilCheckIn    int               `json:"daysUntilCheckIn"`
	HoursUntilCheckIn   int               `json:"hoursUntilCheckIn"`
	Projections         []PriceProjection `json:"projections"`
	IncreaseRatePerDay  decimal.Decimal   `json:"increaseRatePerDay"`
	IncreaseRatePerHour decimal.Decimal   `json:"increaseRatePerHour"`
	PeakPrice           decimal.Decimal   `json:"peakPrice"`
	CalculatedAt        time.Time         `json:"calculatedAt"`
	ExpiresAt           time.Time         `json:"expiresAt"`
	Parameters          PricingParameters `json:"parameters"`
	CacheKey            string            `json:"cacheKey"`
}

// PricingConfig holds the curve parameters loaded from the config store.
type PricingConfig struct {
	Key            string  `json:"key" db:"config_key"`
	Steepness      float64 `json:"steepness" db:"steepness"`
	LookbackWindow int     `json:"lookbackWindow" db:"lookback_window_days"`
}

// MarketDemandConfig holds the demand tables for one location profile.
// DayOfWeek is keyed by lowercase English weekday name, Seasonal by
// zero-based month index (0 = January).
type MarketDemandConfig struct {
	Profile        string             `json:"profile"`
	BaseMultiplier float64            `json:"baseMultiplier"`
	DayOfWeek      map[string]float64 `json:"dayOfWeek"`
	Seasonal       map[int]float64    `json:"seasonal"`
}

// EventMultiplier is a demand boost for a date span in a set of cities.
// StartDate and EndDate are both inclusive calendar days.
type EventMultiplier struct {
	ID          string    `json:"eventId" db:"id"`
	Name        string    `json:"eventName" db:"name"`
	StartDate   time.Time `json:"startDate" db:"start_date"`
	EndDate     time.Time `json:"endDate" db:"end_date"`
	Multiplier  float64   `json:"multiplier" db:"multiplier"`
	Cities      []string  `json:"cities" db:"cities"`
	ImpactLevel string    `json:"impactLevel" db:"impact_level"`
	Active      bool      `json:"isActive" db:"is_active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// EventFilter narrows an event listing. Zero values mean "unbounded".
type EventFilter struct {
	Start           time.Time
	End             time.Time
	City            string
	IncludeInactive bool
}

// CacheEntry is a stored quote snapshot addressed by its cache key.
type CacheEntry struct {
	Key          string         `json:"key" db:"cache_key"`
	TargetDate   time.Time      `json:"targetDate" db:"target_date"`
	UrgencyLevel UrgencyLevel   `json:"urgencyLevel" db:"urgency_level"`
	Pricing      UrgencyPricing `json:"pricing" db:"pricing"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	ExpiresAt    time.Time      `json:"expiresAt" db:"expires_at"`
}

// CacheStats counts non-expired cache entries per urgency level.
type CacheStats struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// NewCacheStats folds per-level counts into a CacheStats.
func NewCacheStats(counts map[UrgencyLevel]int) CacheStats {
	s := CacheStats{
		Critical: counts[UrgencyCritical],
		High:     counts[UrgencyHigh],
		Medium:   counts[UrgencyMedium],
		Low:      counts[UrgencyLow],
	}
	s.Total = s.Critical + s.High + s.Medium + s.Low
	return s
}
