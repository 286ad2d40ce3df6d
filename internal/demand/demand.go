// Package demand combines the urgency-independent demand factors for a
// night: the profile's base multiplier, the weekday and seasonal tables,
// and any special event covering the date.
//
//	total = base × dayOfWeek × seasonal × event
//
// Overlapping events never stack: the event factor is the largest
// multiplier among the events that apply.
package demand

import (
	"strings"
	"time"

	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/timeutil"
)

// Impact levels attached to events by multiplier magnitude.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Factors is the per-component view of a demand multiplier.
type Factors struct {
	Base      float64 `json:"base"`
	DayOfWeek float64 `json:"dayOfWeek"`
	Seasonal  float64 `json:"seasonal"`
	Event     float64 `json:"event"`
	Total     float64 `json:"total"`
}

// Multiplier returns the combined demand multiplier for date.
// An empty city matches every event.
func Multiplier(date time.Time, cfg model.MarketDemandConfig, events []model.EventMultiplier, city string) float64 {
	return Breakdown(date, cfg, events, city).Total
}

// Breakdown returns each demand factor for date along with their product.
func Breakdown(date time.Time, cfg model.MarketDemandConfig, events []model.EventMultiplier, city string) Factors {
	f := Factors{
		Base:      cfg.BaseMultiplier,
		DayOfWeek: DayOfWeekFactor(date, cfg),
		Seasonal:  SeasonalFactor(date, cfg),
		Event:     EventFactor(date, events, city),
	}
	f.Total = f.Base * f.DayOfWeek * f.Seasonal * f.Event
	return f
}

// DayOfWeekFactor looks up the date's UTC weekday; 1.0 when absent.
func DayOfWeekFactor(date time.Time, cfg model.MarketDemandConfig) float64 {
	name := strings.ToLower(date.UTC().Weekday().String())
	if m, ok := cfg.DayOfWeek[name]; ok {
		return m
	}
	return 1.0
}

// SeasonalFactor looks up the date's zero-based UTC month; 1.0 when absent.
func SeasonalFactor(date time.Time, cfg model.MarketDemandConfig) float64 {
	if m, ok := cfg.Seasonal[int(date.UTC().Month())-1]; ok {
		return m
	}
	return 1.0
}

// EventFactor returns the largest multiplier among events whose inclusive
// date span contains date and whose cities include city. 1.0 if none match.
func EventFactor(date time.Time, events []model.EventMultiplier, city string) float64 {
	factor := 1.0
	for _, ev := range Matching(date, events, city) {
		if ev.Multiplier > factor {
			factor = ev.Multiplier
		}
	}
	return factor
}

// Matching filters events to those covering date in city.
func Matching(date time.Time, events []model.EventMultiplier, city string) []model.EventMultiplier {
	day := timeutil.StartOfDay(date)
	var out []model.EventMultiplier
	for _, ev := range events {
		if day.Before(timeutil.StartOfDay(ev.StartDate)) || day.After(timeutil.StartOfDay(ev.EndDate)) {
			continue
		}
		if city != "" && !HasCity(ev, city) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// HasCity reports whether ev applies to city, ignoring case.
func HasCity(ev model.EventMultiplier, city string) bool {
	for _, c := range ev.Cities {
		if strings.EqualFold(c, city) {
			return true
		}
	}
	return false
}

// ImpactLevel tags an event multiplier: >= 2.5 high, >= 1.5 medium, else low.
func ImpactLevel(multiplier float64) string {
	switch {
	case multiplier >= 2.5:
		return ImpactHigh
	case multiplier >= 1.5:
		return ImpactMedium
	default:
		return ImpactLow
	}
}
