package demand

import (
	"math"
	"testing"
	"time"

	"github.com/atmx/urgency-engine/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testConfig() model.MarketDemandConfig {
	return model.MarketDemandConfig{
		Profile:        "urban",
		BaseMultiplier: 1.1,
		DayOfWeek: map[string]float64{
			"friday":   1.2,
			"saturday": 1.3,
		},
		Seasonal: map[int]float64{
			2: 0.9,  // March
			6: 1.25, // July
		},
	}
}

func event(id string, mult float64, start, end time.Time, cities ...string) model.EventMultiplier {
	return model.EventMultiplier{ID: id, Name: id, StartDate: start, EndDate: end, Multiplier: mult, Cities: cities, Active: true}
}

func TestMultiplier_NoEventsIsTableProduct(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name string
		date time.Time
		want float64
	}{
		{"friday in march", date(2026, 3, 6), 1.1 * 1.2 * 0.9},
		{"saturday in july", date(2026, 7, 4), 1.1 * 1.3 * 1.25},
		{"wednesday in january (absent entries)", date(2026, 1, 7), 1.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Multiplier(tt.date, cfg, nil, "nyc")
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEventFactor_TakesMaximum(t *testing.T) {
	day := date(2026, 3, 3)
	events := []model.EventMultiplier{
		event("expo", 1.5, date(2026, 3, 1), date(2026, 3, 5), "nyc"),
		event("marathon", 2.0, date(2026, 3, 2), date(2026, 3, 3), "nyc"),
	}
	if got := EventFactor(day, events, "nyc"); got != 2.0 {
		t.Errorf("expected max event factor 2.0, got %v", got)
	}
}

func TestEventFactor_InclusiveBounds(t *testing.T) {
	events := []model.EventMultiplier{event("expo", 1.8, date(2026, 3, 1), date(2026, 3, 5), "nyc")}

	for _, d := range []time.Time{date(2026, 3, 1), date(2026, 3, 5), date(2026, 3, 5).Add(23 * time.Hour)} {
		if got := EventFactor(d, events, "nyc"); got != 1.8 {
			t.Errorf("expected 1.8 on %v, got %v", d, got)
		}
	}
	for _, d := range []time.Time{date(2026, 2, 28), date(2026, 3, 6)} {
		if got := EventFactor(d, events, "nyc"); got != 1.0 {
			t.Errorf("expected 1.0 on %v, got %v", d, got)
		}
	}
}

func TestEventFactor_CityFilter(t *testing.T) {
	day := date(2026, 3, 3)
	events := []model.EventMultiplier{
		event("sf-conf", 2.6, date(2026, 3, 1), date(2026, 3, 5), "sf"),
		event("nyc-expo", 1.4, date(2026, 3, 1), date(2026, 3, 5), "NYC", "bos"),
	}

	if got := EventFactor(day, events, "nyc"); got != 1.4 {
		t.Errorf("expected case-insensitive nyc match 1.4, got %v", got)
	}
	if got := EventFactor(day, events, "chi"); got != 1.0 {
		t.Errorf("expected no match for chi, got %v", got)
	}
	if got := EventFactor(day, events, ""); got != 2.6 {
		t.Errorf("expected all events without a city filter, got %v", got)
	}
}

func TestBreakdown_ComponentsMultiply(t *testing.T) {
	day := date(2026, 3, 6) // Friday
	events := []model.EventMultiplier{event("expo", 1.5, date(2026, 3, 1), date(2026, 3, 10), "nyc")}

	f := Breakdown(day, testConfig(), events, "nyc")
	if f.Base != 1.1 || f.DayOfWeek != 1.2 || f.Seasonal != 0.9 || f.Event != 1.5 {
		t.Fatalf("unexpected factors: %+v", f)
	}
	if math.Abs(f.Total-1.1*1.2*0.9*1.5) > 1e-12 {
		t.Errorf("unexpected total %v", f.Total)
	}
	if f.Total != Multiplier(day, testConfig(), events, "nyc") {
		t.Error("Multiplier and Breakdown disagree")
	}
}

func TestImpactLevel(t *testing.T) {
	tests := []struct {
		mult float64
		want string
	}{
		{1.0, ImpactLow},
		{1.49, ImpactLow},
		{1.5, ImpactMedium},
		{2.49, ImpactMedium},
		{2.5, ImpactHigh},
		{4.0, ImpactHigh},
	}
	for _, tt := range tests {
		if got := ImpactLevel(tt.mult); got != tt.want {
			t.Errorf("ImpactLevel(%v) = %s, want %s", tt.mult, got, tt.want)
		}
	}
}
