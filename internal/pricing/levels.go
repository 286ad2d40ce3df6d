package pricing

import (
	"time"

	"github.com/atmx/urgency-engine/internal/model"
)

// Urgency tier thresholds in days until check-in (inclusive upper bounds).
const (
	CriticalMaxDays = 3
	HighMaxDays     = 7
	MediumMaxDays   = 14
)

// Cache lifetimes per urgency tier. Near-term prices move fastest, so they
// refresh most often.
const (
	TTLCritical = 5 * time.Minute
	TTLHigh     = 15 * time.Minute
	TTLMedium   = time.Hour
	TTLLow      = 6 * time.Hour
)

// LevelFor derives the urgency tier from days until check-in.
func LevelFor(daysUntilCheckIn int) model.UrgencyLevel {
	switch {
	case daysUntilCheckIn <= CriticalMaxDays:
		return model.UrgencyCritical
	case daysUntilCheckIn <= HighMaxDays:
		return model.UrgencyHigh
	case daysUntilCheckIn <= MediumMaxDays:
		return model.UrgencyMedium
	default:
		return model.UrgencyLow
	}
}

// TTL returns the cache lifetime for level. Unknown levels get the
// shortest lifetime.
func TTL(level model.UrgencyLevel) time.Duration {
	switch level {
	case model.UrgencyHigh:
		return TTLHigh
	case model.UrgencyMedium:
		return TTLMedium
	case model.UrgencyLow:
		return TTLLow
	default:
		return TTLCritical
	}
}

// projectionOffsets are the days-out points forecast for each tier.
func projectionOffsets(level model.UrgencyLevel) []int {
	switch level {
	case model.UrgencyCritical:
		return []int{1}
	case model.UrgencyHigh:
		return []int{1, 2, 3}
	case model.UrgencyMedium:
		return []int{3, 5, 7}
	default:
		return []int{7, 14, 21}
	}
}
