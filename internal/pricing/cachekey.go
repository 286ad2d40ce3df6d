package pricing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/urgency-engine/internal/timeutil"
)

// CacheKeyPrefix namespaces quote keys in shared stores.
const CacheKeyPrefix = "urgency"

// GenerateCacheKey derives the cache key for a quote. The date is truncated
// to its UTC day and the market multiplier rounded to two decimals, so two
// calls with the same logical inputs always produce the same key.
//
// Format: urgency:{YYYY-MM-DD}:{basePrice}:{steepness}:{marketMultiplier}
func GenerateCacheKey(date time.Time, basePrice decimal.Decimal, steepness, marketMultiplier float64) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		CacheKeyPrefix,
		timeutil.FormatDate(date),
		basePrice.StringFixed(2),
		strconv.FormatFloat(steepness, 'f', -1, 64),
		decimal.NewFromFloat(marketMultiplier).StringFixed(2),
	)
}
