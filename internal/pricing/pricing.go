// Package pricing composes the urgency curve and the demand multiplier into
// a full quote for one night: current price, peak price, forecast points,
// increase rates and the cache expiry that goes with the quote.
//
// Prices are whole currency units:
//
//	marketAdjustedBase = basePrice × marketDemandMultiplier   (2 dp)
//	currentPrice       = round(marketAdjustedBase × multiplier)
//
// Everything here is pure; "now" comes from the UrgencyContext.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/urgency-engine/internal/apperr"
	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/timeutil"
	"github.com/atmx/urgency-engine/internal/urgency"
)

// PeakDaysOut is the reference point for the peak price.
const PeakDaysOut = 1

var (
	// ErrInvalidBasePrice is returned when basePrice <= 0.
	ErrInvalidBasePrice = fmt.Errorf("%w: base price must be positive", apperr.ErrComputation)

	// ErrInvalidDemandMultiplier is returned when the market demand multiplier <= 0.
	ErrInvalidDemandMultiplier = fmt.Errorf("%w: market demand multiplier must be positive", apperr.ErrComputation)

	hundred = decimal.NewFromInt(100)
)

// NewContext resolves days and hours until check-in for target relative to
// now. Hours are floored at zero once the target day has begun.
func NewContext(target, now time.Time, basePrice decimal.Decimal, steepness, marketMultiplier float64, lookbackWindow int) model.UrgencyContext {
	day := timeutil.StartOfDay(target)
	hours := timeutil.HoursBetween(now, day)
	if hours < 0 {
		hours = 0
	}
	return model.UrgencyContext{
		TargetDate:             day,
		CurrentDate:            now,
		DaysUntilCheckIn:       timeutil.DaysBetween(now, day),
		HoursUntilCheckIn:      hours,
		BasePrice:              basePrice,
		UrgencySteepness:       steepness,
		MarketDemandMultiplier: marketMultiplier,
		LookbackWindow:         lookbackWindow,
	}
}

// Calculate prices uc. The returned quote carries no cache key; the caller
// stamps it once the key is known.
func Calculate(uc model.UrgencyContext) (*model.UrgencyPricing, error) {
	if !uc.BasePrice.IsPositive() {
		return nil, ErrInvalidBasePrice
	}
	if !(uc.MarketDemandMultiplier > 0) || math.IsInf(uc.MarketDemandMultiplier, 0) {
		return nil, ErrInvalidDemandMultiplier
	}
	curve, err := urgency.NewCurve(uc.UrgencySteepness, uc.LookbackWindow)
	if err != nil {
		return nil, err
	}

	level := LevelFor(uc.DaysUntilCheckIn)
	adjustedBase := uc.BasePrice.Mul(decimal.NewFromFloat(uc.MarketDemandMultiplier)).Round(2)

	// Hourly resolution only matters inside the critical window.
	var multiplier float64
	if level == model.UrgencyCritical {
		multiplier = curve.AtHours(uc.HoursUntilCheckIn)
	} else {
		multiplier = curve.AtDays(uc.DaysUntilCheckIn)
	}
	current := priceAt(adjustedBase, multiplier)

	peak := priceAt(adjustedBase, curve.AtDays(PeakDaysOut))
	gap := peak.Sub(current)
	perDay := gap.Div(decimal.NewFromInt(int64(max(1, uc.DaysUntilCheckIn-1)))).Round(0)
	perHour := gap.Div(decimal.NewFromInt(int64(max(1, uc.HoursUntilCheckIn-24)))).Round(0)

	now := uc.CurrentDate.UTC()
	return &model.UrgencyPricing{
		TargetDate:          timeutil.FormatDate(uc.TargetDate),
		CurrentPrice:        current,
		CurrentMultiplier:   multiplier,
		BasePrice:           uc.BasePrice,
		MarketAdjustedBase:  adjustedBase,
		UrgencyPremium:      current.Sub(adjustedBase),
		UrgencyLevel:        level,
		DaysUntilCheckIn:    uc.DaysUntilCheckIn,
		HoursUntilCheckIn:   uc.HoursUntilCheckIn,
		Projections:         Projections(uc, curve, level, adjustedBase, current),
		IncreaseRatePerDay:  perDay,
		IncreaseRatePerHour: perHour,
		PeakPrice:           peak,
		CalculatedAt:        now,
		ExpiresAt:           now.Add(TTL(level)),
		Parameters: model.PricingParameters{
			BasePrice:              uc.BasePrice,
			UrgencySteepness:       uc.UrgencySteepness,
			MarketDemandMultiplier: uc.MarketDemandMultiplier,
			LookbackWindow:         uc.LookbackWindow,
		},
	}, nil
}

// Projections forecasts prices at the days-out points chosen by the
// current level. Points not strictly closer to check-in than today are
// dropped, so the result may be empty (e.g. critical at 1 day out).
func Projections(uc model.UrgencyContext, curve *urgency.Curve, level model.UrgencyLevel, adjustedBase, current decimal.Decimal) []model.PriceProjection {
	offsets := projectionOffsets(level)
	out := make([]model.PriceProjection, 0, len(offsets))

	for _, daysOut := range offsets {
		if daysOut >= uc.DaysUntilCheckIn {
			continue
		}
		hoursOut := daysOut * 24

		var multiplier float64
		if daysOut < 1 {
			multiplier = curve.AtHours(hoursOut)
		} else {
			multiplier = curve.AtDays(daysOut)
		}
		price := priceAt(adjustedBase, multiplier)
		increase := price.Sub(current)

		pct := 0.0
		if current.IsPositive() {
			pct = increase.Div(current).Mul(hundred).Round(2).InexactFloat64()
		}

		out = append(out, model.PriceProjection{
			DaysOut:            daysOut,
			HoursOut:           hoursOut,
			Price:              price,
			Multiplier:         multiplier,
			IncreaseFromNow:    increase,
			PercentageIncrease: pct,
			UrgencyLevel:       LevelFor(daysOut),
			Timestamp:          timeutil.AddDays(uc.TargetDate, -daysOut),
		})
	}
	return out
}

func priceAt(adjustedBase decimal.Decimal, multiplier float64) decimal.Decimal {
	return adjustedBase.Mul(decimal.NewFromFloat(multiplier)).Round(0)
}
