// Package urgency implements the exponential urgency curve that scales a
// nightly rate upward as check-in approaches.
//
// For a point t in [0, 1] on the lookback window (0 = check-in, 1 = the
// start of the window) the raw multiplier is
//
//	m(t) = exp(steepness × (1 − t))
//
// so the curve is 1.0 at the edge of the window and grows toward
// exp(steepness) on the target date. The result is always clamped to
// [MinMultiplier, MaxMultiplier].
//
// The curve is pure float64 math; callers convert to decimal only when the
// multiplier is applied to money.
package urgency

import (
	"fmt"
	"math"

	"github.com/atmx/urgency-engine/internal/apperr"
)

const (
	// MinMultiplier is the floor applied after the exponential formula.
	MinMultiplier = 1.0

	// MaxMultiplier is the cap applied after the exponential formula.
	MaxMultiplier = 10.0

	hoursPerDay = 24
)

var (
	// ErrInvalidSteepness is returned when steepness <= 0.
	ErrInvalidSteepness = fmt.Errorf("%w: urgency steepness must be positive", apperr.ErrComputation)

	// ErrInvalidLookback is returned when the lookback window <= 0.
	ErrInvalidLookback = fmt.Errorf("%w: lookback window must be positive", apperr.ErrComputation)
)

// Curve is an urgency curve for one steepness and lookback window.
// It holds no mutable state and is safe for concurrent use.
type Curve struct {
	steepness      float64
	lookbackWindow int
}

// NewCurve validates the parameters and returns a curve.
func NewCurve(steepness float64, lookbackWindow int) (*Curve, error) {
	if !(steepness > 0) || math.IsInf(steepness, 0) {
		return nil, ErrInvalidSteepness
	}
	if lookbackWindow <= 0 {
		return nil, ErrInvalidLookback
	}
	return &Curve{steepness: steepness, lookbackWindow: lookbackWindow}, nil
}

// Steepness returns the curve exponent.
func (c *Curve) Steepness() float64 { return c.steepness }

// LookbackWindow returns the window length in days.
func (c *Curve) LookbackWindow() int { return c.lookbackWindow }

// AtDays returns the multiplier daysOut days before the target date.
func (c *Curve) AtDays(daysOut int) float64 {
	return c.at(float64(daysOut), float64(c.lookbackWindow))
}

// AtHours returns the multiplier hoursOut hours before the target date,
// normalizing by the window expressed in hours.
func (c *Curve) AtHours(hoursOut int) float64 {
	return c.at(float64(hoursOut), float64(c.lookbackWindow*hoursPerDay))
}

func (c *Curve) at(timeOut, window float64) float64 {
	clamped := math.Min(math.Max(timeOut, 0), window)
	t := clamped / window

	m := math.Exp(c.steepness * (1 - t))
	return Clamp(m)
}

// Clamp bounds m to [MinMultiplier, MaxMultiplier].
func Clamp(m float64) float64 {
	if math.IsNaN(m) || m < MinMultiplier {
		return MinMultiplier
	}
	if m > MaxMultiplier {
		return MaxMultiplier
	}
	return m
}

// Input is the argument set for Multiplier. HoursOut is optional; hourly
// normalization is used only when UseHourlyGranularity is set and HoursOut
// is supplied.
type Input struct {
	DaysOut              int
	HoursOut             *int
	Steepness            float64
	LookbackWindow       int
	UseHourlyGranularity bool
}

// Multiplier computes the clamped urgency multiplier for in.
func Multiplier(in Input) (float64, error) {
	c, err := NewCurve(in.Steepness, in.LookbackWindow)
	if err != nil {
		return 0, err
	}
	if in.UseHourlyGranularity && in.HoursOut != nil {
		return c.AtHours(*in.HoursOut), nil
	}
	return c.AtDays(in.DaysOut), nil
}
