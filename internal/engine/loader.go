package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/atmx/urgency-engine/internal/metrics"
	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/store"
)

// Built-in configuration used whenever the config store cannot answer.
const (
	DefaultConfigKey      = "default"
	DefaultProfile        = "urban"
	DefaultSteepness      = 2.0
	DefaultLookbackWindow = 90
)

// DefaultPricingConfig returns the built-in curve parameters.
func DefaultPricingConfig() model.PricingConfig {
	return model.PricingConfig{
		Key:            DefaultConfigKey,
		Steepness:      DefaultSteepness,
		LookbackWindow: DefaultLookbackWindow,
	}
}

// DefaultDemandConfig returns the built-in demand tables for profile.
// Unknown profiles get the urban table. Each call returns fresh maps.
func DefaultDemandConfig(profile string) model.MarketDemandConfig {
	switch profile {
	case "resort":
		return model.MarketDemandConfig{
			Profile:        "resort",
			BaseMultiplier: 1.0,
			DayOfWeek: map[string]float64{
				"monday":    0.85,
				"tuesday":   0.85,
				"wednesday": 0.9,
				"thursday":  1.0,
				"friday":    1.25,
				"saturday":  1.35,
				"sunday":    1.1,
			},
			Seasonal: map[int]float64{
				0: 1.2, 1: 1.2, 2: 1.1, 3: 0.9, 4: 0.85, 5: 1.15,
				6: 1.35, 7: 1.3, 8: 0.95, 9: 0.85, 10: 0.9, 11: 1.25,
			},
		}
	default:
		return model.MarketDemandConfig{
			Profile:        DefaultProfile,
			BaseMultiplier: 1.0,
			DayOfWeek: map[string]float64{
				"monday":    1.0,
				"tuesday":   1.0,
				"wednesday": 1.0,
				"thursday":  1.05,
				"friday":    1.15,
				"saturday":  1.2,
				"sunday":    0.95,
			},
			Seasonal: map[int]float64{
				0: 0.9, 1: 0.9, 2: 1.0, 3: 1.05, 4: 1.1, 5: 1.15,
				6: 1.2, 7: 1.15, 8: 1.1, 9: 1.05, 10: 0.95, 11: 1.1,
			},
		}
	}
}

// ConfigLoader reads pricing and demand configuration from the config
// store. It never fails: any fetch error falls back to the built-in
// tables, is logged, and is counted in urgency_config_fallbacks_total.
type ConfigLoader struct {
	store     store.ConfigStore
	configKey string
}

// NewConfigLoader creates a loader reading the pricing row named configKey.
func NewConfigLoader(st store.ConfigStore, configKey string) *ConfigLoader {
	if configKey == "" {
		configKey = DefaultConfigKey
	}
	return &ConfigLoader{store: st, configKey: configKey}
}

// PricingConfig returns the configured curve parameters, or the defaults.
// A stored row with a non-positive steepness or window is treated as
// unusable.
func (l *ConfigLoader) PricingConfig(ctx context.Context) model.PricingConfig {
	cfg, err := l.store.GetPricingConfig(ctx, l.configKey)
	if err != nil {
		fallback("pricing", l.configKey, err)
		return DefaultPricingConfig()
	}
	if !(cfg.Steepness > 0) || math.IsInf(cfg.Steepness, 0) || cfg.LookbackWindow <= 0 {
		slog.Warn("stored pricing config invalid, using defaults",
			"key", l.configKey,
			"steepness", cfg.Steepness,
			"lookback_window", cfg.LookbackWindow,
		)
		metrics.ConfigFallbacks.WithLabelValues("pricing").Inc()
		return DefaultPricingConfig()
	}
	return *cfg
}

// DemandConfig returns the demand tables for profile, or the defaults.
func (l *ConfigLoader) DemandConfig(ctx context.Context, profile string) model.MarketDemandConfig {
	if profile == "" {
		profile = DefaultProfile
	}
	cfg, err := l.store.GetDemandConfig(ctx, profile)
	if err != nil {
		fallback("demand", profile, err)
		return DefaultDemandConfig(profile)
	}
	if !(cfg.BaseMultiplier > 0) {
		cfg.BaseMultiplier = 1.0
	}
	return *cfg
}

// ActiveEvents returns active events overlapping [start, end] for city.
// On failure no events apply.
func (l *ConfigLoader) ActiveEvents(ctx context.Context, start, end time.Time, city string) []model.EventMultiplier {
	events, err := l.store.ListEvents(ctx, model.EventFilter{Start: start, End: end, City: city})
	if err != nil {
		fallback("events", city, err)
		return nil
	}
	return events
}

func fallback(kind, key string, err error) {
	metrics.ConfigFallbacks.WithLabelValues(kind).Inc()
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("config not stored, using defaults", "kind", kind, "key", key)
		return
	}
	slog.Warn("config load failed, using defaults", "kind", kind, "key", key, "err", err)
}
