package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/timeutil"
)

// GormStore implements Store on any gorm dialect. The server uses it with
// SQLite for single-node deployments that have no PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path and
// migrates it.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := NewGormStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// --- Row models ---

type quoteRow struct {
	CacheKey     string    `gorm:"primaryKey"`
	TargetDate   time.Time `gorm:"index;not null"`
	UrgencyLevel string    `gorm:"not null"`
	CurrentPrice string    `gorm:"not null"`
	Pricing      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"index;not null"`
}

func (quoteRow) TableName() string { return "urgency_pricing_cache" }

type pricingConfigRow struct {
	ConfigKey          string  `gorm:"primaryKey"`
	Steepness          float64 `gorm:"not null"`
	LookbackWindowDays int     `gorm:"not null"`
	UpdatedAt          time.Time
}

func (pricingConfigRow) TableName() string { return "urgency_pricing_config" }

type demandConfigRow struct {
	Profile        string  `gorm:"primaryKey"`
	BaseMultiplier float64 `gorm:"not null"`
	DayOfWeek      string  `gorm:"type:text;not null"`
	Seasonal       string  `gorm:"type:text;not null"`
	UpdatedAt      time.Time
}

func (demandConfigRow) TableName() string { return "market_demand_config" }

type eventRow struct {
	ID          string    `gorm:"primaryKey"`
	Name        string    `gorm:"not null"`
	StartDate   time.Time `gorm:"index;not null"`
	EndDate     time.Time `gorm:"index;not null"`
	Multiplier  float64   `gorm:"not null"`
	Cities      string    `gorm:"type:text;not null"`
	ImpactLevel string    `gorm:"not null"`
	IsActive    bool      `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (eventRow) TableName() string { return "event_multipliers" }

// Migrate creates the tables and seeds the default pricing config row.
func (s *GormStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&quoteRow{}, &pricingConfigRow{}, &demandConfigRow{}, &eventRow{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	seed := pricingConfigRow{ConfigKey: "default", Steepness: 2.0, LookbackWindowDays: 90}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error
}

// SavePricingConfig upserts a pricing config row.
func (s *GormStore) SavePricingConfig(ctx context.Context, cfg model.PricingConfig) error {
	row := pricingConfigRow{ConfigKey: cfg.Key, Steepness: cfg.Steepness, LookbackWindowDays: cfg.LookbackWindow}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// SaveDemandConfig upserts a demand config row.
func (s *GormStore) SaveDemandConfig(ctx context.Context, cfg model.MarketDemandConfig) error {
	dow, err := json.Marshal(cfg.DayOfWeek)
	if err != nil {
		return err
	}
	seasonal, err := json.Marshal(cfg.Seasonal)
	if err != nil {
		return err
	}
	row := demandConfigRow{
		Profile:        cfg.Profile,
		BaseMultiplier: cfg.BaseMultiplier,
		DayOfWeek:      string(dow),
		Seasonal:       string(seasonal),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Quotes ---

func (s *GormStore) GetQuote(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	var row quoteRow
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, now.UTC()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", key, err)
	}

	e := model.CacheEntry{
		Key:          row.CacheKey,
		TargetDate:   row.TargetDate.UTC(),
		UrgencyLevel: model.UrgencyLevel(row.UrgencyLevel),
		CreatedAt:    row.CreatedAt.UTC(),
		ExpiresAt:    row.ExpiresAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Pricing), &e.Pricing); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", key, err)
	}
	return &e, nil
}

func (s *GormStore) PutQuote(ctx context.Context, e *model.CacheEntry) error {
	payload, err := json.Marshal(e.Pricing)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", e.Key, err)
	}
	row := quoteRow{
		CacheKey:     e.Key,
		TargetDate:   timeutil.StartOfDay(e.TargetDate),
		UrgencyLevel: string(e.UrgencyLevel),
		CurrentPrice: e.Pricing.CurrentPrice.String(),
		Pricing:      string(payload),
		CreatedAt:    e.CreatedAt.UTC(),
		ExpiresAt:    e.ExpiresAt.UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) DeleteQuotesInRange(ctx context.Context, start, end time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("target_date >= ? AND target_date <= ?", timeutil.StartOfDay(start), timeutil.StartOfDay(end)).
		Delete(&quoteRow{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) CountQuotesByLevel(ctx context.Context, now time.Time) (map[model.UrgencyLevel]int, error) {
	var rows []struct {
		UrgencyLevel string
		N            int
	}
	err := s.db.WithContext(ctx).Model(&quoteRow{}).
		Select("urgency_level, COUNT(*) AS n").
		Where("expires_at > ?", now.UTC()).
		Group("urgency_level").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.UrgencyLevel]int, len(rows))
	for _, r := range rows {
		counts[model.UrgencyLevel(r.UrgencyLevel)] = r.N
	}
	return counts, nil
}

// --- Config ---

func (s *GormStore) GetPricingConfig(ctx context.Context, key string) (*model.PricingConfig, error) {
	var row pricingConfigRow
	err := s.db.WithContext(ctx).Where("config_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("pricing config %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pricing config %s: %w", key, err)
	}
	return &model.PricingConfig{Key: row.ConfigKey, Steepness: row.Steepness, LookbackWindow: row.LookbackWindowDays}, nil
}

func (s *GormStore) GetDemandConfig(ctx context.Context, profile string) (*model.MarketDemandConfig, error) {
	var row demandConfigRow
	err := s.db.WithContext(ctx).Where("profile = ?", profile).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("demand config %s: %w", profile, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get demand config %s: %w", profile, err)
	}

	cfg := model.MarketDemandConfig{Profile: row.Profile, BaseMultiplier: row.BaseMultiplier}
	if err := json.Unmarshal([]byte(row.DayOfWeek), &cfg.DayOfWeek); err != nil {
		return nil, fmt.Errorf("decode day_of_week for %s: %w", profile, err)
	}
	if cfg.Seasonal, err = decodeSeasonal([]byte(row.Seasonal)); err != nil {
		return nil, fmt.Errorf("decode seasonal for %s: %w", profile, err)
	}
	return &cfg, nil
}

// --- Events ---

func (s *GormStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.EventMultiplier, error) {
	q := s.db.WithContext(ctx).Model(&eventRow{})
	if !f.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if !f.End.IsZero() {
		q = q.Where("start_date <= ?", timeutil.StartOfDay(f.End))
	}
	if !f.Start.IsZero() {
		q = q.Where("end_date >= ?", timeutil.StartOfDay(f.Start))
	}

	var rows []eventRow
	if err := q.Order("start_date, id").Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]model.EventMultiplier, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toModel()
		if err != nil {
			return nil, err
		}
		// Cities are a JSON column; filter them here.
		if matchesFilter(ev, f) {
			events = append(events, *ev)
		}
	}
	return events, nil
}

func (s *GormStore) GetEvent(ctx context.Context, id string) (*model.EventMultiplier, error) {
	var row eventRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return row.toModel()
}

func (s *GormStore) InsertEvent(ctx context.Context, ev *model.EventMultiplier) error {
	cities, err := json.Marshal(ev.Cities)
	if err != nil {
		return err
	}
	if ev.Cities == nil {
		cities = []byte("[]")
	}
	row := eventRow{
		ID:          ev.ID,
		Name:        ev.Name,
		StartDate:   timeutil.StartOfDay(ev.StartDate),
		EndDate:     timeutil.StartOfDay(ev.EndDate),
		Multiplier:  ev.Multiplier,
		Cities:      string(cities),
		ImpactLevel: ev.ImpactLevel,
		IsActive:    ev.Active,
		CreatedAt:   ev.CreatedAt.UTC(),
		UpdatedAt:   ev.UpdatedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) DeactivateEvent(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "updated_at": at.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r eventRow) toModel() (*model.EventMultiplier, error) {
	ev := &model.EventMultiplier{
		ID:          r.ID,
		Name:        r.Name,
		StartDate:   r.StartDate.UTC(),
		EndDate:     r.EndDate.UTC(),
		Multiplier:  r.Multiplier,
		ImpactLevel: r.ImpactLevel,
		Active:      r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(r.Cities), &ev.Cities); err != nil {
		return nil, fmt.Errorf("decode cities for event %s: %w", r.ID, err)
	}
	return ev, nil
}
