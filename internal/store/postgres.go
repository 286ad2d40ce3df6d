package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/urgency-engine/internal/model"
)

//go:embed schema.sql
var postgresSchema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Quote snapshots are stored as JSONB; prices are mirrored into NUMERIC
// columns for inspection.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema and seeds the default pricing config row.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Quotes ---

func (s *PostgresStore) GetQuote(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var level string
	var payload []byte

	err := s.pool.QueryRow(ctx,
		`SELECT cache_key, target_date, urgency_level, pricing, created_at, expires_at
		 FROM urgency_pricing_cache
		 WHERE cache_key = $1 AND expires_at > $2`, key, now).
		Scan(&e.Key, &e.TargetDate, &level, &payload, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", key, err)
	}

	if err := json.Unmarshal(payload, &e.Pricing); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", key, err)
	}
	e.UrgencyLevel = model.UrgencyLevel(level)
	return &e, nil
}

func (s *PostgresStore) PutQuote(ctx context.Context, e *model.CacheEntry) error {
	payload, err := json.Marshal(e.Pricing)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", e.Key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO urgency_pricing_cache
		     (cache_key, target_date, urgency_level, current_price, pricing, created_at, expires_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)
		 ON CONFLICT (cache_key) DO UPDATE
		 SET target_date = EXCLUDED.target_date,
		     urgency_level = EXCLUDED.urgency_level,
		     current_price = EXCLUDED.current_price,
		     pricing = EXCLUDED.pricing,
		     created_at = EXCLUDED.created_at,
		     expires_at = EXCLUDED.expires_at`,
		e.Key, e.TargetDate, string(e.UrgencyLevel), e.Pricing.CurrentPrice.String(),
		payload, e.CreatedAt, e.ExpiresAt,
	)
	return err
}

func (s *PostgresStore) DeleteQuotesInRange(ctx context.Context, start, end time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM urgency_pricing_cache WHERE target_date BETWEEN $1::DATE AND $2::DATE`,
		start, end)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountQuotesByLevel(ctx context.Context, now time.Time) (map[model.UrgencyLevel]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT urgency_level, COUNT(*)
		 FROM urgency_pricing_cache
		 WHERE expires_at > $1
		 GROUP BY urgency_level`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.UrgencyLevel]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[model.UrgencyLevel(level)] = n
	}
	return counts, rows.Err()
}

// --- Config ---

func (s *PostgresStore) GetPricingConfig(ctx context.Context, key string) (*model.PricingConfig, error) {
	var cfg model.PricingConfig
	err := s.pool.QueryRow(ctx,
		`SELECT config_key, steepness, lookback_window_days
		 FROM urgency_pricing_config WHERE config_key = $1`, key).
		Scan(&cfg.Key, &cfg.Steepness, &cfg.LookbackWindow)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pricing config %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pricing config %s: %w", key, err)
	}
	return &cfg, nil
}

func (s *PostgresStore) GetDemandConfig(ctx context.Context, profile string) (*model.MarketDemandConfig, error) {
	cfg := model.MarketDemandConfig{Profile: profile}
	var dow, seasonal []byte

	err := s.pool.QueryRow(ctx,
		`SELECT base_multiplier, day_of_week, seasonal
		 FROM market_demand_config WHERE profile = $1`, profile).
		Scan(&cfg.BaseMultiplier, &dow, &seasonal)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("demand config %s: %w", profile, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get demand config %s: %w", profile, err)
	}

	if err := json.Unmarshal(dow, &cfg.DayOfWeek); err != nil {
		return nil, fmt.Errorf("decode day_of_week for %s: %w", profile, err)
	}
	cfg.Seasonal, err = decodeSeasonal(seasonal)
	if err != nil {
		return nil, fmt.Errorf("decode seasonal for %s: %w", profile, err)
	}
	return &cfg, nil
}

// SavePricingConfig upserts a pricing config row.
func (s *PostgresStore) SavePricingConfig(ctx context.Context, cfg model.PricingConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO urgency_pricing_config (config_key, steepness, lookback_window_days, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (config_key) DO UPDATE
		 SET steepness = EXCLUDED.steepness,
		     lookback_window_days = EXCLUDED.lookback_window_days,
		     updated_at = NOW()`,
		cfg.Key, cfg.Steepness, cfg.LookbackWindow)
	return err
}

// SaveDemandConfig upserts a demand config row.
func (s *PostgresStore) SaveDemandConfig(ctx context.Context, cfg model.MarketDemandConfig) error {
	dow, err := json.Marshal(cfg.DayOfWeek)
	if err != nil {
		return err
	}
	seasonal, err := json.Marshal(cfg.Seasonal)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO market_demand_config (profile, base_multiplier, day_of_week, seasonal, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (profile) DO UPDATE
		 SET base_multiplier = EXCLUDED.base_multiplier,
		     day_of_week = EXCLUDED.day_of_week,
		     seasonal = EXCLUDED.seasonal,
		     updated_at = NOW()`,
		cfg.Profile, cfg.BaseMultiplier, dow, seasonal)
	return err
}

// decodeSeasonal reads a JSON object keyed by month index ("0".."11").
func decodeSeasonal(data []byte) (map[int]float64, error) {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(raw))
	for k, v := range raw {
		month, err := strconv.Atoi(k)
		if err != nil || month < 0 || month > 11 {
			return nil, fmt.Errorf("invalid month index %q", k)
		}
		out[month] = v
	}
	return out, nil
}

// --- Events ---

const eventColumns = `id::TEXT, name, start_date, end_date, multiplier, cities,
		impact_level, is_active, created_at, updated_at`

func (s *PostgresStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.EventMultiplier, error) {
	query := `SELECT ` + eventColumns + ` FROM event_multipliers WHERE TRUE`
	var args []any

	if !f.IncludeInactive {
		query += ` AND is_active`
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		query += fmt.Sprintf(` AND start_date <= $%d::DATE`, len(args))
	}
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		query += fmt.Sprintf(` AND end_date >= $%d::DATE`, len(args))
	}
	if f.City != "" {
		args = append(args, f.City)
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM unnest(cities) c WHERE lower(c) = lower($%d))`, len(args))
	}
	query += ` ORDER BY start_date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.EventMultiplier
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.EventMultiplier, error) {
	eid, err := eventUUID(id)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM event_multipliers WHERE id = $1::UUID`, eid.String())
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.EventMultiplier) error {
	cities := ev.Cities
	if cities == nil {
		cities = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_multipliers
		     (id, name, start_date, end_date, multiplier, cities, impact_level, is_active, created_at, updated_at)
		 VALUES ($1::UUID, $2, $3::DATE, $4::DATE, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.Name, ev.StartDate, ev.EndDate, ev.Multiplier, cities,
		ev.ImpactLevel, ev.Active, ev.CreatedAt, ev.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) DeactivateEvent(ctx context.Context, id string, at time.Time) error {
	eid, err := eventUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE event_multipliers SET is_active = FALSE, updated_at = $2 WHERE id = $1::UUID`, eid.String(), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// eventUUID parses an event id. A malformed id cannot name a stored event,
// so it is reported as ErrNotFound rather than reaching the UUID cast.
func eventUUID(id string) (uuid.UUID, error) {
	eid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return eid, nil
}

// scanEvent reads one event row from pgx.Row or pgx.Rows.
func scanEvent(row pgx.Row) (*model.EventMultiplier, error) {
	var ev model.EventMultiplier
	if err := row.Scan(&ev.ID, &ev.Name, &ev.StartDate, &ev.EndDate, &ev.Multiplier, &ev.Cities,
		&ev.ImpactLevel, &ev.Active, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.StartDate = ev.StartDate.UTC()
	ev.EndDate = ev.EndDate.UTC()
	return &ev, nil
}
