package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/urgency-engine/internal/config"
	"github.com/atmx/urgency-engine/internal/engine"
	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/store"
)

// durableStore is a backend that owns a schema.
type durableStore interface {
	store.Store
	Migrate(ctx context.Context) error
	SavePricingConfig(ctx context.Context, cfg model.PricingConfig) error
	SaveDemandConfig(ctx context.Context, cfg model.MarketDemandConfig) error
}

// openPrimary opens the source-of-truth backend: PostgreSQL when
// DATABASE_URL is set, otherwise SQLite when SQLITE_PATH is set. It
// returns nil when neither is configured.
func openPrimary(ctx context.Context, cfg config.StorageConfig) (durableStore, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		return store.NewPostgresStore(pool), pool.Close, nil

	case cfg.SQLitePath != "":
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened SQLite store", "path", cfg.SQLitePath)
		return st, func() { st.Close() }, nil
	}
	return nil, func() {}, nil
}

// openStore returns the store the engine runs on, fronted by Redis when
// REDIS_URL is set.
func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, func(), error) {
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	primary, closePrimary, err := openPrimary(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup = append(cleanup, closePrimary)

	var st store.Store
	if primary != nil {
		st = primary
	} else {
		slog.Warn("no DATABASE_URL or SQLITE_PATH set, using in-memory store (data will not persist)")
		mem := store.NewMemoryStore()
		mem.SetPricingConfig(engine.DefaultPricingConfig())
		st = mem
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.ConfigCacheTTL.Duration())
		slog.Info("Redis cache enabled")
	}
	return st, closeAll, nil
}

// seedDefaults writes the built-in pricing and demand rows that are not
// stored yet. Existing rows are left untouched.
func seedDefaults(ctx context.Context, st durableStore, configKey string) error {
	if _, err := st.GetPricingConfig(ctx, configKey); errors.Is(err, store.ErrNotFound) {
		pc := engine.DefaultPricingConfig()
		pc.Key = configKey
		if err := st.SavePricingConfig(ctx, pc); err != nil {
			return fmt.Errorf("seed pricing config %s: %w", configKey, err)
		}
		slog.Info("seeded pricing config", "key", configKey)
	} else if err != nil {
		return err
	}

	for _, profile := range []string{engine.DefaultProfile, "resort"} {
		_, err := st.GetDemandConfig(ctx, profile)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := st.SaveDemandConfig(ctx, engine.DefaultDemandConfig(profile)); err != nil {
			return fmt.Errorf("seed demand config %s: %w", profile, err)
		}
		slog.Info("seeded demand config", "profile", profile)
	}
	return nil
}
