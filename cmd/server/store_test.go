package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/urgency-engine/internal/config"
	"github.com/atmx/urgency-engine/internal/engine"
	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/store"
)

func TestOpenStore_MemoryFallback(t *testing.T) {
	st, cleanup, err := openStore(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	defer cleanup()

	_, ok := st.(*store.MemoryStore)
	assert.True(t, ok, "got %T", st)

	cfg, err := st.GetPricingConfig(context.Background(), engine.DefaultConfigKey)
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPricingConfig(), *cfg)
}

func TestOpenStore_InvalidRedisURL(t *testing.T) {
	_, _, err := openStore(context.Background(), config.StorageConfig{RedisURL: "not a url"})
	assert.Error(t, err)
}

func TestMigrateAndSeed_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "urgency.db")}

	st, cleanup, err := openPrimary(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, st)

	require.NoError(t, st.Migrate(ctx))

	// An operator-tuned row survives seeding.
	tuned := engine.DefaultDemandConfig("resort")
	tuned.BaseMultiplier = 1.4
	require.NoError(t, st.SaveDemandConfig(ctx, tuned))

	require.NoError(t, seedDefaults(ctx, st, "summer"))
	require.NoError(t, seedDefaults(ctx, st, "summer"))

	pc, err := st.GetPricingConfig(ctx, "summer")
	require.NoError(t, err)
	assert.Equal(t, model.PricingConfig{Key: "summer", Steepness: engine.DefaultSteepness, LookbackWindow: engine.DefaultLookbackWindow}, *pc)

	urban, err := st.GetDemandConfig(ctx, engine.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultDemandConfig(engine.DefaultProfile), *urban)

	resort, err := st.GetDemandConfig(ctx, "resort")
	require.NoError(t, err)
	assert.Equal(t, 1.4, resort.BaseMultiplier)
}

func TestOpenPrimary_NoneConfigured(t *testing.T) {
	st, cleanup, err := openPrimary(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, st)
}
