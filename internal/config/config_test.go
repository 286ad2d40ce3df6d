package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.Storage.ConfigCacheTTL.Duration())
	assert.Equal(t, "default", cfg.Pricing.ConfigKey)
	assert.Equal(t, "urban", cfg.Pricing.Profile)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
}

func TestLoad_FileWithExpansion(t *testing.T) {
	t.Setenv("URGENCY_TEST_DB", "postgres://localhost/urgency")
	path := writeFile(t, `
server:
  port: "9090"
  request_timeout: 5s
storage:
  database_url: ${URGENCY_TEST_DB}
  config_cache_ttl: 1m
pricing:
  profile: resort
  default_city: Aspen
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout.Duration())
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Duration(), "unset keys keep defaults")
	assert.Equal(t, "postgres://localhost/urgency", cfg.Storage.DatabaseURL)
	assert.Equal(t, time.Minute, cfg.Storage.ConfigCacheTTL.Duration())
	assert.Equal(t, "resort", cfg.Pricing.Profile)
	assert.Equal(t, "Aspen", cfg.Pricing.DefaultCity)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Setenv("PORT", "7070")
	t.Setenv("SQLITE_PATH", "/tmp/urgency.db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PRICING_PROFILE", "resort")
	t.Setenv("PRICING_CONFIG_KEY", "summer")
	t.Setenv("ADMIN_TOKEN_HASHES", " "+string(hash)+" ,")

	cfg, err := Load(writeFile(t, "server:\n  port: \"9090\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "/tmp/urgency.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "resort", cfg.Pricing.Profile)
	assert.Equal(t, "summer", cfg.Pricing.ConfigKey)
	assert.Equal(t, []string{string(hash)}, cfg.Auth.AdminTokenHashes)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server:\n  read_timeout: soon\n"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"negative cache ttl", func(c *Config) { c.Storage.ConfigCacheTTL = Duration(-time.Second) }},
		{"zero cache ttl", func(c *Config) { c.Storage.ConfigCacheTTL = 0 }},
		{"missing config key", func(c *Config) { c.Pricing.ConfigKey = "" }},
		{"missing profile", func(c *Config) { c.Pricing.Profile = "" }},
		{"plaintext admin token", func(c *Config) { c.Auth.AdminTokenHashes = []string{"letmein"} }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		TTL Duration `yaml:"ttl"`
	}
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"ttl: 2h", 2 * time.Hour},
		{"ttl: 1m30s", 90 * time.Second},
		{"ttl: 45", 45 * time.Second},
		{`ttl: "10"`, 10 * time.Second},
	}
	for _, tt := range tests {
		require.NoError(t, yaml.Unmarshal([]byte(tt.in), &cfg), tt.in)
		assert.Equal(t, tt.want, cfg.TTL.Duration(), tt.in)
	}

	assert.Error(t, yaml.Unmarshal([]byte("ttl: fortnight"), &cfg))
	assert.Error(t, yaml.Unmarshal([]byte("ttl: [1, 2]"), &cfg))
}
