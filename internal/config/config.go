// Package config loads the service configuration: built-in defaults, then
// an optional YAML file (with ${VAR} expansion), then environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Pricing PricingConfig `yaml:"pricing"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            string   `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the store backend. DatabaseURL wins over
// SQLitePath; with neither set the in-memory store is used.
type StorageConfig struct {
	DatabaseURL    string   `yaml:"database_url"`
	RedisURL       string   `yaml:"redis_url"`
	SQLitePath     string   `yaml:"sqlite_path"`
	ConfigCacheTTL Duration `yaml:"config_cache_ttl"`
}

// PricingConfig names the stored configuration the engine reads.
type PricingConfig struct {
	ConfigKey   string `yaml:"config_key"`
	Profile     string `yaml:"profile"`
	DefaultCity string `yaml:"default_city"`
}

// AuthConfig holds bcrypt hashes of the admin tokens allowed to change
// event multipliers.
type AuthConfig struct {
	AdminTokenHashes []string `yaml:"admin_token_hashes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			RequestTimeout:  Duration(30 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Storage: StorageConfig{
			ConfigCacheTTL: Duration(30 * time.Second),
		},
		Pricing: PricingConfig{
			ConfigKey: "default",
			Profile:   "urban",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("ADMIN_TOKEN_HASHES"); v != "" {
		c.Auth.AdminTokenHashes = nil
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				c.Auth.AdminTokenHashes = append(c.Auth.AdminTokenHashes, h)
			}
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PRICING_PROFILE"); v != "" {
		c.Pricing.Profile = v
	}
	if v := os.Getenv("PRICING_CONFIG_KEY"); v != "" {
		c.Pricing.ConfigKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %q", c.Server.Port)
	}
	for name, d := range map[string]Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.request_timeout":  c.Server.RequestTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Storage.ConfigCacheTTL <= 0 {
		return errors.New("storage.config_cache_ttl must be positive")
	}
	if c.Pricing.ConfigKey == "" {
		return errors.New("pricing.config_key is required")
	}
	if c.Pricing.Profile == "" {
		return errors.New("pricing.profile is required")
	}
	for i, h := range c.Auth.AdminTokenHashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return fmt.Errorf("auth.admin_token_hashes[%d] is not a bcrypt hash: %w", i, err)
		}
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if f := c.Logging.Format; f != "json" && f != "text" {
		return fmt.Errorf("logging.format must be json or text, got %q", f)
	}
	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
