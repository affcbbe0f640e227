// Package config loads service configuration from an optional config.env file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds our loaded configuration.
type Config struct {
	ListenAddr        string        `mapstructure:"LISTEN_ADDR"`
	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DSN               string        `mapstructure:"DSN"`
	WebhookSecret     string        `mapstructure:"WEBHOOK_SECRET"`
	SessionSecret     string        `mapstructure:"SESSION_SECRET"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	RequireSession    bool          `mapstructure:"REQUIRE_SESSION"`
	AdminFingerprints []string      `mapstructure:"ADMIN_FINGERPRINTS"`
	AdminToken        string        `mapstructure:"ADMIN_TOKEN"`
	StoreTimeout      time.Duration `mapstructure:"STORE_TIMEOUT"`
	InitialLifetime   time.Duration `mapstructure:"INITIAL_LIFETIME"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogDev            bool          `mapstructure:"LOG_DEV"`
	GinMode           string        `mapstructure:"GIN_MODE"`
}

var defaults = map[string]any{
	"LISTEN_ADDR":        ":8080",
	"DB_DRIVER":          "pgx",
	"DSN":                "",
	"WEBHOOK_SECRET":     "",
	"SESSION_SECRET":     "",
	"SESSION_TTL":        "24h",
	"REQUIRE_SESSION":    false,
	"ADMIN_FINGERPRINTS": "",
	"ADMIN_TOKEN":        "",
	"STORE_TIMEOUT":      "5s",
	"INITIAL_LIFETIME":   "168h",
	"CORS_ORIGINS":       "*",
	"LOG_LEVEL":          "info",
	"LOG_DEV":            false,
	"GIN_MODE":           "release",
}

// Load reads config.env from dir when present and lets environment variables
// override it. A missing file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults make env-only keys visible to Unmarshal.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.AdminFingerprints = cleanList(cfg.AdminFingerprints)
	cfg.CORSOrigins = cleanList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// minAdminTokenLen keeps the operator admin token out of guessing range.
const minAdminTokenLen = 16

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	switch {
	case c.DSN == "":
		return errors.New("config: DSN is required")
	case c.DBDriver != "pgx" && c.DBDriver != "sqlite":
		return fmt.Errorf("config: DB_DRIVER must be pgx or sqlite, got %q", c.DBDriver)
	case c.WebhookSecret == "":
		return errors.New("config: WEBHOOK_SECRET is required")
	case c.SessionSecret == "":
		return errors.New("config: SESSION_SECRET is required")
	case c.SessionTTL <= 0:
		return errors.New("config: SESSION_TTL must be positive")
	case c.StoreTimeout <= 0:
		return errors.New("config: STORE_TIMEOUT must be positive")
	case c.InitialLifetime <= 0:
		return errors.New("config: INITIAL_LIFETIME must be positive")
	case c.AdminToken != "" && len(c.AdminToken) < minAdminTokenLen:
		return fmt.Errorf("config: ADMIN_TOKEN must be at least %d characters", minAdminTokenLen)
	}
	return nil
}

// cleanList splits comma-joined entries, trims them and drops blanks.
func cleanList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
