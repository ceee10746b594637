// Package config loads and validates bot config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// TelegramBotToken is the Bot API token; required by cmd/bot, unused by cmd/migrate.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	// AdminIDs is the raw list of operator chat ids separated by ';' or ','. Use AdminChatIDs.
	AdminIDs string `mapstructure:"ADMIN_IDS"`
	// DatabaseURL is the Postgres DSN. Required when StorageDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StorageDriver selects the registration store: "postgres" (default) or "memory" for local runs.
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	// Capacity is the maximum number of confirmed attendees.
	Capacity int `mapstructure:"CAPACITY"`
	// RSVPWindowHours is how long an RSVP invitation stays open; advisory, stored as the deadline.
	RSVPWindowHours int `mapstructure:"RSVP_WINDOW_HOURS"`
	// AffiliationLabel is the institution recorded for affiliated participants.
	AffiliationLabel string `mapstructure:"AFFILIATION_LABEL"`
	// DialogStateTTL bounds how long an abandoned registration dialog is remembered (e.g. "24h").
	DialogStateTTL string `mapstructure:"DIALOG_STATE_TTL"`
	// UpdateWorkers is the number of update-processing workers; updates of one chat always share a worker.
	UpdateWorkers int `mapstructure:"UPDATE_WORKERS"`
	// HealthAddr is the address of the gRPC health endpoint (e.g. :8081). Empty disables it.
	HealthAddr string `mapstructure:"HEALTH_ADDR"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. http://localhost:4317). Empty means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as service.name on all telemetry.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("ADMIN_IDS", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("CAPACITY", 80)
	v.SetDefault("RSVP_WINDOW_HOURS", 48)
	v.SetDefault("AFFILIATION_LABEL", "НИЯУ МИФИ")
	v.SetDefault("DIALOG_STATE_TTL", "24h")
	v.SetDefault("UPDATE_WORKERS", 8)
	v.SetDefault("HEALTH_ADDR", ":8081")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "rsvp-bot")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if cfg.StorageDriver != StorageDriverPostgres && cfg.StorageDriver != StorageDriverMemory {
		return nil, fmt.Errorf("config: STORAGE_DRIVER must be %q or %q, got %q", StorageDriverPostgres, StorageDriverMemory, cfg.StorageDriver)
	}
	if cfg.Capacity <= 0 {
		return nil, errors.New("config: CAPACITY must be positive")
	}
	if cfg.RSVPWindowHours <= 0 {
		return nil, errors.New("config: RSVP_WINDOW_HOURS must be positive")
	}
	if cfg.UpdateWorkers <= 0 {
		cfg.UpdateWorkers = 8
	}
	if _, err := cfg.AdminChatIDs(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// AdminChatIDs parses AdminIDs. Empty entries are skipped; a non-numeric entry is an error.
func (c *Config) AdminChatIDs() ([]int64, error) {
	if c == nil || strings.TrimSpace(c.AdminIDs) == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(c.AdminIDs, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: ADMIN_IDS entry %q is not a chat id", s)
		}
		out = append(out, id)
	}
	return out, nil
}

// RSVPWindow returns RSVPWindowHours as a duration.
func (c *Config) RSVPWindow() time.Duration {
	return time.Duration(c.RSVPWindowHours) * time.Hour
}

// StateTTL parses DialogStateTTL. Returns 24h if unset or invalid.
func (c *Config) StateTTL() time.Duration {
	d, err := time.ParseDuration(c.DialogStateTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// SlogLevel maps LogLevel to a slog.Level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
