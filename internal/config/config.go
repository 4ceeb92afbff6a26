// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"options-ledger/internal/domain"
)

// Config holds application configuration
type Config struct {
	PostgresDSN   string // empty runs on in-memory stores
	ClickHouseDSN string // optional daily summary store

	BybitAPIKey      string
	BybitAPISecret   string
	BybitBaseURL     string
	BybitAccountType string
	BybitRecvWindow  int     // milliseconds
	ExchangeRate     float64 // requests per second

	Categories     []domain.Category
	SyncPageLimit  int
	SyncWindowDays int
	SyncSchedule   string

	// RegistrationTime seeds the sync floor on first start. Optional.
	RegistrationTime *time.Time

	HTTPAddr  string
	LogLevel  string
	LogPretty bool
}

// Load reads configuration from environment variables, after loading a
// .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN:    getEnv("CLICKHOUSE_DSN", ""),
		BybitAPIKey:      getEnv("BYBIT_API_KEY", ""),
		BybitAPISecret:   getEnv("BYBIT_API_SECRET", ""),
		BybitBaseURL:     getEnv("BYBIT_BASE_URL", "https://api.bybit.com"),
		BybitAccountType: getEnv("BYBIT_ACCOUNT_TYPE", "UNIFIED"),
		BybitRecvWindow:  getEnvAsInt("BYBIT_RECV_WINDOW", 5000),
		ExchangeRate:     getEnvAsFloat("EXCHANGE_RATE_PER_SEC", 10),
		SyncPageLimit:    getEnvAsInt("SYNC_PAGE_LIMIT", 50),
		SyncWindowDays:   getEnvAsInt("SYNC_WINDOW_DAYS", 7),
		SyncSchedule:     getEnv("SYNC_SCHEDULE", "@every 5m"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", false),
	}

	categories, err := domain.ParseCategories(getEnv("LEDGER_CATEGORIES", "linear,inverse,spot,option"))
	if err != nil {
		return nil, fmt.Errorf("LEDGER_CATEGORIES: %w", err)
	}
	cfg.Categories = categories

	if v := getEnv("REGISTRATION_TIME", ""); v != "" {
		t, err := ParseDate(v)
		if err != nil {
			return nil, fmt.Errorf("REGISTRATION_TIME: %w", err)
		}
		cfg.RegistrationTime = &t
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values.
// Exchange credentials are optional: sync reports them missing at call time.
func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one ledger category is required")
	}
	if c.SyncPageLimit < 1 || c.SyncPageLimit > 50 {
		return fmt.Errorf("SYNC_PAGE_LIMIT must be between 1 and 50, got %d", c.SyncPageLimit)
	}
	if c.SyncWindowDays < 1 || c.SyncWindowDays > 7 {
		return fmt.Errorf("SYNC_WINDOW_DAYS must be between 1 and 7, got %d", c.SyncWindowDays)
	}
	if c.BybitRecvWindow < 1 {
		return fmt.Errorf("BYBIT_RECV_WINDOW must be positive, got %d", c.BybitRecvWindow)
	}
	if c.ExchangeRate < 0 {
		return fmt.Errorf("EXCHANGE_RATE_PER_SEC must not be negative")
	}
	if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
		return fmt.Errorf("SYNC_SCHEDULE %q: %w", c.SyncSchedule, err)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	return nil
}

// SyncWindow returns the forward sync window length.
func (c *Config) SyncWindow() time.Duration {
	return time.Duration(c.SyncWindowDays) * 24 * time.Hour
}

// ParseDate parses an RFC3339 timestamp or a YYYY-MM-DD day (UTC midnight).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected RFC3339 or YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
