package config

import (
	"testing"
	"time"

	"options-ledger/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"POSTGRES_DSN", "LEDGER_CATEGORIES", "SYNC_PAGE_LIMIT", "SYNC_WINDOW_DAYS",
		"SYNC_SCHEDULE", "REGISTRATION_TIME", "HTTP_ADDR", "BYBIT_ACCOUNT_TYPE", "BYBIT_RECV_WINDOW",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Categories) != 4 || cfg.Categories[3] != domain.CategoryOption {
		t.Errorf("unexpected categories %v", cfg.Categories)
	}
	if cfg.SyncPageLimit != 50 || cfg.SyncWindow() != 7*24*time.Hour {
		t.Errorf("unexpected sync defaults %d/%s", cfg.SyncPageLimit, cfg.SyncWindow())
	}
	if cfg.SyncSchedule != "@every 5m" || cfg.HTTPAddr != ":8080" || cfg.BybitAccountType != "UNIFIED" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.BybitRecvWindow != 5000 {
		t.Errorf("expected recv window 5000, got %d", cfg.BybitRecvWindow)
	}
	if cfg.RegistrationTime != nil {
		t.Errorf("expected no registration time, got %v", cfg.RegistrationTime)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LEDGER_CATEGORIES", "option, linear")
	t.Setenv("SYNC_PAGE_LIMIT", "20")
	t.Setenv("REGISTRATION_TIME", "2024-03-01")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("BYBIT_RECV_WINDOW", "20000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Categories) != 2 || cfg.Categories[0] != domain.CategoryOption {
		t.Errorf("unexpected categories %v", cfg.Categories)
	}
	if cfg.SyncPageLimit != 20 || !cfg.LogPretty || cfg.BybitRecvWindow != 20000 {
		t.Errorf("unexpected overrides %+v", cfg)
	}
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if cfg.RegistrationTime == nil || !cfg.RegistrationTime.Equal(want) {
		t.Errorf("expected registration %s, got %v", want, cfg.RegistrationTime)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"LEDGER_CATEGORIES": "futures",
		"SYNC_PAGE_LIMIT":   "500",
		"SYNC_WINDOW_DAYS":  "30",
		"SYNC_SCHEDULE":     "every five minutes",
		"BYBIT_RECV_WINDOW": "-1",
		"REGISTRATION_TIME": "03/01/2024",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-01T12:30:00+02:00")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)) || got.Location() != time.UTC {
		t.Errorf("unexpected time %s", got)
	}
}
