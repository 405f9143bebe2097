package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
markets:
  - Copper
  - Nickel

refresh_interval: 5m

alerting:
  warn_threshold: 1.5
  critical_threshold: 2.0
  suppression_window: 1h
  max_log_entries: 100

generator:
  history_days: 91
  retain_prior: 60
  retain_new: 30

storage:
  db_path: "./data/test.db"

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

logging:
  level: "info"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if len(cfg.Markets) != 2 {
		t.Errorf("markets = %v, want 2 entries", cfg.Markets)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("refresh_interval = %v, want 5m", cfg.RefreshInterval)
	}
	if cfg.Alerting.WarnThreshold != 1.5 || cfg.Alerting.CriticalThreshold != 2.0 {
		t.Errorf("thresholds = %v / %v", cfg.Alerting.WarnThreshold, cfg.Alerting.CriticalThreshold)
	}
	if cfg.Alerting.SuppressionWindow != time.Hour {
		t.Errorf("suppression_window = %v, want 1h", cfg.Alerting.SuppressionWindow)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken != "test_token" {
		t.Errorf("telegram config not loaded: %+v", cfg.Telegram)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	if len(cfg.Markets) != 6 {
		t.Errorf("default markets = %v, want the 6 built-in markets", cfg.Markets)
	}
	if cfg.RefreshInterval != 300*time.Second {
		t.Errorf("default refresh_interval = %v, want 300s", cfg.RefreshInterval)
	}
	if cfg.Alerting.WarnThreshold != 1.5 || cfg.Alerting.CriticalThreshold != 2.0 {
		t.Errorf("default thresholds = %v / %v, want 1.5 / 2.0",
			cfg.Alerting.WarnThreshold, cfg.Alerting.CriticalThreshold)
	}
	if cfg.Alerting.MaxLogEntries != 100 {
		t.Errorf("default max_log_entries = %d, want 100", cfg.Alerting.MaxLogEntries)
	}
	if cfg.Generator.HistoryDays != 91 || cfg.Generator.RetainPrior != 60 || cfg.Generator.RetainNew != 30 {
		t.Errorf("default generator config = %+v", cfg.Generator)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want file override debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	path := writeConfig(t, `
alerting:
  warn_threshold: 2.5
  critical_threshold: 2.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when warn threshold exceeds critical threshold")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty markets", "markets: []\n"},
		{"tiny refresh interval", "refresh_interval: 500ms\n"},
		{"equal thresholds", "alerting:\n  warn_threshold: 2.0\n  critical_threshold: 2.0\n"},
		{"zero log cap", "alerting:\n  max_log_entries: 0\n"},
		{"one-day history", "generator:\n  history_days: 1\n"},
		{"telegram without token", "telegram:\n  enabled: true\n  chat_id: \"12345\"\n"},
		{"advisor without key", "advisor:\n  enabled: true\n"},
		{"bogus log level", "logging:\n  level: verbose\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
