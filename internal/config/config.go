// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/rewired-gh/matoracle/internal/models"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Markets         []string        `mapstructure:"markets"`
	RefreshInterval time.Duration   `mapstructure:"refresh_interval"`
	Alerting        AlertingConfig  `mapstructure:"alerting"`
	Generator       GeneratorConfig `mapstructure:"generator"`
	Storage         StorageConfig   `mapstructure:"storage"`
	Telegram        TelegramConfig  `mapstructure:"telegram"`
	Advisor         AdvisorConfig   `mapstructure:"advisor"`
	Logging         LoggingConfig   `mapstructure:"logging"`
}

// AlertingConfig holds classifier thresholds and alert-log policy.
type AlertingConfig struct {
	WarnThreshold     float64       `mapstructure:"warn_threshold"`
	CriticalThreshold float64       `mapstructure:"critical_threshold"`
	SuppressionWindow time.Duration `mapstructure:"suppression_window"`
	MaxLogEntries     int           `mapstructure:"max_log_entries"`
}

// GeneratorConfig holds synthetic-series generation parameters.
type GeneratorConfig struct {
	HistoryDays int   `mapstructure:"history_days"`
	RetainPrior int   `mapstructure:"retain_prior"`
	RetainNew   int   `mapstructure:"retain_new"`
	Seed        int64 `mapstructure:"seed"` // 0 = seed from the clock
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// AdvisorConfig holds the optional commentary-service configuration.
type AdvisorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("MATORACLE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("markets", models.DefaultMarkets)
	v.SetDefault("refresh_interval", "300s")

	v.SetDefault("alerting.warn_threshold", 1.5)
	v.SetDefault("alerting.critical_threshold", 2.0)
	v.SetDefault("alerting.suppression_window", "1h")
	v.SetDefault("alerting.max_log_entries", 100)

	v.SetDefault("generator.history_days", 91)
	v.SetDefault("generator.retain_prior", 60)
	v.SetDefault("generator.retain_new", 30)
	v.SetDefault("generator.seed", 0)

	v.SetDefault("storage.db_path", "./data/matoracle.db")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.base_url", "https://api.openai.com/v1")
	v.SetDefault("advisor.model", "gpt-4-turbo-preview")
	v.SetDefault("advisor.timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("markets must contain at least one market")
	}
	if c.RefreshInterval < 1*time.Second {
		return fmt.Errorf("refresh_interval must be at least 1 second")
	}

	if c.Alerting.WarnThreshold <= 0 {
		return fmt.Errorf("alerting.warn_threshold must be positive")
	}
	if c.Alerting.CriticalThreshold <= c.Alerting.WarnThreshold {
		return fmt.Errorf("alerting.critical_threshold must be greater than alerting.warn_threshold")
	}
	if c.Alerting.SuppressionWindow < 1*time.Minute {
		return fmt.Errorf("alerting.suppression_window must be at least 1 minute")
	}
	if c.Alerting.MaxLogEntries < 1 {
		return fmt.Errorf("alerting.max_log_entries must be at least 1")
	}

	if c.Generator.HistoryDays < 2 {
		return fmt.Errorf("generator.history_days must be at least 2")
	}
	if c.Generator.RetainPrior < 0 {
		return fmt.Errorf("generator.retain_prior must not be negative")
	}
	if c.Generator.RetainNew < 1 {
		return fmt.Errorf("generator.retain_new must be at least 1")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Advisor.Enabled {
		if c.Advisor.BaseURL == "" {
			return fmt.Errorf("advisor.base_url is required when the advisor is enabled")
		}
		if c.Advisor.APIKey == "" {
			return fmt.Errorf("advisor.api_key is required when the advisor is enabled")
		}
		if c.Advisor.Model == "" {
			return fmt.Errorf("advisor.model is required when the advisor is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// InitialSettings derives the persisted-settings defaults from the
// configuration, used when the store holds no settings yet.
func (c *Config) InitialSettings() models.Settings {
	return models.Settings{
		WarnThreshold:     c.Alerting.WarnThreshold,
		CriticalThreshold: c.Alerting.CriticalThreshold,
		RefreshInterval:   c.RefreshInterval,
		Markets:           append([]string(nil), c.Markets...),
	}
}
