package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Forecast ForecastConfig `mapstructure:"forecast"`
	Fusion   FusionConfig   `mapstructure:"fusion"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ForecastConfig holds budget forecasting parameters
type ForecastConfig struct {
	WindowDays int            `mapstructure:"window_days"`
	Weights    DayTypeWeights `mapstructure:"weights"`
	Holidays   []string       `mapstructure:"holidays"`   // YYYY-MM-DD
	Promotions []string       `mapstructure:"promotions"` // YYYY-MM-DD
}

// DayTypeWeights holds the seasonal spend multipliers
type DayTypeWeights struct {
	Workday   float64 `mapstructure:"workday"`
	Weekend   float64 `mapstructure:"weekend"`
	Holiday   float64 `mapstructure:"holiday"`
	Promotion float64 `mapstructure:"promotion"`
}

// FusionConfig holds rate fusion filter parameters and the configured quote sources
type FusionConfig struct {
	ProcessNoise    float64        `mapstructure:"process_noise"`
	InitialVariance float64        `mapstructure:"initial_variance"`
	Sources         []SourceConfig `mapstructure:"sources"`
}

// SourceConfig is one statically configured rate quote
type SourceConfig struct {
	Pair          string  `mapstructure:"pair"`
	Name          string  `mapstructure:"name"`
	Rate          float64 `mapstructure:"rate"`
	Weight        float64 `mapstructure:"weight"`
	NoiseVariance float64 `mapstructure:"noise_variance"`
}

// MonitorConfig holds budget monitoring behavior configuration
type MonitorConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	TopK           int           `mapstructure:"top_k"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	MinConfidence  float64       `mapstructure:"min_confidence"`
	EscalationStep float64       `mapstructure:"escalation_step"`
	MaxPredictions int           `mapstructure:"max_predictions"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty path
// skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SPENDCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Forecast defaults
	v.SetDefault("forecast.window_days", 30)
	v.SetDefault("forecast.weights.workday", 1.0)
	v.SetDefault("forecast.weights.weekend", 1.3)
	v.SetDefault("forecast.weights.holiday", 1.8)
	v.SetDefault("forecast.weights.promotion", 2.5)
	v.SetDefault("forecast.holidays", []string{})
	v.SetDefault("forecast.promotions", []string{})

	// Fusion defaults
	v.SetDefault("fusion.process_noise", 1e-4)
	v.SetDefault("fusion.initial_variance", 0.01)

	// Monitor defaults
	v.SetDefault("monitor.interval", "1h")
	v.SetDefault("monitor.top_k", 10)
	v.SetDefault("monitor.cooldown", "24h")
	v.SetDefault("monitor.min_confidence", 0.0)
	v.SetDefault("monitor.escalation_step", 0.1)
	v.SetDefault("monitor.max_predictions", 100)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Forecast config
	if c.Forecast.WindowDays < 1 {
		return fmt.Errorf("forecast.window_days must be at least 1")
	}
	w := c.Forecast.Weights
	if w.Workday <= 0 || w.Weekend <= 0 || w.Holiday <= 0 || w.Promotion <= 0 {
		return fmt.Errorf("forecast.weights must all be positive")
	}
	for _, d := range append(append([]string{}, c.Forecast.Holidays...), c.Forecast.Promotions...) {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("forecast calendar date %q must be YYYY-MM-DD", d)
		}
	}

	// Validate Fusion config
	if c.Fusion.ProcessNoise < 0 {
		return fmt.Errorf("fusion.process_noise must not be negative")
	}
	if c.Fusion.InitialVariance < 0 {
		return fmt.Errorf("fusion.initial_variance must not be negative")
	}
	for i, s := range c.Fusion.Sources {
		if s.Pair == "" {
			return fmt.Errorf("fusion.sources[%d].pair is required", i)
		}
		if s.Weight < 0 {
			return fmt.Errorf("fusion.sources[%d].weight must not be negative", i)
		}
		if s.NoiseVariance < 0 {
			return fmt.Errorf("fusion.sources[%d].noise_variance must not be negative", i)
		}
	}

	// Validate Monitor config
	if c.Monitor.Interval < 1*time.Minute {
		return fmt.Errorf("monitor.interval must be at least 1 minute")
	}
	if c.Monitor.TopK < 1 {
		return fmt.Errorf("monitor.top_k must be at least 1")
	}
	if c.Monitor.Cooldown < 0 {
		return fmt.Errorf("monitor.cooldown must not be negative")
	}
	if c.Monitor.MinConfidence < 0.0 || c.Monitor.MinConfidence > 1.0 {
		return fmt.Errorf("monitor.min_confidence must be between 0.0 and 1.0")
	}
	if c.Monitor.EscalationStep < 0 {
		return fmt.Errorf("monitor.escalation_step must not be negative")
	}
	if c.Monitor.MaxPredictions < 1 {
		return fmt.Errorf("monitor.max_predictions must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
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
