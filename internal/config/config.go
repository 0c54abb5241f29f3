// Package config provides configuration management for the trading simulator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading TradingConfig `mapstructure:"trading"`
	Margin  MarginConfig  `mapstructure:"margin"`
	Candles CandleConfig  `mapstructure:"candles"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	InitialBalance  float64   `mapstructure:"initial_balance"`
	DefaultProduct  string    `mapstructure:"default_product"`  // INTRADAY, DELIVERY, CARRY_FORWARD
	AllowedLeverage []float64 `mapstructure:"allowed_leverage"` // whitelist of leverage multipliers
}

// MarginConfig holds margin rate configuration keyed by segment and product.
type MarginConfig struct {
	// Rates maps "SEGMENT.PRODUCT" to a margin rate in (0, 1].
	// Missing pairs fall back to the engine defaults.
	Rates map[string]float64 `mapstructure:"rates"`
}

// CandleConfig holds candle aggregation configuration.
type CandleConfig struct {
	// Intervals is the set of supported bucket widths in seconds.
	Intervals []int64 `mapstructure:"intervals"`
	// MaxHistory caps the number of sealed candles kept in memory per series.
	MaxHistory int `mapstructure:"max_history"`
}

// FeedConfig holds price feed configuration.
type FeedConfig struct {
	WSURL      string `mapstructure:"ws_url"`
	BufferSize int    `mapstructure:"buffer_size"`
	Shards     int    `mapstructure:"shards"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/papertrader"
	}
	return filepath.Join(home, ".config", "papertrader")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			InitialBalance:  1000000,
			DefaultProduct:  "INTRADAY",
			AllowedLeverage: []float64{1, 2, 3, 5, 10, 20},
		},
		Margin: MarginConfig{Rates: map[string]float64{}},
		Candles: CandleConfig{
			Intervals:  []int64{60, 300, 900, 1800, 3600, 86400},
			MaxHistory: 500,
		},
		Feed: FeedConfig{
			BufferSize: 1000,
			Shards:     8,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "papertrader.db"),
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    true,
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// Pick up a local .env before reading env overrides.
	_ = godotenv.Load()

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// No config file: run on defaults.
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAPERTRADER_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("PAPERTRADER_FEED_URL"); v != "" {
		cfg.Feed.WSURL = v
	}
	if v := os.Getenv("PAPERTRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PAPERTRADER_INITIAL_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.InitialBalance = f
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.InitialBalance < 0 {
		return fmt.Errorf("initial_balance must be non-negative")
	}

	switch c.Trading.DefaultProduct {
	case "", "INTRADAY", "DELIVERY", "CARRY_FORWARD":
	default:
		return fmt.Errorf("invalid default_product: %s", c.Trading.DefaultProduct)
	}

	if len(c.Trading.AllowedLeverage) == 0 {
		return fmt.Errorf("allowed_leverage must list at least one multiplier")
	}
	for _, l := range c.Trading.AllowedLeverage {
		if l < 1 {
			return fmt.Errorf("leverage multiplier %.2f below 1", l)
		}
	}

	if len(c.Candles.Intervals) == 0 {
		return fmt.Errorf("candles.intervals must not be empty")
	}
	for _, w := range c.Candles.Intervals {
		if w <= 0 {
			return fmt.Errorf("candle interval %d must be positive", w)
		}
	}

	for key, rate := range c.Margin.Rates {
		if rate <= 0 || rate > 1 {
			return fmt.Errorf("margin rate for %s out of range (0, 1]: %.4f", key, rate)
		}
	}

	if c.Feed.Shards < 0 {
		return fmt.Errorf("feed.shards must be non-negative")
	}

	return nil
}
