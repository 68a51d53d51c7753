package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/absgex/internal/gex"
)

type Config struct {
	Polygon PolygonConfig `mapstructure:"polygon"`
	Gex     GexConfig     `mapstructure:"gex"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Server  ServerConfig  `mapstructure:"server"`
	Market  MarketConfig  `mapstructure:"market"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type PolygonConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
	// ReferenceFanout switches chain fetching to the reference-contracts +
	// per-contract snapshot variant for plans without the chain snapshot
	// endpoint.
	ReferenceFanout bool `mapstructure:"reference_fanout"`
	FanoutWorkers   int  `mapstructure:"fanout_workers"`
}

type GexConfig struct {
	TopN         int     `mapstructure:"top_n"`
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	// DollarExposure applies the 100-share contract multiplier.
	DollarExposure bool `mapstructure:"dollar_exposure"`
	// EstimateFromIV derives gamma from implied volatility for contracts
	// the feed returns without greeks.
	EstimateFromIV bool `mapstructure:"estimate_from_iv"`
}

type CacheConfig struct {
	TTLSec int `mapstructure:"ttl_sec"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

type ServerConfig struct {
	Port              string `mapstructure:"port"`
	StreamEnabled     bool   `mapstructure:"stream_enabled"`
	StreamIntervalSec int    `mapstructure:"stream_interval_sec"`
}

type MarketConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("polygon.base_url", "https://api.polygon.io")
	v.SetDefault("polygon.timeout_sec", 30)
	v.SetDefault("polygon.rate_per_second", 5)
	v.SetDefault("polygon.reference_fanout", false)
	v.SetDefault("polygon.fanout_workers", 4)
	v.SetDefault("gex.top_n", 15)
	v.SetDefault("gex.risk_free_rate", 0.05)
	v.SetDefault("gex.dollar_exposure", false)
	v.SetDefault("gex.estimate_from_iv", true)
	v.SetDefault("cache.ttl_sec", 60)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.directory", "data")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.stream_enabled", true)
	v.SetDefault("server.stream_interval_sec", 30)
	v.SetDefault("market.timezone", "America/New_York")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("ABSGEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind the credential; POLYGON_API_KEY is the name the
	// provider's docs use, so accept it too.
	_ = v.BindEnv("polygon.api_key", "ABSGEX_POLYGON_API_KEY", "POLYGON_API_KEY")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Polygon.APIKey == "" {
		return fmt.Errorf("polygon api_key is required (set ABSGEX_POLYGON_API_KEY or POLYGON_API_KEY)")
	}
	if c.Gex.TopN < 1 {
		return fmt.Errorf("gex top_n must be >= 1")
	}
	if c.Cache.TTLSec < 0 {
		return fmt.Errorf("cache ttl_sec must be >= 0")
	}
	if c.Polygon.FanoutWorkers < 1 {
		return fmt.Errorf("polygon fanout_workers must be >= 1")
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Polygon.TimeoutSec) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.Server.StreamIntervalSec) * time.Second
}

// Multiplier returns the per-contract scale implied by the exposure mode.
func (c *Config) Multiplier() float64 {
	if c.Gex.DollarExposure {
		return gex.ContractMultiplier
	}
	return 1
}
