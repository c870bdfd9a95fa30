package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Floors for background intervals. Values below these are raised, not
// rejected, so a misconfigured deployment degrades to a safe cadence.
const (
	MinSyncInterval    = 30 * time.Second
	MinRefreshInterval = 5 * time.Second
)

// Config is the full configuration for the listingd binaries.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Market   MarketConfig   `mapstructure:"market"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// MarketConfig contains marketplace API client settings.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Collection     string        `mapstructure:"collection"`
	PageLimit      int           `mapstructure:"page_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	MaxPerMinute   int           `mapstructure:"max_per_minute"`
}

// SyncConfig contains synchronization engine settings.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// PriceEpsilon is the minimum price delta (in lamports) treated as a
	// real change when diffing staged rows against the active version.
	PriceEpsilon int64 `mapstructure:"price_epsilon"`
	// BlankValueID is the catalog's sentinel trait value meaning "trait
	// absent"; it is excluded from all filtering and enrichment.
	BlankValueID int64 `mapstructure:"blank_value_id"`
}

// CacheConfig contains snapshot cache settings.
type CacheConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "listingd")

	// Marketplace client defaults (public API contract: pages of 100,
	// <=2 requests per second, <=120 per minute)
	viper.SetDefault("market.base_url", "https://api-mainnet.magiceden.dev/v2")
	viper.SetDefault("market.page_limit", 100)
	viper.SetDefault("market.request_timeout", "30s")
	viper.SetDefault("market.max_retries", 3)
	viper.SetDefault("market.initial_backoff", "2s")
	viper.SetDefault("market.min_interval", "500ms")
	viper.SetDefault("market.max_per_minute", 120)

	// Sync defaults: epsilon is 0.01 SOL in lamports
	viper.SetDefault("sync.interval", "60s")
	viper.SetDefault("sync.price_epsilon", 10_000_000)
	viper.SetDefault("sync.blank_value_id", 217)

	// Cache defaults
	viper.SetDefault("cache.refresh_interval", "30s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

// normalize enforces the interval floors.
func normalize(config *Config) {
	if config.Sync.Interval < MinSyncInterval {
		config.Sync.Interval = MinSyncInterval
	}
	if config.Cache.RefreshInterval < MinRefreshInterval {
		config.Cache.RefreshInterval = MinRefreshInterval
	}
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Market.Collection == "" {
		return fmt.Errorf("market.collection is required")
	}
	if config.Market.PageLimit <= 0 {
		return fmt.Errorf("market.page_limit must be positive")
	}
	if config.Sync.PriceEpsilon < 0 {
		return fmt.Errorf("sync.price_epsilon must not be negative")
	}
	return nil
}
