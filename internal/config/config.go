package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

const (
	DefaultThreshold         = 0.2
	DefaultMaxResults        = 10
	DefaultEmbedCacheSize    = 20
	DefaultEmbedAttempts     = 4
	DefaultEmbedRetryDelayMs = 7000
)

type Config struct {
	Port          int              `json:"port"`
	JWTSecret     string           `json:"jwt_secret"`
	JWTTTLHours   int              `json:"jwt_ttl_hours"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	Embed         EmbedConfig      `json:"embed"`
	EmbedCache    EmbedCacheConfig `json:"embed_cache"`
	Redis         RedisConfig      `json:"redis"`
	Search        SearchConfig     `json:"search"`
	Jobs          JobsConfig       `json:"jobs"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	RateLimit     RateLimitConfig  `json:"rate_limit"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type EmbedProviderConfig struct {
	Name   string          `json:"name"`
	Model  string          `json:"model"`
	Config json.RawMessage `json:"config"`
}

type EmbedConfig struct {
	Providers      []EmbedProviderConfig `json:"providers"`
	Attempts       int                   `json:"attempts"`
	RetryDelayMs   int                   `json:"retry_delay_ms"`
	RateLimitQPS   float64               `json:"rate_limit_qps"`
	RateLimitBurst int                   `json:"rate_limit_burst"`
	TimeoutSec     int                   `json:"timeout_sec"`
}

type EmbedCacheConfig struct {
	Store      string `json:"store"`
	Capacity   int    `json:"capacity"`
	MaxAgeDays int    `json:"max_age_days"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type SearchConfig struct {
	// Threshold is the minimum cosine score, exclusive. Unset means default.
	Threshold          *float64 `json:"threshold"`
	DefaultMaxResults  int      `json:"default_max_results"`
	RequestTimeoutSec  int      `json:"request_timeout_sec"`
	ResolveConcurrency int      `json:"resolve_concurrency"`
}

type JobsConfig struct {
	BackfillSpec     string `json:"backfill_spec"`
	BackfillBatch    int    `json:"backfill_batch"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
}

type RateLimitConfig struct {
	SearchPerMinute int `json:"search_per_minute"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	switch cfg.Database.Driver {
	case "", "sqlite":
		cfg.Database.Driver = "sqlite"
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if cfg.Database.DSN == "" && cfg.Database.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}
	if len(cfg.Embed.Providers) == 0 {
		cfg.Embed.Providers = []EmbedProviderConfig{{Name: "huggingface"}}
	}
	if cfg.Embed.Attempts <= 0 {
		cfg.Embed.Attempts = DefaultEmbedAttempts
	}
	if cfg.Embed.RetryDelayMs <= 0 {
		cfg.Embed.RetryDelayMs = DefaultEmbedRetryDelayMs
	}
	if cfg.Embed.TimeoutSec <= 0 {
		cfg.Embed.TimeoutSec = 30
	}
	switch cfg.EmbedCache.Store {
	case "":
		cfg.EmbedCache.Store = "db"
	case "db", "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for redis embed cache")
		}
	default:
		return fmt.Errorf("embed_cache.store must be db, memory or redis")
	}
	if cfg.EmbedCache.Capacity <= 0 {
		cfg.EmbedCache.Capacity = DefaultEmbedCacheSize
	}
	if cfg.EmbedCache.MaxAgeDays <= 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "relnote:embed_cache"
	}
	if cfg.Search.Threshold == nil {
		th := DefaultThreshold
		cfg.Search.Threshold = &th
	}
	if cfg.Search.DefaultMaxResults <= 0 {
		cfg.Search.DefaultMaxResults = DefaultMaxResults
	}
	if cfg.Search.RequestTimeoutSec <= 0 {
		cfg.Search.RequestTimeoutSec = 60
	}
	if cfg.Jobs.BackfillSpec == "" {
		cfg.Jobs.BackfillSpec = "*/10 * * * *"
	}
	if cfg.Jobs.BackfillBatch <= 0 {
		cfg.Jobs.BackfillBatch = 50
	}
	if cfg.Jobs.CacheCleanupSpec == "" {
		cfg.Jobs.CacheCleanupSpec = "0 3 * * *"
	}
	if cfg.RateLimit.SearchPerMinute <= 0 {
		cfg.RateLimit.SearchPerMinute = 120
	}
	return nil
}
