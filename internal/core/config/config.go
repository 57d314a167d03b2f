package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"

	"github.com/itempulse/itempulse/internal/core/tracking"
)

// Config represents the top-level application config.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Tracking   TrackingConfig   `koanf:"tracking"`
	Ingestion  IngestionConfig  `koanf:"ingestion"`
	HotCache   HotCacheConfig   `koanf:"hotcache"`
	Retention  RetentionConfig  `koanf:"retention"`
	Analytics  AnalyticsConfig  `koanf:"analytics"`
	Resilience ResilienceConfig `koanf:"resilience"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
	QueryTimeout string `koanf:"query_timeout"` // parsed and validated on startup
}

// TrackingConfig carries the dedup windows. All values are milliseconds,
// matching the units the upstream clients were tuned with.
type TrackingConfig struct {
	RateLimitWindow    int `koanf:"rate_limit_window"`
	ImpressionCooldown int `koanf:"impression_cooldown"`
	ClickCooldown      int `koanf:"click_cooldown"`
}

type IngestionConfig struct {
	MaxBatchSize int `koanf:"max_batch_size"`
	WorkerCount  int `koanf:"worker_count"`
}

type HotCacheConfig struct {
	ShardCount         int `koanf:"shard_count"`
	MaxEntriesPerShard int `koanf:"max_entries_per_shard"` // 0 = unbounded
}

type RetentionConfig struct {
	CleanupInterval   int    `koanf:"cleanup_interval"` // milliseconds
	DataRetentionDays int    `koanf:"data_retention_days"`
	PurgeSchedule     string `koanf:"purge_schedule"` // cron spec, validated on startup
}

type AnalyticsConfig struct {
	MaxTrendingLimit int `koanf:"max_trending_limit"`
	DefaultRangeDays int `koanf:"default_range_days"`
}

type ResilienceConfig struct {
	Enabled          bool    `koanf:"enabled"`
	MaxRequests      int     `koanf:"max_requests"`
	Interval         string  `koanf:"interval"`
	Timeout          string  `koanf:"timeout"`
	FailureThreshold float64 `koanf:"failure_threshold"`
	MinRequests      int     `koanf:"min_requests"`
}

// Policy converts the millisecond settings into the domain policy.
func (c TrackingConfig) Policy() tracking.Policy {
	return tracking.Policy{
		RateLimitWindow:    time.Duration(c.RateLimitWindow) * time.Millisecond,
		ImpressionCooldown: time.Duration(c.ImpressionCooldown) * time.Millisecond,
		ClickCooldown:      time.Duration(c.ClickCooldown) * time.Millisecond,
	}
}

func (c DatabaseConfig) QueryTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 0
	}
	return d
}

func (c RetentionConfig) CleanupEvery() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Millisecond
}

func (c RetentionConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.DataRetentionDays) * 24 * time.Hour
}

func (c ResilienceConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 0
	}
	return d
}

func (c ResilienceConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}
	timeout, err := time.ParseDuration(c.Database.QueryTimeout)
	if err != nil {
		return fmt.Errorf("invalid database.query_timeout %q: %w", c.Database.QueryTimeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("database.query_timeout must be > 0")
	}

	if c.Tracking.RateLimitWindow <= 0 {
		return fmt.Errorf("tracking.rate_limit_window must be > 0")
	}
	if c.Tracking.ImpressionCooldown <= 0 {
		return fmt.Errorf("tracking.impression_cooldown must be > 0")
	}
	if c.Tracking.ClickCooldown <= 0 {
		return fmt.Errorf("tracking.click_cooldown must be > 0")
	}

	if c.Ingestion.MaxBatchSize <= 0 {
		return fmt.Errorf("ingestion.max_batch_size must be > 0")
	}
	if c.Ingestion.WorkerCount <= 0 {
		return fmt.Errorf("ingestion.worker_count must be > 0")
	}

	if c.HotCache.ShardCount <= 0 {
		return fmt.Errorf("hotcache.shard_count must be > 0")
	}
	if c.HotCache.MaxEntriesPerShard < 0 {
		return fmt.Errorf("hotcache.max_entries_per_shard must be >= 0")
	}

	if c.Retention.CleanupInterval <= 0 {
		return fmt.Errorf("retention.cleanup_interval must be > 0")
	}
	if c.Retention.DataRetentionDays <= 0 {
		return fmt.Errorf("retention.data_retention_days must be > 0")
	}
	if _, err := cron.ParseStandard(c.Retention.PurgeSchedule); err != nil {
		return fmt.Errorf("invalid retention.purge_schedule %q: %w", c.Retention.PurgeSchedule, err)
	}

	if c.Analytics.MaxTrendingLimit <= 0 {
		return fmt.Errorf("analytics.max_trending_limit must be > 0")
	}
	if c.Analytics.DefaultRangeDays <= 0 {
		return fmt.Errorf("analytics.default_range_days must be > 0")
	}

	if c.Resilience.Enabled {
		if c.Resilience.MaxRequests <= 0 {
			return fmt.Errorf("resilience.max_requests must be > 0")
		}
		interval, err := time.ParseDuration(c.Resilience.Interval)
		if err != nil || interval <= 0 {
			return fmt.Errorf("invalid resilience.interval %q", c.Resilience.Interval)
		}
		timeout, err := time.ParseDuration(c.Resilience.Timeout)
		if err != nil || timeout <= 0 {
			return fmt.Errorf("invalid resilience.timeout %q", c.Resilience.Timeout)
		}
		if c.Resilience.FailureThreshold <= 0 || c.Resilience.FailureThreshold > 1 {
			return fmt.Errorf("resilience.failure_threshold must be in (0, 1]")
		}
		if c.Resilience.MinRequests <= 0 {
			return fmt.Errorf("resilience.min_requests must be > 0")
		}
	}

	return nil
}

// Load parses config from defaults, then the optional file, then env vars
// (ITEMPULSE_ prefix, "__" maps to "."), and validates the merged result.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                    8080,
		"server.host":                    "0.0.0.0",
		"server.max_body_size_mb":        1,
		"server.mode":                    "release",
		"database.type":                  "postgres",
		"database.dsn":                   "",
		"database.max_open_conns":        25,
		"database.max_idle_conns":        25,
		"database.auto_migrate":          true,
		"database.query_timeout":         "5s",
		"tracking.rate_limit_window":     60000,
		"tracking.impression_cooldown":   30000,
		"tracking.click_cooldown":        5000,
		"ingestion.max_batch_size":       1000,
		"ingestion.worker_count":         10,
		"hotcache.shard_count":           16,
		"hotcache.max_entries_per_shard": 4096,
		"retention.cleanup_interval":     300000,
		"retention.data_retention_days":  90,
		"retention.purge_schedule":       "@every 1h",
		"analytics.max_trending_limit":   100,
		"analytics.default_range_days":   30,
		"resilience.enabled":             true,
		"resilience.max_requests":        3,
		"resilience.interval":            "1m",
		"resilience.timeout":             "30s",
		"resilience.failure_threshold":   1.0,
		"resilience.min_requests":        5,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("ITEMPULSE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ITEMPULSE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
