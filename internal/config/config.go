// Package config loads application configuration from a YAML file
// overlaid with environment variables, following the 12-factor pattern
// of keeping deploy-specific secrets (DSNs, API keys) out of the
// checked-in YAML and in the process environment instead.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the event pipeline.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Validation ValidationConfig `yaml:"validation"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Snowflake  SnowflakeConfig  `yaml:"snowflake"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// ServerConfig holds HTTP intake server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container-environment detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection used by the Store.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetimeDuration returns the configured connection lifetime as a duration.
func (c DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	if c.ConnMaxLifetime <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig holds the optional Redis connection backing the Queue's
// readiness Index and the distributed reaper lock. Empty URL disables both.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// QueueConfig holds fanout queue knobs (spec §6, §4.4).
type QueueConfig struct {
	BatchSize        int `yaml:"batch_size"`
	LeaseSeconds     int `yaml:"lease_seconds"`
	MaxRetries       int `yaml:"max_retries"`
	ReapIntervalSecs int `yaml:"reap_interval_seconds"`
	ReapGraceSeconds int `yaml:"reap_grace_seconds"`
	CleanupOlderDays int `yaml:"cleanup_older_than_days"`
}

// LeaseDuration returns the configured lease length as a duration.
func (c QueueConfig) LeaseDuration() time.Duration {
	if c.LeaseSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.LeaseSeconds) * time.Second
}

// ReapInterval returns how often the stuck-lease reaper sweeps.
func (c QueueConfig) ReapInterval() time.Duration {
	if c.ReapIntervalSecs <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.ReapIntervalSecs) * time.Second
}

// ReapGrace returns the grace period past lease expiry before a job is
// considered stuck.
func (c QueueConfig) ReapGrace() time.Duration {
	if c.ReapGraceSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ReapGraceSeconds) * time.Second
}

// ValidationConfig holds email-validation registry knobs (spec §3, §6).
type ValidationConfig struct {
	CacheDays    int    `yaml:"cache_days"`
	DailyLimit   int    `yaml:"daily_limit"`
	PlatformCode string `yaml:"platform_code"`
}

// CacheTTL returns the cache TTL as a duration.
func (c ValidationConfig) CacheTTL() time.Duration {
	days := c.CacheDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// DailyLimitOrDefault returns the configured ZeroBounce-style daily
// validation budget, defaulting to 10,000 (spec §6).
func (c ValidationConfig) DailyLimitOrDefault() int {
	if c.DailyLimit <= 0 {
		return 10000
	}
	return c.DailyLimit
}

// ArchiveConfig holds S3 archival settings for the cleanup CLI's
// --task=archive target (SPEC_FULL §4.12). Empty Bucket disables archival.
type ArchiveConfig struct {
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// SnowflakeConfig holds Snowflake export settings for the cleanup CLI's
// --task=analytics target (SPEC_FULL §4.12). Empty Account disables export.
type SnowflakeConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
}

// WorkerConfig holds queue-processor CLI defaults (spec §6).
type WorkerConfig struct {
	Workers    int `yaml:"workers"`
	SleepSecs  int `yaml:"sleep_seconds"`
	MaxRuntime int `yaml:"max_runtime_seconds"`
}

// SleepInterval returns the empty-batch poll sleep as a duration.
func (c WorkerConfig) SleepInterval() time.Duration {
	if c.SleepSecs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.SleepSecs) * time.Second
}

// Load reads and parses the configuration file, applying defaults for
// anything left zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 100
	}
	if cfg.Queue.LeaseSeconds == 0 {
		cfg.Queue.LeaseSeconds = 300
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Queue.CleanupOlderDays == 0 {
		cfg.Queue.CleanupOlderDays = 30
	}
	if cfg.Validation.CacheDays == 0 {
		cfg.Validation.CacheDays = 30
	}
	if cfg.Validation.DailyLimit == 0 {
		cfg.Validation.DailyLimit = 10000
	}
	if cfg.Validation.PlatformCode == "" {
		cfg.Validation.PlatformCode = "zerobounce"
	}
	if cfg.Worker.Workers == 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Worker.SleepSecs == 0 {
		cfg.Worker.SleepSecs = 5
	}

	return &cfg, nil
}

// LoadFromEnv loads the YAML config at path, then overlays environment
// variables named in spec §6. A missing .env file is not an error.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if v := os.Getenv("QUEUE_BATCH_SIZE"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Queue.BatchSize = n
		}
	}
	if v := os.Getenv("VALIDATION_CACHE_DAYS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Validation.CacheDays = n
		}
	}
	if v := os.Getenv("ZEROBOUNCE_DAILY_LIMIT"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Validation.DailyLimit = n
		}
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("ARCHIVE_S3_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}

	return cfg, nil
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
