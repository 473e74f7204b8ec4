// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. An optional .env file is read first so
// local development can keep credentials out of the YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Compare   CompareConfig   `yaml:"compare"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CatalogConfig points at the product snapshot loaded at startup.
type CatalogConfig struct {
	Path    string `yaml:"path"`
	Lenient bool   `yaml:"lenient"`
}

// IndexerConfig selects the analyzer and bounds the in-memory index.
type IndexerConfig struct {
	Analyzer      string `yaml:"analyzer"`
	MaxIndexBytes int64  `yaml:"maxIndexBytes"`
}

// SearchConfig controls query limits and the per-query deadline.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxResults   int           `yaml:"maxResults"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CompareConfig toggles the PostgreSQL baseline engine.
type CompareConfig struct {
	Enabled      bool          `yaml:"enabled"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	Seed         bool          `yaml:"seed"`
	// SnapshotInterval controls how often analytics are saved to PostgreSQL;
	// 0 disables snapshots.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the analytics event stream settings.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topic         string        `yaml:"topic"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RateLimitConfig caps requests per client address.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Load reads an optional .env file, then a YAML config file (if provided),
// and finally applies SB_* environment-variable overrides on top of the
// defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Catalog.Path == "" {
		problems = append(problems, "catalog.path is required")
	}
	switch c.Indexer.Analyzer {
	case "", "default", "english":
	default:
		problems = append(problems, fmt.Sprintf("indexer.analyzer %q is not one of default, english", c.Indexer.Analyzer))
	}
	if c.Indexer.MaxIndexBytes < 0 {
		problems = append(problems, "indexer.maxIndexBytes must not be negative")
	}
	if c.Search.MaxResults <= 0 {
		problems = append(problems, "search.maxResults must be positive")
	}
	if c.Search.DefaultLimit < 0 || c.Search.DefaultLimit > c.Search.MaxResults {
		problems = append(problems, fmt.Sprintf("search.defaultLimit %d must be within [0, %d]", c.Search.DefaultLimit, c.Search.MaxResults))
	}
	if c.Search.Timeout < 0 {
		problems = append(problems, "search.timeout must not be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		problems = append(problems, "rateLimit.requests and rateLimit.window must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		problems = append(problems, "metrics.port must differ from server.port")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Catalog: CatalogConfig{
			Path: "data/products.csv",
		},
		Indexer: IndexerConfig{
			Analyzer: "default",
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			MaxResults:   100,
			Timeout:      2 * time.Second,
		},
		Compare: CompareConfig{
			QueryTimeout:     5 * time.Second,
			Seed:             true,
			SnapshotInterval: time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchbench",
			User:            "searchbench",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchbench-analytics",
			Topic:         "search-events",
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
		},
	}
}

// applyEnvOverrides reads SB_* environment variables and overrides the
// corresponding config fields. Unparsable values are ignored.
func applyEnvOverrides(cfg *Config) {
	setInt("SB_SERVER_PORT", &cfg.Server.Port)
	setString("SB_CATALOG_PATH", &cfg.Catalog.Path)
	setBool("SB_CATALOG_LENIENT", &cfg.Catalog.Lenient)
	setString("SB_INDEXER_ANALYZER", &cfg.Indexer.Analyzer)
	if v := os.Getenv("SB_INDEXER_MAX_INDEX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.MaxIndexBytes = n
		}
	}
	setInt("SB_SEARCH_DEFAULT_LIMIT", &cfg.Search.DefaultLimit)
	setInt("SB_SEARCH_MAX_RESULTS", &cfg.Search.MaxResults)
	setDuration("SB_SEARCH_TIMEOUT", &cfg.Search.Timeout)
	setBool("SB_COMPARE_ENABLED", &cfg.Compare.Enabled)
	setDuration("SB_COMPARE_SNAPSHOT_INTERVAL", &cfg.Compare.SnapshotInterval)
	setString("SB_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SB_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SB_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SB_POSTGRES_USER", &cfg.Postgres.User)
	setString("SB_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SB_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("SB_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("SB_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SB_REDIS_PASSWORD", &cfg.Redis.Password)
	setDuration("SB_REDIS_CACHE_TTL", &cfg.Redis.CacheTTL)
	setBool("SB_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("SB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString("SB_KAFKA_TOPIC", &cfg.Kafka.Topic)
	setString("SB_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SB_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("SB_TRACING_ENABLED", &cfg.Tracing.Enabled)
	setBool("SB_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("SB_METRICS_PORT", &cfg.Metrics.Port)
	setBool("SB_RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
