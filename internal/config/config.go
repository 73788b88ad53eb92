// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage, fetcher, and snapshot backend names.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"

	FetcherColly    = "colly"
	FetcherHeadless = "headless"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Snapshots  SnapshotConfig   `mapstructure:"snapshots"`
	Cache      CacheConfig      `mapstructure:"cache"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	// BasePath is stripped from Lambda event paths, e.g. an API Gateway
	// stage such as "/dev".
	BasePath string `mapstructure:"base_path"`
}

// IdentityConfig holds the placeholder principal. It is not authentication.
type IdentityConfig struct {
	OwnerID        string `mapstructure:"owner_id"`
	TimeOrderedIDs bool   `mapstructure:"time_ordered_ids"`
}

// FetcherConfig governs outbound page retrieval.
type FetcherConfig struct {
	Mode                string `mapstructure:"mode"`
	UserAgent           string `mapstructure:"user_agent"`
	Accept              string `mapstructure:"accept"`
	AcceptLanguage      string `mapstructure:"accept_language"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes        int    `mapstructure:"max_body_bytes"`
	HeadlessMaxParallel int    `mapstructure:"headless_max_parallel"`

	// RateLimitRPS throttles fetches per site. Zero disables throttling.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// EnrichmentConfig toggles metadata lookup on create.
type EnrichmentConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StorageConfig selects and configures the bookmark store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// DynamoDBConfig points at the bookmarks table.
type DynamoDBConfig struct {
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// PostgresConfig controls access to the relational store.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

// SnapshotConfig sets where fetched HTML is archived.
type SnapshotConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Backend string              `mapstructure:"backend"`
	Prefix  string              `mapstructure:"prefix"`
	Bucket  string              `mapstructure:"bucket"`
	Local   LocalSnapshotConfig `mapstructure:"local"`
}

// LocalSnapshotConfig configures the filesystem snapshot backend.
type LocalSnapshotConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// CacheConfig configures the metadata cache. An empty address disables it.
type CacheConfig struct {
	Redis      RedisConfig `mapstructure:"redis"`
	TTLSeconds int         `mapstructure:"ttl_seconds"`
}

// RedisConfig holds the Redis connection parameters.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PubSubConfig holds metadata for lifecycle event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// BOOKMARKS_ prefix with dots replaced by underscores; TABLE_NAME and PORT
// are honored for compatibility with the Lambda and container runtimes.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKMARKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Storage.Backend = cfg.StorageBackend()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"storage.dynamodb.table": {"BOOKMARKS_STORAGE_DYNAMODB_TABLE", "TABLE_NAME"},
		"server.port":            {"BOOKMARKS_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.base_path", "")
	v.SetDefault("identity.owner_id", "guest")
	v.SetDefault("identity.time_ordered_ids", false)
	v.SetDefault("fetcher.mode", FetcherColly)
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("fetcher.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("fetcher.accept_language", "en-US,en;q=0.9")
	v.SetDefault("fetcher.timeout_seconds", 5)
	v.SetDefault("fetcher.max_body_bytes", 5<<20)
	v.SetDefault("fetcher.headless_max_parallel", 2)
	v.SetDefault("fetcher.rate_limit_rps", 0)
	v.SetDefault("fetcher.rate_limit_burst", 1)
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.dynamodb.table", "")
	v.SetDefault("storage.dynamodb.region", "")
	v.SetDefault("storage.dynamodb.endpoint", "")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "bookmarks")
	v.SetDefault("storage.postgres.max_conns", 0)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.max_conn_lifetime_seconds", 0)
	v.SetDefault("storage.postgres.auto_migrate", true)
	v.SetDefault("snapshots.enabled", false)
	v.SetDefault("snapshots.backend", BackendMemory)
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("snapshots.bucket", "")
	v.SetDefault("snapshots.local.base_dir", "")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
}

// StorageBackend resolves an empty backend: dynamodb when a table is
// configured, memory otherwise.
func (c Config) StorageBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if backend != "" {
		return backend
	}
	if c.Storage.DynamoDB.Table != "" {
		return BackendDynamoDB
	}
	return BackendMemory
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Identity.OwnerID) == "" {
		return fmt.Errorf("identity.owner_id must be set")
	}
	if err := c.validateFetcher(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSnapshots(); err != nil {
		return err
	}
	if c.Cache.Redis.Addr != "" && c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0 when cache.redis.addr is set")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

func (c Config) validateFetcher() error {
	switch c.Fetcher.Mode {
	case FetcherColly:
	case FetcherHeadless:
		if c.Fetcher.HeadlessMaxParallel <= 0 {
			return fmt.Errorf("fetcher.headless_max_parallel must be > 0 in headless mode")
		}
	default:
		return fmt.Errorf("fetcher.mode must be %q or %q, got %q", FetcherColly, FetcherHeadless, c.Fetcher.Mode)
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxBodyBytes < 0 {
		return fmt.Errorf("fetcher.max_body_bytes must be >= 0")
	}
	if c.Fetcher.RateLimitRPS < 0 {
		return fmt.Errorf("fetcher.rate_limit_rps must be >= 0")
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.StorageBackend() {
	case BackendMemory:
	case BackendDynamoDB:
		if c.Storage.DynamoDB.Table == "" {
			return fmt.Errorf("storage.dynamodb.table must be set for the dynamodb backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

func (c Config) validateSnapshots() error {
	if !c.Snapshots.Enabled {
		return nil
	}
	switch c.Snapshots.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Snapshots.Local.BaseDir == "" {
			return fmt.Errorf("snapshots.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Snapshots.Bucket == "" {
			return fmt.Errorf("snapshots.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("snapshots.backend %q is not supported", c.Snapshots.Backend)
	}
	return nil
}

// FetchTimeout returns the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the metadata cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ConnLifetime returns the Postgres connection max lifetime.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.Storage.Postgres.MaxConnLifetimeSeconds) * time.Second
}
