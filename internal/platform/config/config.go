package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
)

// GoerliChainID is the network the whitelist was originally deployed to.
const GoerliChainID int64 = 5

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"WHITELIST_ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"WHITELIST_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Whitelist Whitelist
	Session   Session
	Logging   Logging

	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Audit    AuditConfig

	RateLimit RateLimitConfig
	Tracing   TracingConfig
}

// Whitelist configures the registry itself.
type Whitelist struct {
	// Capacity is applied once when the registry is first deployed.
	Capacity int    `env:"WHITELIST_CAPACITY" envDefault:"10"`
	Store    string `env:"WHITELIST_STORE"    envDefault:"memory"`
	// ChainID is the only network sessions may be opened on. Zero disables the check.
	ChainID int64 `env:"WHITELIST_CHAIN_ID" envDefault:"5"`
}

type Session struct {
	SigningKey string        `env:"SESSION_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"SESSION_ISSUER"      envDefault:"whitelist"`
	Audience   string        `env:"SESSION_AUDIENCE"    envDefault:"whitelist-api"`
	TTL        time.Duration `env:"SESSION_TTL"         envDefault:"1h"`
}

type Logging struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS"     envDefault:"10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME"  envDefault:"30m"`
}

type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"whitelist.db"`
}

// RedisConfig holds connection settings for the redis store backend.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	KeyPrefix    string        `env:"REDIS_KEY_PREFIX"     envDefault:"whitelist"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// KafkaConfig enables audit streaming when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS"            envSeparator:","`
	Topic             string   `env:"KAFKA_AUDIT_TOPIC"        envDefault:"whitelist.audit"`
	Partitions        int32    `env:"KAFKA_TOPIC_PARTITIONS"   envDefault:"1"`
	ReplicationFactor int16    `env:"KAFKA_REPLICATION_FACTOR" envDefault:"1"`
}

type AuditConfig struct {
	Buffer           int           `env:"AUDIT_BUFFER"             envDefault:"256"`
	BreakerThreshold int           `env:"AUDIT_BREAKER_THRESHOLD"  envDefault:"5"`
	BreakerCooldown  time.Duration `env:"AUDIT_BREAKER_COOLDOWN"   envDefault:"30s"`
	RepeatSampleRate float64       `env:"AUDIT_REPEAT_SAMPLE_RATE" envDefault:"1"`
}

// RateLimitConfig throttles whitelist endpoints per client IP. The window is
// shared through redis when the redis store is selected.
type RateLimitConfig struct {
	Enabled  bool          `env:"RATE_LIMIT_ENABLED"  envDefault:"true"`
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW"   envDefault:"1m"`
}

// TracingConfig enables OTLP/HTTP span export when Endpoint is set.
type TracingConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"      envDefault:"true"`
	Endpoint    string  `env:"OTEL_ENDPOINT"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	return load(env.Options{})
}

// FromMap builds a Server config from an explicit environment.
func FromMap(environment map[string]string) (Server, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (Server, error) {
	var cfg Server
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Whitelist.Store = strings.ToLower(strings.TrimSpace(cfg.Whitelist.Store))
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements env tags cannot express.
func (c Server) Validate() error {
	var errs []error
	if c.Whitelist.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("WHITELIST_CAPACITY must be positive, got %d", c.Whitelist.Capacity))
	}
	switch c.Whitelist.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown WHITELIST_STORE %q", c.Whitelist.Store))
	}
	if c.Whitelist.ChainID < 0 {
		errs = append(errs, errors.New("WHITELIST_CHAIN_ID must not be negative"))
	}
	if c.Session.SigningKey == "" {
		errs = append(errs, errors.New("SESSION_SIGNING_KEY is required"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0,1]"))
	}
	if c.Audit.RepeatSampleRate < 0 || c.Audit.RepeatSampleRate > 1 {
		errs = append(errs, errors.New("AUDIT_REPEAT_SAMPLE_RATE must be within [0,1]"))
	}
	return errors.Join(errs...)
}
