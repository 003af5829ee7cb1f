// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	pgstrings "proofgate/pkg/platform/strings"
)

// StoreBackend selects the persistence implementation.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// AnchorMode selects how issued proofs are anchored.
type AnchorMode string

const (
	AnchorNone      AnchorMode = "none"
	AnchorSimulated AnchorMode = "simulated"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	Store         StoreBackend
	LogLevel      string
	AdminAPIToken string
	// CORSAllowedOrigins lists browser origins allowed to call the API. Empty disables CORS.
	CORSAllowedOrigins []string
	// StartupRetries bounds connection attempts to backing services at boot.
	StartupRetries int

	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Lifecycle LifecycleConfig
	RateLimit RateLimitConfig
	Anchor    AnchorMode
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit outbox relay. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
}

// LifecycleConfig holds the request and proof timing knobs.
type LifecycleConfig struct {
	RequestTTL     time.Duration
	ProofTTL       time.Duration
	ReaperInterval time.Duration
	ReaperBatch    int
}

// RateLimitConfig bounds verifier request creation.
type RateLimitConfig struct {
	RequestsPerMinute int
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:               getEnv("PROOFGATE_ADDR", ":8080"),
		Store:              StoreBackend(getEnv("PROOFGATE_STORE", string(StoreMemory))),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AdminAPIToken:      os.Getenv("ADMIN_API_TOKEN"),
		CORSAllowedOrigins: pgstrings.SplitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", devSigningKey),
			JWTIssuer:     getEnv("JWT_ISSUER", "proofgate"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:    pgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("AUDIT_TOPIC", "proofgate.audit"),
		},
		Anchor: AnchorMode(getEnv("ANCHOR_MODE", string(AnchorNone))),
	}

	var err error
	if cfg.Database.MaxOpenConns, err = getInt("DATABASE_MAX_OPEN_CONNS", 25); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxIdleConns, err = getInt("DATABASE_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Database.ConnMaxLifetime, err = getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 20); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = getInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = getDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.RelayInterval, err = getDuration("OUTBOX_RELAY_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Lifecycle.RequestTTL, err = getDuration("REQUEST_TTL", 5*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Lifecycle.ProofTTL, err = getDuration("PROOF_TTL", 3*time.Minute); err != nil {
		return Server{}, err
	}
	if cfg.Lifecycle.ReaperInterval, err = getDuration("REAPER_INTERVAL", 60*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Lifecycle.ReaperBatch, err = getInt("REAPER_BATCH", 500); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.RequestsPerMinute, err = getInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 30); err != nil {
		return Server{}, err
	}
	if cfg.StartupRetries, err = getInt("STARTUP_RETRIES", 10); err != nil {
		return Server{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (s Server) Validate() error {
	switch s.Store {
	case StoreMemory:
	case StorePostgres:
		if s.Database.URL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for store %q", s.Store)
		}
	case StoreRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("config: REDIS_URL is required for store %q", s.Store)
		}
	default:
		return fmt.Errorf("config: unknown PROOFGATE_STORE %q", s.Store)
	}
	switch s.Anchor {
	case AnchorNone, AnchorSimulated:
	default:
		return fmt.Errorf("config: unknown ANCHOR_MODE %q", s.Anchor)
	}
	if s.Lifecycle.RequestTTL <= 0 || s.Lifecycle.ProofTTL <= 0 {
		return fmt.Errorf("config: REQUEST_TTL and PROOF_TTL must be positive")
	}
	if s.Lifecycle.ReaperInterval <= 0 || s.Lifecycle.ReaperBatch <= 0 {
		return fmt.Errorf("config: reaper interval and batch must be positive")
	}
	if s.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_REQUESTS_PER_MINUTE must be positive")
	}
	if len(s.Kafka.Brokers) > 0 && s.Store != StorePostgres {
		return fmt.Errorf("config: KAFKA_BROKERS requires the postgres store (outbox)")
	}
	return nil
}

// UsesDevSigningKey reports whether the built-in development key is active.
func (s Server) UsesDevSigningKey() bool {
	return s.Auth.JWTSigningKey == devSigningKey
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
