package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PROOFGATE_ADDR", "PROOFGATE_STORE", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "JWT_SIGNING_KEY", "ANCHOR_MODE", "REQUEST_TTL", "PROOF_TTL", "CORS_ALLOWED_ORIGINS", "STARTUP_RETRIES"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 5*time.Minute, cfg.Lifecycle.RequestTTL)
	assert.Equal(t, 3*time.Minute, cfg.Lifecycle.ProofTTL)
	assert.Equal(t, 60*time.Second, cfg.Lifecycle.ReaperInterval)
	assert.Equal(t, 500, cfg.Lifecycle.ReaperBatch)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "proofgate.audit", cfg.Kafka.AuditTopic)
	assert.Equal(t, AnchorNone, cfg.Anchor)
	assert.True(t, cfg.UsesDevSigningKey())
	assert.Empty(t, cfg.CORSAllowedOrigins)
	assert.Equal(t, 10, cfg.StartupRetries)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PROOFGATE_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/proofgate")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REQUEST_TTL", "10m")
	t.Setenv("ANCHOR_MODE", "simulated")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://verifier.example")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Minute, cfg.Lifecycle.RequestTTL)
	assert.Equal(t, AnchorSimulated, cfg.Anchor)
	assert.Equal(t, []string{"https://verifier.example"}, cfg.CORSAllowedOrigins)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"PROOFGATE_STORE": "mongo"}},
		{"postgres without url", map[string]string{"PROOFGATE_STORE": "postgres", "DATABASE_URL": ""}},
		{"redis without url", map[string]string{"PROOFGATE_STORE": "redis", "REDIS_URL": ""}},
		{"bad duration", map[string]string{"PROOFGATE_STORE": "memory", "REQUEST_TTL": "soon"}},
		{"bad anchor", map[string]string{"PROOFGATE_STORE": "memory", "ANCHOR_MODE": "chain"}},
		{"zero rate limit", map[string]string{"PROOFGATE_STORE": "memory", "RATE_LIMIT_REQUESTS_PER_MINUTE": "0"}},
		{"kafka without outbox", map[string]string{"PROOFGATE_STORE": "memory", "KAFKA_BROKERS": "k1:9092"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
