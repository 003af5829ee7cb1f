//go:build integration

// Package containers starts shared infrastructure for integration tests.
// Each container is started at most once per test binary and reused across
// suites; Ryuk reaps them when the process exits.
package containers

import (
	"context"
	"sync"
	"testing"
)

// Manager lazily starts and caches containers.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	redpanda *RedpandaContainer
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide Manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

// Postgres returns a migrated database, starting it on first use.
func (m *Manager) Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres == nil {
		c, err := startPostgres(context.Background())
		if err != nil {
			t.Fatalf("postgres: %v", err)
		}
		m.postgres = c
	}
	return m.postgres
}

// Redis returns a Redis instance, starting it on first use.
func (m *Manager) Redis(t *testing.T) *RedisContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redis == nil {
		c, err := startRedis(context.Background())
		if err != nil {
			t.Fatalf("redis: %v", err)
		}
		m.redis = c
	}
	return m.redis
}

// Redpanda returns a Kafka-compatible broker, starting it on first use.
func (m *Manager) Redpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redpanda == nil {
		c, err := startRedpanda(context.Background())
		if err != nil {
			t.Fatalf("redpanda: %v", err)
		}
		m.redpanda = c
	}
	return m.redpanda
}
