package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"proofgate/internal/platform/config"
	"proofgate/internal/platform/kafka"
	"proofgate/internal/platform/postgres"
	platformredis "proofgate/internal/platform/redis"
)

// infra holds connections to backing services. Fields are nil when the
// configuration does not call for them.
type infra struct {
	db       *sql.DB
	redis    *platformredis.Client
	producer *kafka.Producer
}

func (i *infra) Close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

// openInfra connects to what cfg selects, retrying each dependency while it
// comes up alongside the service.
func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{}
	retry := func(name string, op func() error) error {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(cfg.StartupRetries, 0))),
			ctx,
		)
		return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
			log.Warn("dependency not ready, retrying", "dependency", name, "wait", wait.String(), "error", err)
		})
	}

	if cfg.Store == config.StorePostgres {
		if err := retry("postgres", func() error {
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			in.db = db
			return nil
		}); err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, in.db); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if cfg.Redis.URL != "" {
		if err := retry("redis", func() error {
			client, err := platformredis.New(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			in.redis = client
			return nil
		}); err != nil {
			in.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, "proofgate")
		if err != nil {
			in.Close()
			return nil, err
		}
		in.producer = producer
		if err := retry("kafka", func() error {
			return producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, 3, 1)
		}); err != nil {
			in.Close()
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
	}
	return in, nil
}
