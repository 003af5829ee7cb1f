// Package worker relays audit records from the Postgres outbox to Kafka.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"proofgate/internal/platform/kafka"
	audit "proofgate/pkg/platform/audit"
)

//go:generate mockgen -source=worker.go -destination=mocks/worker_mock.go -package=mocks OutboxSource,Sink

// OutboxSource yields unpublished outbox rows and checkpoints delivered ones.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Sink publishes records to the message bus.
type Sink interface {
	Publish(ctx context.Context, records ...kafka.Record) error
}

// Worker polls the outbox on an interval and forwards batches to the sink.
type Worker struct {
	source   OutboxSource
	sink     Sink
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize caps rows published per tick.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func NewWorker(source OutboxSource, sink Sink, topic string, opts ...Option) *Worker {
	w := &Worker{
		source:   source,
		sink:     sink,
		topic:    topic,
		interval: time.Second,
		batch:    100,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Tick failures are logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("outbox relay failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were delivered.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	entries, err := w.source.FetchUnpublished(ctx, w.batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]kafka.Record, len(entries))
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		records[i] = kafka.Record{
			Topic: w.topic,
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
		}
		ids[i] = e.ID
	}

	if err := w.sink.Publish(ctx, records...); err != nil {
		return 0, err
	}
	if err := w.source.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	w.logger.Debug("outbox batch relayed", "count", len(entries), "topic", w.topic)
	return len(entries), nil
}
