// Package reaper periodically expires pending requests nobody read again.
// Reads expire stale requests on their own; this is the backstop.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"proofgate/pkg/requestcontext"
)

//go:generate mockgen -source=reaper.go -destination=mocks/reaper_mock.go -package=mocks Expirer

// Expirer expires one batch of stale requests and reports how many moved.
type Expirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// BatchRecorder counts requests expired per sweep.
type BatchRecorder interface {
	AddReaperExpired(n int)
}

// Reaper sweeps on a fixed interval.
type Reaper struct {
	expirer  Expirer
	interval time.Duration
	batch    int
	maxLoops int
	now      func() time.Time
	logger   *slog.Logger
	metrics  BatchRecorder
}

type Option func(*Reaper)

func WithInterval(d time.Duration) Option {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps requests expired per store call.
func WithBatchSize(n int) Option {
	return func(r *Reaper) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		r.logger = logger
	}
}

func WithMetrics(m BatchRecorder) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

// WithClock overrides the sweep clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) {
		r.now = now
	}
}

func New(expirer Expirer, opts ...Option) *Reaper {
	r := &Reaper{
		expirer:  expirer,
		interval: 60 * time.Second,
		batch:    500,
		maxLoops: 100,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps until ctx is cancelled. A failed sweep is logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// RunOnce drains stale requests batch by batch until a short batch shows
// nothing is left, and returns the total expired. Re-running finds nothing.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	ctx = requestcontext.WithTime(ctx, r.now().UTC())
	total := 0
	for range r.maxLoops {
		n, err := r.expirer.ExpireStale(ctx, r.batch)
		total += n
		if err != nil {
			r.record(total)
			return total, err
		}
		if n < r.batch {
			break
		}
	}
	r.record(total)
	if total > 0 {
		r.logger.InfoContext(ctx, "expired stale verification requests", "count", total)
	}
	return total, nil
}

func (r *Reaper) record(n int) {
	if r.metrics != nil {
		r.metrics.AddReaperExpired(n)
	}
}
