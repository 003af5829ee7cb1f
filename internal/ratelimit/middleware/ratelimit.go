// Package middleware enforces per-verifier request creation budgets.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"proofgate/internal/ratelimit/models"
	dErrors "proofgate/pkg/domain-errors"
	"proofgate/pkg/platform/circuit"
	"proofgate/pkg/platform/httputil"
	request "proofgate/pkg/platform/middleware/request"
	"proofgate/pkg/requestcontext"
)

// Store is a sliding window counter.
type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.Result, error)
}

// Metrics is the subset of ratelimit metrics the middleware records.
type Metrics interface {
	RecordDecision(allowed bool)
	IncrementFallback()
	IncrementStoreErrors()
}

// Limiter checks budgets against a primary store and falls back to a local
// store while the primary is failing.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limit    models.Limit
	logger   *slog.Logger
	metrics  Metrics
}

type Option func(*Limiter)

func WithFallback(s Store) Option {
	return func(l *Limiter) { l.fallback = s }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) { l.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

type noopMetrics struct{}

func (noopMetrics) RecordDecision(bool)   {}
func (noopMetrics) IncrementFallback()    {}
func (noopMetrics) IncrementStoreErrors() {}

// NewLimiter allows requestsPerMinute hits per key in any trailing minute.
func NewLimiter(primary Store, requestsPerMinute int, opts ...Option) *Limiter {
	l := &Limiter{
		primary: primary,
		limit:   models.Limit{RequestsPerWindow: requestsPerMinute, Window: time.Minute},
		breaker: circuit.New("ratelimit"),
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one hit for key.
func (l *Limiter) Check(ctx context.Context, key string) (*models.Result, error) {
	if l.fallback == nil {
		return l.primary.Allow(ctx, key, l.limit)
	}
	if l.breaker.IsOpen() && !l.breaker.Allow() {
		l.metrics.IncrementFallback()
		return l.fallback.Allow(ctx, key, l.limit)
	}

	res, err := l.primary.Allow(ctx, key, l.limit)
	if err != nil {
		l.metrics.IncrementStoreErrors()
		if _, change := l.breaker.RecordFailure(); change.Opened {
			l.logger.WarnContext(ctx, "rate limit store unavailable, using local fallback", "error", err)
		}
		l.metrics.IncrementFallback()
		return l.fallback.Allow(ctx, key, l.limit)
	}
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		l.logger.InfoContext(ctx, "rate limit store recovered")
	}
	return res, nil
}

// RequireRequestBudget limits request creation per authenticated verifier.
// Must run after auth.RequireAuth.
func (l *Limiter) RequireRequestBudget() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Principal(ctx)
			if caller.IsZero() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}

			res, err := l.Check(ctx, models.RequestCreationKey(caller.ID.String()))
			if err != nil {
				l.logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed"))
				return
			}
			l.metrics.RecordDecision(res.Allowed)
			addRateLimitHeaders(w, res)

			if !res.Allowed {
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"verifier_id", caller.ID.String(),
					"request_id", request.GetRequestID(ctx),
				)
				writeRateLimitExceeded(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, res *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, res *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, models.ExceededResponse{
		Error:      string(dErrors.CodeRateLimited),
		Message:    "Too many verification requests. Please try again later.",
		RetryAfter: res.RetryAfter,
	})
}
