package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	credhandler "proofgate/internal/credential/handler"
	credmetrics "proofgate/internal/credential/metrics"
	credservice "proofgate/internal/credential/service"
	credstore "proofgate/internal/credential/store"
	jwttoken "proofgate/internal/jwt_token"
	"proofgate/internal/platform/config"
	"proofgate/internal/platform/httpserver"
	"proofgate/internal/platform/logger"
	httpmetrics "proofgate/internal/platform/metrics"
	rlmetrics "proofgate/internal/ratelimit/metrics"
	rlmiddleware "proofgate/internal/ratelimit/middleware"
	rlstore "proofgate/internal/ratelimit/store"
	"proofgate/internal/verification/anchor"
	vhandler "proofgate/internal/verification/handler"
	vmetrics "proofgate/internal/verification/metrics"
	"proofgate/internal/verification/reaper"
	vservice "proofgate/internal/verification/service"
	vmemory "proofgate/internal/verification/store/memory"
	vpostgres "proofgate/internal/verification/store/postgres"
	vredis "proofgate/internal/verification/store/redis"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/platform/audit/publisher"
	auditmemory "proofgate/pkg/platform/audit/store/memory"
	auditpostgres "proofgate/pkg/platform/audit/store/postgres"
	"proofgate/pkg/platform/audit/worker"
	"proofgate/pkg/platform/httputil"
	"proofgate/pkg/platform/middleware/metadata"
	request "proofgate/pkg/platform/middleware/request"
	"proofgate/pkg/platform/middleware/requesttime"
)

const (
	shutdownTimeout = 10 * time.Second
	handlerTimeout  = 10 * time.Second
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("proofgate exited", "error", err)
		os.Exit(1)
	}
}

// verificationStore is the store surface main needs beyond the service port.
type verificationStore interface {
	vservice.Store
	Ping(ctx context.Context) error
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.UsesDevSigningKey() {
		log.Warn("using the development JWT signing key; set JWT_SIGNING_KEY in production")
	}
	if cfg.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN is empty; credential import is disabled")
	}

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	verificationMetrics := vmetrics.New(reg)

	// Audit: the Postgres outbox joins the caller's transaction, so it stays
	// synchronous. The in-memory trail is buffered off the request path.
	var auditStore audit.Store
	var auditOpts []publisher.Option
	if in.db != nil {
		auditStore = auditpostgres.New(in.db)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
		auditOpts = append(auditOpts, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	}
	auditPublisher := publisher.NewPublisher(auditStore, auditOpts...)
	defer auditPublisher.Close()

	credentialOpts := []credservice.Option{
		credservice.WithLogger(log),
		credservice.WithAuditPublisher(auditPublisher),
		credservice.WithMetrics(credmetrics.New(reg)),
	}
	var credentialStore credservice.Store
	if in.db != nil {
		credentialStore = credstore.NewPostgres(in.db)
		credentialOpts = append(credentialOpts, credservice.WithTx(newCredentialPostgresTx(in.db)))
	} else {
		credentialStore = credstore.NewInMemoryStore()
	}
	credentials := credservice.New(credentialStore, credentialOpts...)

	verificationOpts := []vservice.Option{
		vservice.WithLogger(log),
		vservice.WithAuditPublisher(auditPublisher),
		vservice.WithMetrics(verificationMetrics),
		vservice.WithRequestTTL(cfg.Lifecycle.RequestTTL),
		vservice.WithProofTTL(cfg.Lifecycle.ProofTTL),
	}
	var store verificationStore
	switch cfg.Store {
	case config.StorePostgres:
		store = vpostgres.New(in.db)
		verificationOpts = append(verificationOpts, vservice.WithTx(newVerificationPostgresTx(in.db)))
	case config.StoreRedis:
		store = vredis.New(in.redis.Client)
	default:
		store = vmemory.New()
	}

	var proofAnchor anchor.Anchor = anchor.Noop{}
	if cfg.Anchor == config.AnchorSimulated {
		proofAnchor = anchor.NewGuarded(anchor.NewSimulated(time.Now),
			anchor.WithLogger(log),
			anchor.WithFailureRecorder(verificationMetrics),
		)
	}

	verifications := vservice.New(store, credentials,
		append(verificationOpts, vservice.WithAnchor(proofAnchor))...,
	)

	limiter := newLimiter(cfg, in, log, rlmetrics.New(reg))
	jwtValidator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer))

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(httpmetrics.New(reg).Middleware)
	r.Use(request.Logger(log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Timeout(handlerTimeout))
	r.Use(request.ContentTypeJSON)

	r.Get("/healthz", healthHandler(store, in))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	credhandler.New(credentials, log, jwtValidator, cfg.AdminAPIToken).Register(r)
	vhandler.New(verifications, log, jwtValidator,
		vhandler.WithCreateLimit(limiter.RequireRequestBudget()),
	).Register(r)

	var root http.Handler = r
	if len(cfg.CORSAllowedOrigins) > 0 {
		root = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         600,
		}).Handler(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, httpserver.New(cfg.Addr, root), log, shutdownTimeout)
	})
	g.Go(func() error {
		return reaper.New(verifications,
			reaper.WithInterval(cfg.Lifecycle.ReaperInterval),
			reaper.WithBatchSize(cfg.Lifecycle.ReaperBatch),
			reaper.WithLogger(log),
			reaper.WithMetrics(verificationMetrics),
		).Run(gctx)
	})
	if in.producer != nil {
		relay := worker.NewWorker(auditpostgres.New(in.db), in.producer, cfg.Kafka.AuditTopic,
			worker.WithInterval(cfg.Kafka.RelayInterval),
			worker.WithLogger(log),
		)
		g.Go(func() error { return relay.Run(gctx) })
	}

	log.Info("proofgate started",
		"addr", cfg.Addr,
		"store", string(cfg.Store),
		"anchor", string(cfg.Anchor),
		"audit_relay", in.producer != nil,
	)
	return g.Wait()
}

func newLimiter(cfg config.Server, in *infra, log *slog.Logger, m *rlmetrics.Metrics) *rlmiddleware.Limiter {
	opts := []rlmiddleware.Option{rlmiddleware.WithLogger(log), rlmiddleware.WithMetrics(m)}
	if in.redis == nil {
		return rlmiddleware.NewLimiter(rlstore.NewInMemoryStore(), cfg.RateLimit.RequestsPerMinute, opts...)
	}
	opts = append(opts, rlmiddleware.WithFallback(rlstore.NewInMemoryStore()))
	return rlmiddleware.NewLimiter(rlstore.NewRedisStore(in.redis.Client), cfg.RateLimit.RequestsPerMinute, opts...)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthHandler pings every configured dependency concurrently.
func healthHandler(store verificationStore, in *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]func(context.Context) error{"store": store.Ping}
		if in.redis != nil {
			checks["redis"] = in.redis.Health
		}
		if in.producer != nil {
			checks["kafka"] = in.producer.Ping
		}

		var (
			mu   sync.Mutex
			g    errgroup.Group
			errs = make(map[string]error, len(checks))
		)
		for name, check := range checks {
			g.Go(func() error {
				err := check(ctx)
				mu.Lock()
				errs[name] = err
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		results := make(map[string]string, len(checks))
		status, code := "ok", http.StatusOK
		for name, err := range errs {
			if err != nil {
				results[name] = "unavailable"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, code, healthResponse{Status: status, Checks: results})
	}
}
