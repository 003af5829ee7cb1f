// Package service runs the verification lifecycle: the request registry,
// proof issuance and the proof ledger. Every status change goes through a
// single conditional write in the store; this package never decides a
// transition from a value it read earlier.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	credmodels "proofgate/internal/credential/models"
	"proofgate/internal/verification/anchor"
	"proofgate/internal/verification/metrics"
	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/requestcontext"
)

// Store is the persistence port for requests and proofs.
//
// Conditional writes report why they did not apply through sentinel errors:
// ErrNotFound, ErrInvalidState (status moved on), ErrExpired (deadline
// passed) and ErrConflict (id already taken).
type Store interface {
	CreateRequest(ctx context.Context, r *models.Request) error
	FindRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	ListRequestsByVerifier(ctx context.Context, verifierID id.VerifierID) ([]*models.Request, error)
	ApproveWithProof(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, proof *models.Proof, now time.Time) error
	RejectRequest(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, now time.Time) error
	ExpireRequest(ctx context.Context, requestID id.RequestID, now time.Time) error
	ExpirePending(ctx context.Context, now time.Time, limit int) ([]*models.Request, error)
	FindProof(ctx context.Context, proofID id.ProofID) (*models.Proof, error)
	FindProofByRequest(ctx context.Context, requestID id.RequestID) (*models.Proof, error)
	ListActiveProofsBySubject(ctx context.Context, subjectID id.SubjectID, now time.Time) ([]*models.Proof, error)
	RevokeProof(ctx context.Context, proofID id.ProofID, now time.Time) error
}

// CredentialResolver picks the credential backing an approval.
type CredentialResolver interface {
	Resolve(ctx context.Context, subjectID id.SubjectID, credentialID *id.CredentialID) (*credmodels.Credential, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// TxRunner scopes a state change and its audit records to one unit of work.
// The Postgres wiring puts a SQL transaction on ctx so the store write and
// the outbox rows commit together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// maxIDAttempts bounds collision retries for generated request and proof ids.
const maxIDAttempts = 8

// Service manages verification requests and the proofs they produce.
type Service struct {
	store          Store
	credentials    CredentialResolver
	engine         *ProofEngine
	anchor         anchor.Anchor
	logger         *slog.Logger
	auditPublisher AuditPublisher
	tx             TxRunner
	strictAudit    bool
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	requestTTL     time.Duration
	newRequestID   func() (id.RequestID, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTx runs each transition and its audit events in one transaction. A
// failed audit write then fails the transition instead of being logged.
func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
			s.strictAudit = true
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAnchor sets the notary called after each issuance. Defaults to anchor.Noop.
func WithAnchor(a anchor.Anchor) Option {
	return func(s *Service) {
		if a != nil {
			s.anchor = a
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithRequestTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.requestTTL = ttl
		}
	}
}

func WithProofTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.engine = NewProofEngine(ttl)
		}
	}
}

// New constructs a Service.
func New(store Store, credentials CredentialResolver, opts ...Option) *Service {
	s := &Service{
		store:        store,
		credentials:  credentials,
		engine:       NewProofEngine(models.DefaultProofTTL),
		anchor:       anchor.Noop{},
		tx:           directTx{},
		tracer:       otel.Tracer("proofgate/verification"),
		requestTTL:   models.DefaultRequestTTL,
		newRequestID: id.NewRequestID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// startSpan opens a span named after the operation and returns an end func
// that records err on the span.
func (s *Service) startSpan(ctx context.Context, op string, kv ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "verification."+op, trace.WithAttributes(kv...))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, (*errp).Error())
		}
		span.End()
	}
}

// logAudit logs and emits an audit event. The emit error is returned only
// when the event is part of the caller's transaction.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) error {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return nil
	}
	err := s.auditPublisher.Emit(ctx, audit.NewEvent(ctx, event, attributes))
	if err == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
	if s.strictAudit {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}
