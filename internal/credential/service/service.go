// Package service implements the credential store operations: import,
// lookup, active-credential resolution and deactivation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"proofgate/internal/credential/metrics"
	"proofgate/internal/credential/models"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/platform/sentinel"
	"proofgate/pkg/requestcontext"
)

// Store is the persistence port for credentials.
type Store interface {
	Create(ctx context.Context, c *models.Credential) error
	FindByID(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	FindActiveBySubject(ctx context.Context, subjectID id.SubjectID) (*models.Credential, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error)
	Deactivate(ctx context.Context, credentialID id.CredentialID, at time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages subject credentials.
type Service struct {
	store          Store
	tx             StoreTx
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx overrides the transaction runner. Defaults to per-subject locking over store.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(store)
	}
	return s
}

// ImportCommand is a validated credential from an external attestation source.
type ImportCommand struct {
	SubjectID     id.SubjectID
	Attestation   models.Attestation
	ReplaceActive bool
}

// Import stores a new active credential for the subject. When the subject
// already has an active credential the import fails with CodeConflict unless
// ReplaceActive is set, in which case the old one is deactivated in the same
// transaction.
func (s *Service) Import(ctx context.Context, cmd ImportCommand) (*models.Credential, error) {
	now := requestcontext.Now(ctx)
	credential, err := models.NewCredential(id.NewCredentialID(), cmd.SubjectID, cmd.Attestation, now)
	if err != nil {
		return nil, err
	}

	var replaced *models.Credential
	err = s.tx.RunInTx(withTxSubject(ctx, cmd.SubjectID), func(ctx context.Context, store Store) error {
		current, err := store.FindActiveBySubject(ctx, cmd.SubjectID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active credential")
		case !cmd.ReplaceActive:
			return dErrors.New(dErrors.CodeConflict, "subject already has an active credential")
		default:
			if err := store.Deactivate(ctx, current.ID, now); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate previous credential")
			}
			replaced = current
			s.logAudit(ctx, audit.EventCredentialDeactivated,
				"subject_id", cmd.SubjectID.String(),
				"resource_id", current.ID.String(),
				"reason", "replaced",
			)
		}

		if err := store.Create(ctx, credential); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "subject already has an active credential")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store credential")
		}
		s.logAudit(ctx, audit.EventCredentialImported,
			"subject_id", cmd.SubjectID.String(),
			"resource_id", credential.ID.String(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementImported()
	if replaced != nil {
		s.metrics.IncrementDeactivated()
	}
	return credential, nil
}

// ListBySubject returns the subject's credentials, newest first.
func (s *Service) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	list, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list credentials")
	}
	return list, nil
}

// Resolve picks the credential backing an approval. With credentialID nil the
// subject's active credential is used.
//
// Errors: CodeNotFound when the credential is unknown or belongs to someone
// else, CodeNoActiveCredential when it is inactive or the subject has none,
// CodeCredentialExpired when its validUntil has passed.
func (s *Service) Resolve(ctx context.Context, subjectID id.SubjectID, credentialID *id.CredentialID) (*models.Credential, error) {
	start := time.Now()
	defer s.metrics.ObserveResolve(start)

	var (
		credential *models.Credential
		err        error
	)
	if credentialID == nil {
		credential, err = s.store.FindActiveBySubject(ctx, subjectID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoActiveCredential, "no active credential")
		}
	} else {
		credential, err = s.store.FindByID(ctx, *credentialID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
	}
	// Someone else's credential is indistinguishable from a missing one.
	if !credential.IsOwnedBy(subjectID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	if !credential.IsActive {
		return nil, dErrors.New(dErrors.CodeNoActiveCredential, "credential is not active")
	}
	if credential.IsExpired(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "credential has expired")
	}
	return credential, nil
}

// Deactivate soft-revokes one of the subject's credentials.
func (s *Service) Deactivate(ctx context.Context, subjectID id.SubjectID, credentialID id.CredentialID) (*models.Credential, error) {
	now := requestcontext.Now(ctx)
	var result *models.Credential
	err := s.tx.RunInTx(withTxSubject(ctx, subjectID), func(ctx context.Context, store Store) error {
		credential, err := store.FindByID(ctx, credentialID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "credential not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load credential")
		}
		if !credential.IsOwnedBy(subjectID) {
			return dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		if err := credential.CanDeactivate(); err != nil {
			return err
		}
		if err := store.Deactivate(ctx, credentialID, now); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "credential is already inactive")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate credential")
		}
		credential.ApplyDeactivate(now)
		result = credential
		s.logAudit(ctx, audit.EventCredentialDeactivated,
			"subject_id", subjectID.String(),
			"resource_id", credentialID.String(),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementDeactivated()
	return result, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.NewEvent(ctx, event, attributes))
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}
