package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/platform/sentinel"
	"proofgate/pkg/requestcontext"
)

// GetProof returns a proof to its subject or verifier. Anyone else gets CodeNotFound.
func (s *Service) GetProof(ctx context.Context, callerID uuid.UUID, proofID id.ProofID) (*models.Proof, error) {
	proof, err := s.store.FindProof(ctx, proofID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proof")
	}
	if !proof.VisibleTo(callerID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
	}
	return proof, nil
}

// ListActiveProofs returns the subject's unrevoked, unexpired proofs, newest first.
func (s *Service) ListActiveProofs(ctx context.Context, subjectID id.SubjectID) ([]*models.Proof, error) {
	proofs, err := s.store.ListActiveProofsBySubject(ctx, subjectID, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list proofs")
	}
	return proofs, nil
}

// RevokeProof revokes the subject's proof and moves its request from
// approved to revoked in the same write. revokedAt is set once and never
// moves again.
//
// Errors: CodeNotFound, CodeForbidden for another subject's proof,
// CodeAlreadyRevoked.
func (s *Service) RevokeProof(ctx context.Context, proofID id.ProofID, subjectID id.SubjectID) (proof *models.Proof, err error) {
	ctx, end := s.startSpan(ctx, "RevokeProof",
		attribute.String("proof_id", proofID.String()),
		attribute.String("subject_id", subjectID.String()),
	)
	defer end(&err)

	proof, err = s.store.FindProof(ctx, proofID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proof")
	}
	if err := proof.CanRevoke(subjectID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			s.logAudit(ctx, audit.EventAccessDenied,
				"subject_id", subjectID.String(),
				"resource_id", proofID.String(),
				"reason", "proof belongs to another subject",
			)
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.RevokeProof(ctx, proofID, now); err != nil {
			return err
		}
		return s.logAudit(ctx, audit.EventProofRevoked,
			"subject_id", subjectID.String(),
			"verifier_id", proof.VerifierID.String(),
			"resource_id", proofID.String(),
		)
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyRevoked, "proof already revoked")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "proof not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke proof")
		}
	}
	proof.ApplyRevoke(now)

	s.metrics.IncrementProofsRevoked()
	s.metrics.IncrementTransition(models.StatusRevoked)
	return proof, nil
}
