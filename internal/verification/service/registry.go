package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"proofgate/internal/verification/anchor"
	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/platform/sentinel"
	"proofgate/pkg/requestcontext"
)

// CreateRequestCommand is a verifier's ask, not yet validated.
type CreateRequestCommand struct {
	VerifierID      id.VerifierID
	VerifierName    string
	RequestedFields []string
	Purpose         string
}

// ApproveCommand approves a request. A nil CredentialID selects the
// subject's active credential.
type ApproveCommand struct {
	RequestID    id.RequestID
	SubjectID    id.SubjectID
	CredentialID *id.CredentialID
}

// ApproveResult carries the issued proof and, when the notary answered, its receipt.
type ApproveResult struct {
	Proof   *models.Proof
	Receipt *anchor.Receipt
}

// RequestStatus is the verifier's view of a request and the proof it produced.
type RequestStatus struct {
	Request *models.Request
	Proof   *models.Proof
}

// CreateRequest validates the requested fields and stores a pending request
// under a fresh id, retrying when the id is already taken.
//
// Errors: CodeValidation for empty or unsupported fields.
func (s *Service) CreateRequest(ctx context.Context, cmd CreateRequestCommand) (req *models.Request, err error) {
	ctx, end := s.startSpan(ctx, "CreateRequest", attribute.String("verifier_id", cmd.VerifierID.String()))
	defer end(&err)

	fields, err := id.ParseAttributes(cmd.RequestedFields)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		requestID, err := s.newRequestID()
		if err != nil {
			return nil, err
		}
		req, err := models.NewRequest(requestID, cmd.VerifierID, cmd.VerifierName, fields, cmd.Purpose, now, s.requestTTL)
		if err != nil {
			return nil, err
		}
		err = s.store.CreateRequest(ctx, req)
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementIDCollision("request")
			continue
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification request")
		}

		s.metrics.IncrementRequestsCreated()
		s.logAudit(ctx, audit.EventRequestCreated,
			"verifier_id", cmd.VerifierID.String(),
			"resource_id", requestID.String(),
		)
		return req, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique request id")
}

// GetRequest loads a request. A pending request past its deadline is
// expired in storage before it is returned.
//
// Errors: CodeNotFound.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	req, err := s.store.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification request")
	}
	if req.IsStale(requestcontext.Now(ctx)) {
		if err := s.expire(ctx, req, "read"); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// GetPending is the subject's view before deciding: only pending requests
// are returned.
//
// Errors: CodeNotFound, CodeExpired, CodeAlreadyProcessed.
func (s *Service) GetPending(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.CanDecide(requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	return req, nil
}

// Status is the owning verifier's full view. Requests of other verifiers
// read as missing.
func (s *Service) Status(ctx context.Context, verifierID id.VerifierID, requestID id.RequestID) (*RequestStatus, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.VerifierID != verifierID {
		return nil, dErrors.New(dErrors.CodeNotFound, "verification request not found")
	}
	status := &RequestStatus{Request: req}
	if req.ProofID != nil {
		proof, err := s.store.FindProofByRequest(ctx, req.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proof for request")
		}
		status.Proof = proof
	}
	return status, nil
}

// ListByVerifier returns the verifier's requests, newest first, with stale
// pending ones expired on the way out.
func (s *Service) ListByVerifier(ctx context.Context, verifierID id.VerifierID) ([]*models.Request, error) {
	list, err := s.store.ListRequestsByVerifier(ctx, verifierID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification requests")
	}
	now := requestcontext.Now(ctx)
	for _, req := range list {
		if req.IsStale(now) {
			if err := s.expire(ctx, req, "read"); err != nil {
				return nil, err
			}
		}
	}
	return list, nil
}

// Approve resolves the subject's credential, issues a proof and moves the
// request to approved in one conditional write. Anchoring happens after the
// commit and never changes the outcome.
//
// Errors: CodeNotFound, CodeExpired, CodeAlreadyProcessed,
// CodeNoActiveCredential, CodeCredentialExpired.
func (s *Service) Approve(ctx context.Context, cmd ApproveCommand) (result *ApproveResult, err error) {
	ctx, end := s.startSpan(ctx, "Approve",
		attribute.String("request_id_vf", cmd.RequestID.String()),
		attribute.String("subject_id", cmd.SubjectID.String()),
	)
	defer end(&err)

	now := requestcontext.Now(ctx)
	req, err := s.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if err := req.CanDecide(now); err != nil {
		return nil, err
	}
	credential, err := s.credentials.Resolve(ctx, cmd.SubjectID, cmd.CredentialID)
	if err != nil {
		return nil, err
	}

	var proof *models.Proof
	for attempt := 0; attempt < maxIDAttempts && proof == nil; attempt++ {
		candidate, err := s.engine.Issue(req, cmd.SubjectID, credential, now)
		if err != nil {
			return nil, err
		}
		err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
			if err := s.store.ApproveWithProof(ctx, req.ID, cmd.SubjectID, candidate, now); err != nil {
				return err
			}
			if err := s.logAudit(ctx, audit.EventRequestApproved,
				"subject_id", cmd.SubjectID.String(),
				"verifier_id", req.VerifierID.String(),
				"resource_id", req.ID.String(),
				"decision", string(models.StatusApproved),
			); err != nil {
				return err
			}
			return s.logAudit(ctx, audit.EventProofIssued,
				"subject_id", cmd.SubjectID.String(),
				"verifier_id", req.VerifierID.String(),
				"resource_id", candidate.ID.String(),
			)
		})
		switch {
		case err == nil:
			proof = candidate
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncrementIDCollision("proof")
		default:
			return nil, decisionError(err)
		}
	}
	if proof == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "could not allocate a unique proof id")
	}
	req.ApplyApprove(cmd.SubjectID, proof.ID, now)

	s.metrics.IncrementTransition(models.StatusApproved)
	s.metrics.IncrementProofsIssued()

	return &ApproveResult{Proof: proof, Receipt: s.anchorProof(ctx, proof)}, nil
}

// Reject moves a pending request to rejected in one conditional write.
//
// Errors: CodeNotFound, CodeExpired, CodeAlreadyProcessed.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID) (req *models.Request, err error) {
	ctx, end := s.startSpan(ctx, "Reject",
		attribute.String("request_id_vf", requestID.String()),
		attribute.String("subject_id", subjectID.String()),
	)
	defer end(&err)

	now := requestcontext.Now(ctx)
	req, err = s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := req.CanDecide(now); err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.RejectRequest(ctx, requestID, subjectID, now); err != nil {
			return err
		}
		return s.logAudit(ctx, audit.EventRequestRejected,
			"subject_id", subjectID.String(),
			"verifier_id", req.VerifierID.String(),
			"resource_id", requestID.String(),
			"decision", string(models.StatusRejected),
		)
	})
	if err != nil {
		return nil, decisionError(err)
	}
	req.ApplyReject(subjectID, now)

	s.metrics.IncrementTransition(models.StatusRejected)
	return req, nil
}

// ExpireStale expires one batch of pending requests past their deadline and
// returns how many moved.
func (s *Service) ExpireStale(ctx context.Context, limit int) (n int, err error) {
	ctx, end := s.startSpan(ctx, "ExpireStale", attribute.Int("limit", limit))
	defer end(&err)

	expired, err := s.store.ExpirePending(ctx, requestcontext.Now(ctx), limit)
	for _, req := range expired {
		s.metrics.IncrementTransition(models.StatusExpired)
		s.logAudit(ctx, audit.EventRequestExpired,
			"verifier_id", req.VerifierID.String(),
			"resource_id", req.ID.String(),
			"reason", "sweep",
		)
	}
	if err != nil {
		return len(expired), dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire pending requests")
	}
	return len(expired), nil
}

// expire persists the expiry of a stale request and updates req in place.
// When another writer moved it first, req is reloaded instead.
func (s *Service) expire(ctx context.Context, req *models.Request, reason string) error {
	err := s.store.ExpireRequest(ctx, req.ID, requestcontext.Now(ctx))
	switch {
	case err == nil:
		req.ApplyExpire()
		s.metrics.IncrementTransition(models.StatusExpired)
		s.logAudit(ctx, audit.EventRequestExpired,
			"verifier_id", req.VerifierID.String(),
			"resource_id", req.ID.String(),
			"reason", reason,
		)
		return nil
	case errors.Is(err, sentinel.ErrInvalidState):
		fresh, err := s.store.FindRequest(ctx, req.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload verification request")
		}
		*req = *fresh
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire verification request")
	}
}

func (s *Service) anchorProof(ctx context.Context, proof *models.Proof) *anchor.Receipt {
	receipt, err := s.anchor.Anchor(ctx, proof.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "proof anchoring failed", "proof_id", proof.ID.String(), "error", err)
		}
		return nil
	}
	if receipt != nil {
		s.logAudit(ctx, audit.EventProofAnchored,
			"subject_id", proof.SubjectID.String(),
			"resource_id", proof.ID.String(),
			"reason", receipt.Hash,
		)
	}
	return receipt
}

// decisionError translates a failed conditional decide into a domain error.
func decisionError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "verification request not found")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeExpired, "verification request has expired")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeAlreadyProcessed, "verification request already processed")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record decision")
	}
}
