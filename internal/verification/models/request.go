package models

import (
	"time"

	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// DefaultRequestTTL is how long a verifier's request stays answerable.
const DefaultRequestTTL = 5 * time.Minute

// Request is the aggregate root for a verifier's ask.
//
// Invariants:
//   - RequestedFields is a non-empty ordered set drawn from the attribute vocabulary
//   - ExpiresAt is after CreatedAt
//   - Status only moves along the edges in Status's diagram
//   - SubjectID is set exactly when a subject approved or rejected
//   - ProofID is set exactly when Status is approved or revoked
type Request struct {
	ID              id.RequestID
	VerifierID      id.VerifierID
	VerifierName    string
	RequestedFields []id.Attribute
	Purpose         string
	Status          Status
	SubjectID       *id.SubjectID
	ProofID         *id.ProofID
	CreatedAt       time.Time
	ExpiresAt       time.Time
	DecidedAt       *time.Time
}

// NewRequest builds a pending request. fields must already be parsed.
func NewRequest(requestID id.RequestID, verifierID id.VerifierID, verifierName string, fields []id.Attribute, purpose string, now time.Time, ttl time.Duration) (*Request, error) {
	if verifierID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verifier id cannot be nil")
	}
	if len(fields) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "requestedFields must not be empty")
	}
	for _, f := range fields {
		if !f.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "unsupported requested field: "+f.String())
		}
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request ttl must be positive")
	}
	return &Request{
		ID:              requestID,
		VerifierID:      verifierID,
		VerifierName:    verifierName,
		RequestedFields: append([]id.Attribute(nil), fields...),
		Purpose:         purpose,
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// IsStale reports a pending request whose window has closed but whose
// stored status has not caught up yet.
func (r *Request) IsStale(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}

// Requested reports whether the verifier asked for the attribute.
func (r *Request) Requested(a id.Attribute) bool {
	for _, f := range r.RequestedFields {
		if f == a {
			return true
		}
	}
	return false
}

// CanDecide checks the guard shared by approve and reject.
// Errors: CodeExpired when past expiry or already expired, CodeAlreadyProcessed otherwise.
func (r *Request) CanDecide(now time.Time) error {
	switch {
	case r.Status == StatusExpired || r.IsStale(now):
		return dErrors.New(dErrors.CodeExpired, "verification request has expired")
	case r.Status != StatusPending:
		return dErrors.New(dErrors.CodeAlreadyProcessed, "verification request already "+string(r.Status))
	}
	return nil
}

// ApplyApprove records the approval. Callers check CanDecide first.
func (r *Request) ApplyApprove(subjectID id.SubjectID, proofID id.ProofID, now time.Time) {
	r.Status = StatusApproved
	r.SubjectID = &subjectID
	r.ProofID = &proofID
	r.DecidedAt = &now
}

// ApplyReject records the rejection. Callers check CanDecide first.
func (r *Request) ApplyReject(subjectID id.SubjectID, now time.Time) {
	r.Status = StatusRejected
	r.SubjectID = &subjectID
	r.DecidedAt = &now
}

// ApplyExpire moves a pending request to expired.
func (r *Request) ApplyExpire() {
	if r.Status == StatusPending {
		r.Status = StatusExpired
	}
}

// CanRevoke checks that the owning request is in approved.
func (r *Request) CanRevoke() error {
	if !r.Status.CanTransitionTo(StatusRevoked) {
		return dErrors.New(dErrors.CodeInvariantViolation, "only approved requests can be revoked")
	}
	return nil
}

// ApplyRevoke moves approved to revoked.
func (r *Request) ApplyRevoke() {
	r.Status = StatusRevoked
}

// View returns the request as a reader at now should see it: a stale
// pending request reads as expired even before storage catches up.
func (r *Request) View(now time.Time) Request {
	v := *r
	v.RequestedFields = append([]id.Attribute(nil), r.RequestedFields...)
	if v.IsStale(now) {
		v.Status = StatusExpired
	}
	return v
}
