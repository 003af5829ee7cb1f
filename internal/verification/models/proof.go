package models

import (
	"time"

	"github.com/google/uuid"

	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// DefaultProofTTL bounds how long shared data stays valid after approval.
const DefaultProofTTL = 3 * time.Minute

// Proof is the minimal-disclosure artifact issued on approval.
//
// Invariants:
//   - SharedData only holds fields derived from the owning request's RequestedFields
//   - Revoked is monotonic: once true it stays true and RevokedAt never changes
//   - Validity is computed from now, ExpiresAt and Revoked; it is never stored
type Proof struct {
	ID           id.ProofID
	RequestID    id.RequestID
	SubjectID    id.SubjectID
	VerifierID   id.VerifierID
	VerifierName string
	CredentialID id.CredentialID
	SharedData   SharedData
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    *time.Time
}

// IsExpired reports whether the proof's window has passed.
func (p *Proof) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// IsActive reports an unrevoked proof strictly inside its window.
func (p *Proof) IsActive(now time.Time) bool {
	return !p.Revoked && now.Before(p.ExpiresAt)
}

// CanRevoke checks ownership and monotonicity.
// Errors: CodeForbidden for a non-owner, CodeAlreadyRevoked when already revoked.
func (p *Proof) CanRevoke(subjectID id.SubjectID) error {
	if p.SubjectID != subjectID {
		return dErrors.New(dErrors.CodeForbidden, "proof belongs to another subject")
	}
	if p.Revoked {
		return dErrors.New(dErrors.CodeAlreadyRevoked, "proof already revoked")
	}
	return nil
}

// ApplyRevoke marks the proof revoked. Callers check CanRevoke first.
func (p *Proof) ApplyRevoke(now time.Time) {
	p.Revoked = true
	p.RevokedAt = &now
}

// VisibleTo reports whether the caller is the proof's subject or verifier.
func (p *Proof) VisibleTo(callerID uuid.UUID) bool {
	return uuid.UUID(p.SubjectID) == callerID || uuid.UUID(p.VerifierID) == callerID
}
