package service

import (
	"time"

	credmodels "proofgate/internal/credential/models"
	"proofgate/internal/verification/disclosure"
	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// ProofEngine turns an approved request and its credential into a proof.
type ProofEngine struct {
	ttl   time.Duration
	newID func() (id.ProofID, error)
}

func NewProofEngine(ttl time.Duration) *ProofEngine {
	return &ProofEngine{ttl: ttl, newID: id.NewProofID}
}

// Issue applies the disclosure policy to every requested field and stamps a
// fresh proof id. Each call draws a new id, so callers retry Issue on a
// collision.
func (e *ProofEngine) Issue(req *models.Request, subjectID id.SubjectID, credential *credmodels.Credential, now time.Time) (*models.Proof, error) {
	if !credential.IsOwnedBy(subjectID) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential does not belong to the approving subject")
	}
	proofID, err := e.newID()
	if err != nil {
		return nil, err
	}
	return &models.Proof{
		ID:           proofID,
		RequestID:    req.ID,
		SubjectID:    subjectID,
		VerifierID:   req.VerifierID,
		VerifierName: req.VerifierName,
		CredentialID: credential.ID,
		SharedData:   disclosure.Disclose(req.RequestedFields, credential, now),
		CreatedAt:    now,
		ExpiresAt:    now.Add(e.ttl),
	}, nil
}
