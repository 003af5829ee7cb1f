package handler

import (
	"strings"

	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// CreateRequestRequest is the verifier payload for a new verification request.
type CreateRequestRequest struct {
	RequestedFields []string `json:"requestedFields"`
	Purpose         string   `json:"purpose"`
}

const maxPurposeLength = 256

func (r *CreateRequestRequest) Validate() error {
	if len(r.RequestedFields) == 0 {
		return dErrors.New(dErrors.CodeValidation, "requestedFields must not be empty")
	}
	r.Purpose = strings.TrimSpace(r.Purpose)
	if len(r.Purpose) > maxPurposeLength {
		return dErrors.New(dErrors.CodeValidation, "purpose is too long")
	}
	return nil
}

// ApproveRequest optionally pins the credential backing the proof. When
// omitted the subject's active credential is used.
type ApproveRequest struct {
	CredentialID *string `json:"credentialId"`

	credentialID *id.CredentialID
}

func (r *ApproveRequest) Validate() error {
	if r.CredentialID == nil || strings.TrimSpace(*r.CredentialID) == "" {
		return nil
	}
	credentialID, err := id.ParseCredentialID(strings.TrimSpace(*r.CredentialID))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "credentialId must be a UUID")
	}
	r.credentialID = &credentialID
	return nil
}
