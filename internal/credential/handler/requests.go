package handler

import (
	"strings"
	"time"

	"proofgate/internal/credential/models"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// ImportCredentialRequest is the admin payload for an externally attested credential.
type ImportCredentialRequest struct {
	SubjectID     string     `json:"subjectId"`
	Issuer        string     `json:"issuer"`
	FullName      string     `json:"fullName"`
	DateOfBirth   string     `json:"dateOfBirth"`
	Nationality   string     `json:"nationality"`
	Address       string     `json:"address"`
	IDNumberLast4 string     `json:"idNumberLast4"`
	VerifiedAt    *time.Time `json:"verifiedAt"`
	ValidUntil    *time.Time `json:"validUntil"`
	ReplaceActive bool       `json:"replaceActive"`

	subjectID id.SubjectID
}

// Validate checks shape; date and range rules are enforced by the model.
func (r *ImportCredentialRequest) Validate() error {
	subjectID, err := id.ParseSubjectID(strings.TrimSpace(r.SubjectID))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "subjectId must be a UUID")
	}
	r.subjectID = subjectID
	if strings.TrimSpace(r.Issuer) == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer is required")
	}
	if strings.TrimSpace(r.FullName) == "" {
		return dErrors.New(dErrors.CodeValidation, "fullName is required")
	}
	return nil
}

func (r *ImportCredentialRequest) attestation() models.Attestation {
	a := models.Attestation{
		Issuer:        r.Issuer,
		FullName:      r.FullName,
		DateOfBirth:   strings.TrimSpace(r.DateOfBirth),
		Nationality:   r.Nationality,
		Address:       r.Address,
		IDNumberLast4: strings.TrimSpace(r.IDNumberLast4),
		ValidUntil:    r.ValidUntil,
	}
	if r.VerifiedAt != nil {
		a.VerifiedAt = *r.VerifiedAt
	}
	return a
}
