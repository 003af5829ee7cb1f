package handler

import (
	"time"

	"proofgate/internal/credential/models"
)

// CredentialResponse is the subject-facing view. The ID number is masked.
type CredentialResponse struct {
	ID            string     `json:"id"`
	Issuer        string     `json:"issuer"`
	FullName      string     `json:"fullName"`
	DateOfBirth   string     `json:"dateOfBirth,omitempty"`
	Nationality   string     `json:"nationality,omitempty"`
	Address       string     `json:"address,omitempty"`
	IDNumber      string     `json:"idNumber,omitempty"`
	VerifiedAt    time.Time  `json:"verifiedAt"`
	ValidUntil    *time.Time `json:"validUntil,omitempty"`
	IsActive      bool       `json:"isActive"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

// ImportCredentialResponse is returned to the operator after an import.
type ImportCredentialResponse struct {
	ID        string `json:"id"`
	SubjectID string `json:"subjectId"`
	IsActive  bool   `json:"isActive"`
}

type listCredentialsResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
}

func toCredentialResponse(c *models.Credential) CredentialResponse {
	return CredentialResponse{
		ID:            c.ID.String(),
		Issuer:        c.Issuer,
		FullName:      c.FullName,
		DateOfBirth:   c.DateOfBirth,
		Nationality:   c.Nationality,
		Address:       c.Address,
		IDNumber:      c.MaskedIDNumber(),
		VerifiedAt:    c.VerifiedAt,
		ValidUntil:    c.ValidUntil,
		IsActive:      c.IsActive,
		DeactivatedAt: c.DeactivatedAt,
	}
}
