package models

import (
	"regexp"
	"strings"
	"time"

	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// DateLayout is the storage format of DateOfBirth.
const DateLayout = "2006-01-02"

var last4Pattern = regexp.MustCompile(`^[0-9]{4}$`)

// Credential is the aggregate root for one attested identity record.
//
// Invariants:
//   - Issuer and FullName are non-empty
//   - DateOfBirth is empty or a past YYYY-MM-DD date
//   - IDNumberLast4 is empty or exactly four digits, and is never disclosed
//   - ValidUntil, when set, is after VerifiedAt
//   - Deactivation is one-way: IsActive goes true -> false only
//   - At most one active credential per subject (enforced by the store)
type Credential struct {
	ID            id.CredentialID
	SubjectID     id.SubjectID
	Issuer        string
	FullName      string
	DateOfBirth   string
	Nationality   string
	Address       string
	IDNumberLast4 string
	VerifiedAt    time.Time
	ValidUntil    *time.Time
	IsActive      bool
	DeactivatedAt *time.Time
	CreatedAt     time.Time
}

// Attestation carries the already-validated identity facts from an external source.
type Attestation struct {
	Issuer        string
	FullName      string
	DateOfBirth   string
	Nationality   string
	Address       string
	IDNumberLast4 string
	VerifiedAt    time.Time
	ValidUntil    *time.Time
}

// NewCredential builds an active credential after checking invariants.
func NewCredential(credentialID id.CredentialID, subjectID id.SubjectID, a Attestation, now time.Time) (*Credential, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject id cannot be nil")
	}
	issuer := strings.TrimSpace(a.Issuer)
	if issuer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer is required")
	}
	fullName := strings.TrimSpace(a.FullName)
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "fullName is required")
	}
	if a.DateOfBirth != "" {
		dob, err := time.Parse(DateLayout, a.DateOfBirth)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "dateOfBirth must be YYYY-MM-DD")
		}
		if dob.After(now) {
			return nil, dErrors.New(dErrors.CodeValidation, "dateOfBirth cannot be in the future")
		}
	}
	if a.IDNumberLast4 != "" && !last4Pattern.MatchString(a.IDNumberLast4) {
		return nil, dErrors.New(dErrors.CodeValidation, "idNumberLast4 must be four digits")
	}
	verifiedAt := a.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = now
	}
	if a.ValidUntil != nil && !a.ValidUntil.After(verifiedAt) {
		return nil, dErrors.New(dErrors.CodeValidation, "validUntil must be after verifiedAt")
	}
	return &Credential{
		ID:            credentialID,
		SubjectID:     subjectID,
		Issuer:        issuer,
		FullName:      fullName,
		DateOfBirth:   a.DateOfBirth,
		Nationality:   strings.TrimSpace(a.Nationality),
		Address:       strings.TrimSpace(a.Address),
		IDNumberLast4: a.IDNumberLast4,
		VerifiedAt:    verifiedAt,
		ValidUntil:    a.ValidUntil,
		IsActive:      true,
		CreatedAt:     now,
	}, nil
}

// IsExpired reports whether the credential's own validity window has passed.
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ValidUntil != nil && now.After(*c.ValidUntil)
}

// IsOwnedBy reports whether the subject holds this credential.
func (c *Credential) IsOwnedBy(subjectID id.SubjectID) bool {
	return c.SubjectID == subjectID
}

// CanDeactivate checks the one-way active -> inactive transition.
func (c *Credential) CanDeactivate() error {
	if !c.IsActive {
		return dErrors.New(dErrors.CodeConflict, "credential is already inactive")
	}
	return nil
}

// ApplyDeactivate performs the transition. Callers check CanDeactivate first.
func (c *Credential) ApplyDeactivate(now time.Time) {
	c.IsActive = false
	c.DeactivatedAt = &now
}

// BirthDate parses DateOfBirth. ok is false when absent or malformed.
func (c *Credential) BirthDate() (time.Time, bool) {
	if c.DateOfBirth == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, c.DateOfBirth)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MaskedIDNumber renders the last four digits as ****1234.
func (c *Credential) MaskedIDNumber() string {
	if c.IDNumberLast4 == "" {
		return ""
	}
	return "****" + c.IDNumberLast4
}
