// Package domain holds the domain primitives shared across bounded contexts.
// Values are constructed through Parse* functions at trust boundaries; direct
// casting bypasses validation and is reserved for stores rehydrating trusted rows.
package domain

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"

	dErrors "proofgate/pkg/domain-errors"
)

// SubjectID identifies the person who holds credentials and approves requests.
type SubjectID uuid.UUID

// VerifierID identifies the business asking for proof.
type VerifierID uuid.UUID

// CredentialID identifies one attested identity record.
type CredentialID uuid.UUID

func (id SubjectID) String() string    { return uuid.UUID(id).String() }
func (id VerifierID) String() string   { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id VerifierID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewCredentialID returns a random credential identifier.
func NewCredentialID() CredentialID { return CredentialID(uuid.New()) }

func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s, "subject ID")
	return SubjectID(u), err
}

func ParseVerifierID(s string) (VerifierID, error) {
	u, err := parseUUID(s, "verifier ID")
	return VerifierID(u), err
}

func ParseCredentialID(s string) (CredentialID, error) {
	u, err := parseUUID(s, "credential ID")
	return CredentialID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// Token IDs double as bearer-style lookup handles, so they are drawn from
// crypto/rand over a restricted alphabet and never from a counter.
const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	requestIDPrefix = "VF-"
	requestIDLength = 6
	proofIDPrefix   = "PROOF-"
	proofIDLength   = 8
)

// RequestID identifies a verification request, formatted VF-XXXXXX.
type RequestID string

// ProofID identifies an issued proof, formatted PROOF-XXXXXXXX.
type ProofID string

func (id RequestID) String() string { return string(id) }
func (id ProofID) String() string   { return string(id) }

// NewRequestID draws a fresh request ID. Uniqueness is the caller's job: the
// registry retries against the store until it finds a free one.
func NewRequestID() (RequestID, error) {
	suffix, err := randomToken(requestIDLength)
	if err != nil {
		return "", err
	}
	return RequestID(requestIDPrefix + suffix), nil
}

// NewProofID draws a fresh proof ID.
func NewProofID() (ProofID, error) {
	suffix, err := randomToken(proofIDLength)
	if err != nil {
		return "", err
	}
	return ProofID(proofIDPrefix + suffix), nil
}

func ParseRequestID(s string) (RequestID, error) {
	if !validToken(s, requestIDPrefix, requestIDLength) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid request ID")
	}
	return RequestID(s), nil
}

func ParseProofID(s string) (ProofID, error) {
	if !validToken(s, proofIDPrefix, proofIDLength) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid proof ID")
	}
	return ProofID(s), nil
}

func randomToken(n int) (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "random source unavailable")
		}
		buf[i] = tokenAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

func validToken(s, prefix string, n int) bool {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || len(rest) != n {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(tokenAlphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}
