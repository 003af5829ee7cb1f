package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "proofgate/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSubjectID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSubjectID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseVerifierID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseCredentialID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, CredentialID(valid), id)
	})
}

func TestTokenIDs(t *testing.T) {
	t.Run("request IDs match VF-XXXXXX", func(t *testing.T) {
		for range 200 {
			id, err := NewRequestID()
			require.NoError(t, err)
			require.Len(t, id.String(), len("VF-")+6)
			_, err = ParseRequestID(id.String())
			require.NoError(t, err)
		}
	})

	t.Run("proof IDs match PROOF-XXXXXXXX", func(t *testing.T) {
		for range 200 {
			id, err := NewProofID()
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(id.String(), "PROOF-"))
			_, err = ParseProofID(id.String())
			require.NoError(t, err)
		}
	})

	t.Run("parse rejects malformed tokens", func(t *testing.T) {
		for _, bad := range []string{"", "VF-", "VF-abc123", "VF-ABC1234", "XX-ABC123", "VF-ABC12!", "PROOF-ABC"} {
			_, errReq := ParseRequestID(bad)
			_, errProof := ParseProofID(bad)
			assert.Error(t, errReq, bad)
			assert.Error(t, errProof, bad)
		}
	})
}

func TestParseAttributes(t *testing.T) {
	t.Run("empty list is a validation error", func(t *testing.T) {
		_, err := ParseAttributes(nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown attribute is rejected, not dropped", func(t *testing.T) {
		_, err := ParseAttributes([]string{"age", "dateOfBirth"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("blank entry is rejected", func(t *testing.T) {
		_, err := ParseAttributes([]string{"age", "  "})
		require.Error(t, err)
	})

	t.Run("keeps first-seen order and drops duplicates", func(t *testing.T) {
		attrs, err := ParseAttributes([]string{"address", " age", "address", "identity"})
		require.NoError(t, err)
		assert.Equal(t, []Attribute{AttributeAddress, AttributeAge, AttributeIdentity}, attrs)
	})
}

// TestTypeDistinction verifies the compiler keeps subject and verifier IDs apart.
func TestTypeDistinction(t *testing.T) {
	subject := SubjectID(uuid.New())
	verifier := VerifierID(uuid.New())

	// var _ SubjectID = verifier // compile error
	assert.NotEqual(t, uuid.UUID(subject), uuid.UUID(verifier))
}
