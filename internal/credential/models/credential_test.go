package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validAttestation() Attestation {
	return Attestation{
		Issuer:        "DigiLocker",
		FullName:      "Asha Rao",
		DateOfBirth:   "2000-01-01",
		Nationality:   "IN",
		Address:       "12 MG Road",
		IDNumberLast4: "1234",
		VerifiedAt:    now.Add(-time.Hour),
	}
}

func TestNewCredential(t *testing.T) {
	subjectID := id.SubjectID(uuid.New())

	t.Run("valid attestation is active", func(t *testing.T) {
		c, err := NewCredential(id.NewCredentialID(), subjectID, validAttestation(), now)
		require.NoError(t, err)
		assert.True(t, c.IsActive)
		assert.Equal(t, "****1234", c.MaskedIDNumber())
		assert.True(t, c.IsOwnedBy(subjectID))
	})

	t.Run("verifiedAt defaults to now", func(t *testing.T) {
		a := validAttestation()
		a.VerifiedAt = time.Time{}
		c, err := NewCredential(id.NewCredentialID(), subjectID, a, now)
		require.NoError(t, err)
		assert.Equal(t, now, c.VerifiedAt)
	})

	past := now.Add(-2 * time.Hour)
	tests := []struct {
		name   string
		mutate func(*Attestation)
	}{
		{"missing issuer", func(a *Attestation) { a.Issuer = " " }},
		{"missing name", func(a *Attestation) { a.FullName = "" }},
		{"bad dob", func(a *Attestation) { a.DateOfBirth = "01/01/2000" }},
		{"future dob", func(a *Attestation) { a.DateOfBirth = "2030-01-01" }},
		{"bad last4", func(a *Attestation) { a.IDNumberLast4 = "12a4" }},
		{"validUntil before verifiedAt", func(a *Attestation) { a.ValidUntil = &past }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAttestation()
			tt.mutate(&a)
			_, err := NewCredential(id.NewCredentialID(), subjectID, a, now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestCredential_Lifecycle(t *testing.T) {
	until := now.Add(time.Hour)
	a := validAttestation()
	a.ValidUntil = &until
	c, err := NewCredential(id.NewCredentialID(), id.SubjectID(uuid.New()), a, now)
	require.NoError(t, err)

	assert.False(t, c.IsExpired(now))
	assert.False(t, c.IsExpired(until), "validUntil itself is still valid")
	assert.True(t, c.IsExpired(until.Add(time.Second)))

	require.NoError(t, c.CanDeactivate())
	c.ApplyDeactivate(now)
	assert.False(t, c.IsActive)
	require.NotNil(t, c.DeactivatedAt)

	err = c.CanDeactivate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestCredential_BirthDate(t *testing.T) {
	c := &Credential{DateOfBirth: "1990-02-28"}
	dob, ok := c.BirthDate()
	require.True(t, ok)
	assert.Equal(t, 1990, dob.Year())

	_, ok = (&Credential{}).BirthDate()
	assert.False(t, ok)
	_, ok = (&Credential{DateOfBirth: "garbage"}).BirthDate()
	assert.False(t, ok)
}
