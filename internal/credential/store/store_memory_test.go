package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofgate/internal/credential/models"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
)

func newCredential(subjectID id.SubjectID, createdAt time.Time) *models.Credential {
	return &models.Credential{
		ID:          id.NewCredentialID(),
		SubjectID:   subjectID,
		Issuer:      "DigiLocker",
		FullName:    "Asha Rao",
		DateOfBirth: "2000-01-01",
		VerifiedAt:  createdAt,
		IsActive:    true,
		CreatedAt:   createdAt,
	}
}

func TestInMemoryStore_OneActivePerSubject(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subjectID := id.SubjectID(uuid.New())
	now := time.Now()

	first := newCredential(subjectID, now)
	require.NoError(t, s.Create(ctx, first))

	err := s.Create(ctx, newCredential(subjectID, now))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	inactive := newCredential(subjectID, now)
	inactive.IsActive = false
	require.NoError(t, s.Create(ctx, inactive), "inactive credentials do not compete")

	require.NoError(t, s.Deactivate(ctx, first.ID, now))
	require.NoError(t, s.Create(ctx, newCredential(subjectID, now.Add(time.Second))))
}

func TestInMemoryStore_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subjectID := id.SubjectID(uuid.New())

	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Create(ctx, newCredential(subjectID, time.Now())) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryStore_Lookups(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subjectID := id.SubjectID(uuid.New())
	now := time.Now()

	older := newCredential(subjectID, now.Add(-time.Hour))
	older.IsActive = false
	newer := newCredential(subjectID, now)
	require.NoError(t, s.Create(ctx, older))
	require.NoError(t, s.Create(ctx, newer))

	active, err := s.FindActiveBySubject(ctx, subjectID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, active.ID)

	list, err := s.ListBySubject(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	_, err = s.FindByID(ctx, id.NewCredentialID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.FindActiveBySubject(ctx, id.SubjectID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_Deactivate(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c := newCredential(id.SubjectID(uuid.New()), time.Now())
	require.NoError(t, s.Create(ctx, c))

	require.NoError(t, s.Deactivate(ctx, c.ID, time.Now()))
	assert.ErrorIs(t, s.Deactivate(ctx, c.ID, time.Now()), sentinel.ErrInvalidState)
	assert.ErrorIs(t, s.Deactivate(ctx, id.NewCredentialID(), time.Now()), sentinel.ErrNotFound)

	got, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.NotNil(t, got.DeactivatedAt)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c := newCredential(id.SubjectID(uuid.New()), time.Now())
	require.NoError(t, s.Create(ctx, c))

	got, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	got.FullName = "mutated"

	again, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", again.FullName)
}
