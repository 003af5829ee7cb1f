// Package storetest holds the behavior every verification store must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofgate/internal/verification/models"
	"proofgate/internal/verification/service"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) service.Store

// base is truncated to microseconds so every backend round-trips it exactly.
var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("create and find request", func(t *testing.T) { testCreateFind(t, newStore(t)) })
	t.Run("approve with proof", func(t *testing.T) { testApprove(t, newStore(t)) })
	t.Run("approve guards", func(t *testing.T) { testApproveGuards(t, newStore(t)) })
	t.Run("concurrent approve has one winner", func(t *testing.T) { testConcurrentApprove(t, newStore(t)) })
	t.Run("reject", func(t *testing.T) { testReject(t, newStore(t)) })
	t.Run("expire", func(t *testing.T) { testExpire(t, newStore(t)) })
	t.Run("revoke", func(t *testing.T) { testRevoke(t, newStore(t)) })
	t.Run("list", func(t *testing.T) { testList(t, newStore(t)) })
}

func newRequest(t *testing.T, requestID id.RequestID, verifier id.VerifierID, createdAt time.Time) *models.Request {
	t.Helper()
	req, err := models.NewRequest(requestID, verifier, "Acme Bank",
		[]id.Attribute{id.AttributeAge, id.AttributeAddress}, "account opening", createdAt, 5*time.Minute)
	require.NoError(t, err)
	return req
}

func newProof(proofID id.ProofID, req *models.Request, subject id.SubjectID, now time.Time) *models.Proof {
	age, adult, address := 25, true, "Not provided"
	return &models.Proof{
		ID:           proofID,
		RequestID:    req.ID,
		SubjectID:    subject,
		VerifierID:   req.VerifierID,
		VerifierName: req.VerifierName,
		CredentialID: id.CredentialID(uuid.New()),
		SharedData:   models.SharedData{Age: &age, AgeVerified: &adult, Address: &address},
		CreatedAt:    now,
		ExpiresAt:    now.Add(3 * time.Minute),
	}
}

func testCreateFind(t *testing.T, store service.Store) {
	ctx := context.Background()
	req := newRequest(t, "VF-AAAAAA", id.VerifierID(uuid.New()), base)
	require.NoError(t, store.CreateRequest(ctx, req))
	assert.ErrorIs(t, store.CreateRequest(ctx, req), sentinel.ErrConflict)

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.VerifierID, got.VerifierID)
	assert.Equal(t, req.RequestedFields, got.RequestedFields)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, req.ExpiresAt.Equal(got.ExpiresAt))
	assert.Nil(t, got.SubjectID)
	assert.Nil(t, got.ProofID)

	_, err = store.FindRequest(ctx, "VF-ZZZZZZ")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func testApprove(t *testing.T, store service.Store) {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	req := newRequest(t, "VF-AAAAAA", id.VerifierID(uuid.New()), base)
	require.NoError(t, store.CreateRequest(ctx, req))

	now := base.Add(time.Minute)
	proof := newProof("PROOF-AAAAAAAA", req, subject, now)
	require.NoError(t, store.ApproveWithProof(ctx, req.ID, subject, proof, now))

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.ProofID)
	assert.Equal(t, proof.ID, *got.ProofID)
	require.NotNil(t, got.SubjectID)
	assert.Equal(t, subject, *got.SubjectID)

	stored, err := store.FindProof(ctx, proof.ID)
	require.NoError(t, err)
	assert.Equal(t, proof.SharedData, stored.SharedData)
	assert.Equal(t, req.ID, stored.RequestID)
	assert.False(t, stored.Revoked)

	byRequest, err := store.FindProofByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, proof.ID, byRequest.ID)

	second := newProof("PROOF-BBBBBBBB", req, subject, now)
	assert.ErrorIs(t, store.ApproveWithProof(ctx, req.ID, subject, second, now), sentinel.ErrInvalidState)
}

func testApproveGuards(t *testing.T, store service.Store) {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	verifier := id.VerifierID(uuid.New())

	missing := newRequest(t, "VF-ZZZZZZ", verifier, base)
	assert.ErrorIs(t, store.ApproveWithProof(ctx, missing.ID, subject, newProof("PROOF-ZZZZZZZZ", missing, subject, base), base),
		sentinel.ErrNotFound)

	stale := newRequest(t, "VF-AAAAAA", verifier, base)
	require.NoError(t, store.CreateRequest(ctx, stale))
	late := stale.ExpiresAt.Add(time.Second)
	assert.ErrorIs(t, store.ApproveWithProof(ctx, stale.ID, subject, newProof("PROOF-AAAAAAAA", stale, subject, late), late),
		sentinel.ErrExpired)
	_, err := store.FindProof(ctx, "PROOF-AAAAAAAA")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "a failed approval leaves no proof")

	onTime := newRequest(t, "VF-BBBBBB", verifier, base)
	require.NoError(t, store.CreateRequest(ctx, onTime))
	require.NoError(t, store.ApproveWithProof(ctx, onTime.ID, subject, newProof("PROOF-BBBBBBBB", onTime, subject, onTime.ExpiresAt), onTime.ExpiresAt),
		"the deadline instant itself is still inside the window")

	taken := newRequest(t, "VF-CCCCCC", verifier, base)
	require.NoError(t, store.CreateRequest(ctx, taken))
	assert.ErrorIs(t, store.ApproveWithProof(ctx, taken.ID, subject, newProof("PROOF-BBBBBBBB", taken, subject, base), base),
		sentinel.ErrConflict)
	got, err := store.FindRequest(ctx, taken.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "a proof id collision leaves the request pending")
}

func testConcurrentApprove(t *testing.T, store service.Store) {
	ctx := context.Background()
	req := newRequest(t, "VF-AAAAAA", id.VerifierID(uuid.New()), base)
	require.NoError(t, store.CreateRequest(ctx, req))

	const callers = 8
	proofIDs := []id.ProofID{
		"PROOF-AAAAAAA1", "PROOF-AAAAAAA2", "PROOF-AAAAAAA3", "PROOF-AAAAAAA4",
		"PROOF-AAAAAAA5", "PROOF-AAAAAAA6", "PROOF-AAAAAAA7", "PROOF-AAAAAAA8",
	}
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subject := id.SubjectID(uuid.New())
			results[i] = store.ApproveWithProof(ctx, req.ID, subject, newProof(proofIDs[i], req, subject, base), base)
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	}
	assert.Equal(t, 1, wins)

	var stored int
	for _, proofID := range proofIDs {
		if _, err := store.FindProof(ctx, proofID); err == nil {
			stored++
		}
	}
	assert.Equal(t, 1, stored)
}

func testReject(t *testing.T, store service.Store) {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	req := newRequest(t, "VF-AAAAAA", id.VerifierID(uuid.New()), base)
	require.NoError(t, store.CreateRequest(ctx, req))

	require.NoError(t, store.RejectRequest(ctx, req.ID, subject, base))
	assert.ErrorIs(t, store.RejectRequest(ctx, req.ID, subject, base), sentinel.ErrInvalidState)

	got, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Nil(t, got.ProofID)
	require.NotNil(t, got.DecidedAt)
}

func testExpire(t *testing.T, store service.Store) {
	ctx := context.Background()
	verifier := id.VerifierID(uuid.New())
	first := newRequest(t, "VF-AAAAAA", verifier, base)
	second := newRequest(t, "VF-BBBBBB", verifier, base.Add(time.Second))
	fresh := newRequest(t, "VF-CCCCCC", verifier, base.Add(10*time.Minute))
	for _, r := range []*models.Request{first, second, fresh} {
		require.NoError(t, store.CreateRequest(ctx, r))
	}

	assert.ErrorIs(t, store.ExpireRequest(ctx, first.ID, first.ExpiresAt), sentinel.ErrInvalidState,
		"not stale at the deadline itself")

	now := base.Add(10 * time.Minute)
	require.NoError(t, store.ExpireRequest(ctx, first.ID, now))
	assert.ErrorIs(t, store.ExpireRequest(ctx, first.ID, now), sentinel.ErrInvalidState)
	assert.ErrorIs(t, store.ExpireRequest(ctx, "VF-ZZZZZZ", now), sentinel.ErrNotFound)

	expired, err := store.ExpirePending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, second.ID, expired[0].ID)
	assert.Equal(t, models.StatusExpired, expired[0].Status)

	again, err := store.ExpirePending(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	got, err := store.FindRequest(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	subject := id.SubjectID(uuid.New())
	assert.ErrorIs(t, store.RejectRequest(ctx, first.ID, subject, now), sentinel.ErrExpired)
}

func testRevoke(t *testing.T, store service.Store) {
	ctx := context.Background()
	subject := id.SubjectID(uuid.New())
	req := newRequest(t, "VF-AAAAAA", id.VerifierID(uuid.New()), base)
	require.NoError(t, store.CreateRequest(ctx, req))
	proof := newProof("PROOF-AAAAAAAA", req, subject, base)
	require.NoError(t, store.ApproveWithProof(ctx, req.ID, subject, proof, base))

	revokedAt := base.Add(time.Minute)
	require.NoError(t, store.RevokeProof(ctx, proof.ID, revokedAt))
	assert.ErrorIs(t, store.RevokeProof(ctx, proof.ID, revokedAt.Add(time.Minute)), sentinel.ErrInvalidState)
	assert.ErrorIs(t, store.RevokeProof(ctx, "PROOF-ZZZZZZZZ", revokedAt), sentinel.ErrNotFound)

	got, err := store.FindProof(ctx, proof.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, revokedAt.Equal(*got.RevokedAt))

	gotReq, err := store.FindRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, gotReq.Status)
}

func testList(t *testing.T, store service.Store) {
	ctx := context.Background()
	verifier := id.VerifierID(uuid.New())
	subject := id.SubjectID(uuid.New())

	older := newRequest(t, "VF-AAAAAA", verifier, base)
	newer := newRequest(t, "VF-BBBBBB", verifier, base.Add(time.Second))
	other := newRequest(t, "VF-CCCCCC", id.VerifierID(uuid.New()), base)
	for _, r := range []*models.Request{older, newer, other} {
		require.NoError(t, store.CreateRequest(ctx, r))
	}

	list, err := store.ListRequestsByVerifier(ctx, verifier)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	require.NoError(t, store.ApproveWithProof(ctx, older.ID, subject, newProof("PROOF-AAAAAAAA", older, subject, base), base))
	require.NoError(t, store.ApproveWithProof(ctx, newer.ID, subject, newProof("PROOF-BBBBBBBB", newer, subject, base.Add(time.Second)), base.Add(time.Second)))
	require.NoError(t, store.RevokeProof(ctx, "PROOF-AAAAAAAA", base.Add(time.Second)))

	active, err := store.ListActiveProofsBySubject(ctx, subject, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, id.ProofID("PROOF-BBBBBBBB"), active[0].ID)

	active, err = store.ListActiveProofsBySubject(ctx, subject, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, active)
}
