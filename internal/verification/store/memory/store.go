// Package memory keeps verification requests and proofs in process memory.
// A single mutex covers both maps, so every compound transition is atomic
// with respect to readers.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
)

type Store struct {
	mu              sync.RWMutex
	requests        map[id.RequestID]*models.Request
	proofs          map[id.ProofID]*models.Proof
	proofsByRequest map[id.RequestID]id.ProofID
}

func New() *Store {
	return &Store{
		requests:        make(map[id.RequestID]*models.Request),
		proofs:          make(map[id.ProofID]*models.Proof),
		proofsByRequest: make(map[id.RequestID]id.ProofID),
	}
}

// CreateRequest inserts a pending request. Returns sentinel.ErrConflict when the id is taken.
func (s *Store) CreateRequest(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *Store) FindRequest(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(r), nil
}

// ListRequestsByVerifier returns the verifier's requests, newest first.
func (s *Store) ListRequestsByVerifier(_ context.Context, verifierID id.VerifierID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, r := range s.requests {
		if r.VerifierID == verifierID {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ApproveWithProof moves a pending request to approved and stores its proof
// in one step.
//
// Errors: sentinel.ErrNotFound, sentinel.ErrExpired when past expiry,
// sentinel.ErrInvalidState when no longer pending, sentinel.ErrConflict when
// the proof id is taken.
func (s *Store) ApproveWithProof(_ context.Context, requestID id.RequestID, subjectID id.SubjectID, proof *models.Proof, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.decidableLocked(requestID, now)
	if err != nil {
		return err
	}
	if _, taken := s.proofs[proof.ID]; taken {
		return sentinel.ErrConflict
	}
	if _, issued := s.proofsByRequest[requestID]; issued {
		return sentinel.ErrInvalidState
	}
	r.ApplyApprove(subjectID, proof.ID, now)
	cp := *proof
	s.proofs[proof.ID] = &cp
	s.proofsByRequest[requestID] = proof.ID
	return nil
}

// RejectRequest moves a pending request to rejected. Errors as ApproveWithProof.
func (s *Store) RejectRequest(_ context.Context, requestID id.RequestID, subjectID id.SubjectID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.decidableLocked(requestID, now)
	if err != nil {
		return err
	}
	r.ApplyReject(subjectID, now)
	return nil
}

// ExpireRequest persists the expiry of a single stale request.
// Returns sentinel.ErrInvalidState when it is not pending or not yet past expiry.
func (s *Store) ExpireRequest(_ context.Context, requestID id.RequestID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !r.IsStale(now) {
		return sentinel.ErrInvalidState
	}
	r.ApplyExpire()
	return nil
}

// ExpirePending expires up to limit stale requests, oldest deadline first, and
// returns them in their new state.
func (s *Store) ExpirePending(_ context.Context, now time.Time, limit int) ([]*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*models.Request
	for _, r := range s.requests {
		if r.IsStale(now) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].ExpiresAt.Before(stale[j].ExpiresAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	out := make([]*models.Request, 0, len(stale))
	for _, r := range stale {
		r.ApplyExpire()
		out = append(out, copyRequest(r))
	}
	return out, nil
}

func (s *Store) FindProof(_ context.Context, proofID id.ProofID) (*models.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) FindProofByRequest(ctx context.Context, requestID id.RequestID) (*models.Proof, error) {
	s.mu.RLock()
	proofID, ok := s.proofsByRequest[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindProof(ctx, proofID)
}

// ListActiveProofsBySubject returns unrevoked proofs still inside their window, newest first.
func (s *Store) ListActiveProofsBySubject(_ context.Context, subjectID id.SubjectID, now time.Time) ([]*models.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Proof
	for _, p := range s.proofs {
		if p.SubjectID == subjectID && p.IsActive(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// RevokeProof marks the proof revoked and its request revoked in one step.
// Returns sentinel.ErrNotFound or sentinel.ErrInvalidState when already revoked.
func (s *Store) RevokeProof(_ context.Context, proofID id.ProofID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proofs[proofID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Revoked {
		return sentinel.ErrInvalidState
	}
	p.ApplyRevoke(now)
	if r, ok := s.requests[p.RequestID]; ok && r.CanRevoke() == nil {
		r.ApplyRevoke()
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) decidableLocked(requestID id.RequestID, now time.Time) (*models.Request, error) {
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if r.Status == models.StatusExpired || r.IsStale(now) {
		return nil, sentinel.ErrExpired
	}
	if r.Status != models.StatusPending {
		return nil, sentinel.ErrInvalidState
	}
	return r, nil
}

func copyRequest(r *models.Request) *models.Request {
	cp := *r
	cp.RequestedFields = append([]id.Attribute(nil), r.RequestedFields...)
	return &cp
}
