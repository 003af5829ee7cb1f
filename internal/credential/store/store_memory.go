// Package store persists credentials in memory or Postgres.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"proofgate/internal/credential/models"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials in a map guarded by a single RWMutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[id.CredentialID]*models.Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[id.CredentialID]*models.Credential)}
}

// Create inserts an active credential. Returns sentinel.ErrConflict when the
// subject already holds an active one or the id is taken.
func (s *InMemoryStore) Create(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[c.ID]; exists {
		return sentinel.ErrConflict
	}
	if c.IsActive {
		for _, existing := range s.credentials {
			if existing.SubjectID == c.SubjectID && existing.IsActive {
				return sentinel.ErrConflict
			}
		}
	}
	cp := *c
	s.credentials[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) FindActiveBySubject(_ context.Context, subjectID id.SubjectID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.credentials {
		if c.SubjectID == subjectID && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListBySubject returns the subject's credentials, newest first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, c := range s.credentials {
		if c.SubjectID == subjectID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Deactivate flips an active credential to inactive.
// Returns sentinel.ErrNotFound or sentinel.ErrInvalidState when already inactive.
func (s *InMemoryStore) Deactivate(_ context.Context, credentialID id.CredentialID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.CanDeactivate() != nil {
		return sentinel.ErrInvalidState
	}
	c.ApplyDeactivate(at)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }
