package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"proofgate/internal/credential/models"
	"proofgate/internal/credential/store"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
	audit "proofgate/pkg/platform/audit"
	"proofgate/pkg/platform/audit/publisher"
	auditmemory "proofgate/pkg/platform/audit/store/memory"
	"proofgate/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	audit   *auditmemory.InMemoryStore
	service *Service
	ctx     context.Context
	now     time.Time
	subject id.SubjectID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(s.store, WithAuditPublisher(publisher.NewPublisher(s.audit)))
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.subject = id.SubjectID(uuid.New())
}

func (s *ServiceSuite) attestation() models.Attestation {
	return models.Attestation{
		Issuer:        "DigiLocker",
		FullName:      "Asha Rao",
		DateOfBirth:   "2000-01-01",
		Nationality:   "IN",
		IDNumberLast4: "4321",
		VerifiedAt:    s.now.Add(-time.Hour),
	}
}

func (s *ServiceSuite) importOne() *models.Credential {
	c, err := s.service.Import(s.ctx, ImportCommand{SubjectID: s.subject, Attestation: s.attestation()})
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) TestImport() {
	s.Run("first import is active and audited", func() {
		c := s.importOne()
		s.True(c.IsActive)

		events, err := s.audit.ListBySubject(s.ctx, s.subject.String())
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventCredentialImported), events[0].Action)
		s.Equal(c.ID.String(), events[0].ResourceID)
	})

	s.Run("second import conflicts", func() {
		_, err := s.service.Import(s.ctx, ImportCommand{SubjectID: s.subject, Attestation: s.attestation()})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("replaceActive swaps the active credential", func() {
		before, err := s.store.FindActiveBySubject(s.ctx, s.subject)
		s.Require().NoError(err)

		after, err := s.service.Import(s.ctx, ImportCommand{SubjectID: s.subject, Attestation: s.attestation(), ReplaceActive: true})
		s.Require().NoError(err)
		s.NotEqual(before.ID, after.ID)

		old, err := s.store.FindByID(s.ctx, before.ID)
		s.Require().NoError(err)
		s.False(old.IsActive)

		active, err := s.store.FindActiveBySubject(s.ctx, s.subject)
		s.Require().NoError(err)
		s.Equal(after.ID, active.ID)
	})

	s.Run("invalid attestation is a validation error", func() {
		a := s.attestation()
		a.DateOfBirth = "not-a-date"
		_, err := s.service.Import(s.ctx, ImportCommand{SubjectID: id.SubjectID(uuid.New()), Attestation: a})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestImport_ConcurrentReplaceKeepsOneActive() {
	s.importOne()

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Import(s.ctx, ImportCommand{SubjectID: s.subject, Attestation: s.attestation(), ReplaceActive: true})
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(10), ok.Load())

	list, err := s.store.ListBySubject(s.ctx, s.subject)
	s.Require().NoError(err)
	active := 0
	for _, c := range list {
		if c.IsActive {
			active++
		}
	}
	s.Equal(1, active)
}

func (s *ServiceSuite) TestResolve() {
	c := s.importOne()

	s.Run("explicit id", func() {
		got, err := s.service.Resolve(s.ctx, s.subject, &c.ID)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})

	s.Run("omitted id uses active credential", func() {
		got, err := s.service.Resolve(s.ctx, s.subject, nil)
		s.Require().NoError(err)
		s.Equal(c.ID, got.ID)
	})

	s.Run("unknown id", func() {
		missing := id.NewCredentialID()
		_, err := s.service.Resolve(s.ctx, s.subject, &missing)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("another subject's credential looks missing", func() {
		_, err := s.service.Resolve(s.ctx, id.SubjectID(uuid.New()), &c.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("subject without credentials", func() {
		_, err := s.service.Resolve(s.ctx, id.SubjectID(uuid.New()), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNoActiveCredential))
	})
}

func (s *ServiceSuite) TestResolve_Expired() {
	until := s.now.Add(-time.Minute)
	a := s.attestation()
	a.VerifiedAt = s.now.Add(-24 * time.Hour)
	a.ValidUntil = &until
	c, err := s.service.Import(s.ctx, ImportCommand{SubjectID: s.subject, Attestation: a})
	s.Require().NoError(err)

	_, err = s.service.Resolve(s.ctx, s.subject, &c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeCredentialExpired))
}

func (s *ServiceSuite) TestDeactivate() {
	c := s.importOne()

	_, err := s.service.Deactivate(s.ctx, id.SubjectID(uuid.New()), c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "non-owner cannot deactivate")

	got, err := s.service.Deactivate(s.ctx, s.subject, c.ID)
	s.Require().NoError(err)
	s.False(got.IsActive)
	s.Require().NotNil(got.DeactivatedAt)
	s.Equal(s.now, *got.DeactivatedAt)

	_, err = s.service.Deactivate(s.ctx, s.subject, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.service.Resolve(s.ctx, s.subject, &c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNoActiveCredential))
}

func TestShardedTx_CancelledContext(t *testing.T) {
	tx := NewShardedTx(store.NewInMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := tx.RunInTx(ctx, func(context.Context, Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	require.False(t, called)
}
