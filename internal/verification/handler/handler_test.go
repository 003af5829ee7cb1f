package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credmodels "proofgate/internal/credential/models"
	credservice "proofgate/internal/credential/service"
	credstore "proofgate/internal/credential/store"
	"proofgate/internal/verification/service"
	"proofgate/internal/verification/store/memory"
	id "proofgate/pkg/domain"
	authmw "proofgate/pkg/platform/middleware/auth"
	"proofgate/pkg/testutil"
)

// tokenValidator treats the bearer token as "<role>:<uuid>".
type tokenValidator struct{}

func (tokenValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	role, subject, ok := strings.Cut(token, ":")
	if !ok {
		return nil, errors.New("bad token")
	}
	return &authmw.JWTClaims{Role: role, Subject: subject, Name: "Acme Bank"}, nil
}

type fixture struct {
	router      http.Handler
	credentials *credservice.Service
	subject     uuid.UUID
	verifier    uuid.UUID
}

func (f *fixture) subjectToken() string  { return "subject:" + f.subject.String() }
func (f *fixture) verifierToken() string { return "verifier:" + f.verifier.String() }

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	credentials := credservice.New(credstore.NewInMemoryStore())
	svc := service.New(memory.New(), credentials)

	r := chi.NewRouter()
	New(svc, logger, tokenValidator{}, opts...).Register(r)
	return &fixture{router: r, credentials: credentials, subject: uuid.New(), verifier: uuid.New()}
}

func (f *fixture) importCredential(t *testing.T) {
	t.Helper()
	_, err := f.credentials.Import(context.Background(), credservice.ImportCommand{
		SubjectID: id.SubjectID(f.subject),
		Attestation: credmodels.Attestation{
			Issuer:        "DigiLocker",
			FullName:      "Asha Rao",
			DateOfBirth:   "1990-01-01",
			Nationality:   "IN",
			IDNumberLast4: "4321",
			VerifiedAt:    time.Now().Add(-time.Hour),
		},
	})
	require.NoError(t, err)
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoRequest(h, testutil.NewJSONRequest(t, method, path, bearer, body))
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	return testutil.UnmarshalResponse[T](t, rr)
}

func (f *fixture) create(t *testing.T, fields ...string) CreateRequestResponse {
	t.Helper()
	rr := do(t, f.router, http.MethodPost, "/requests", f.verifierToken(), map[string]any{"requestedFields": fields})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[CreateRequestResponse](t, rr)
}

func TestVerificationLifecycle(t *testing.T) {
	f := newFixture(t)
	f.importCredential(t)

	created := f.create(t, "age", "nationality")
	assert.Regexp(t, `^VF-[A-Z0-9]{6}$`, created.RequestID)
	assert.Equal(t, "pending", created.Status)

	t.Run("subject sees the pending request", func(t *testing.T) {
		rr := do(t, f.router, http.MethodGet, "/requests/"+created.RequestID, f.subjectToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		view := decode[PendingRequestResponse](t, rr)
		assert.Equal(t, "Acme Bank", view.VerifierName)
		assert.Equal(t, []string{"age", "nationality"}, view.RequestedFields)
	})

	t.Run("verifier cannot approve", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/requests/"+created.RequestID+"/approve", f.verifierToken(), nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	var proofID string
	t.Run("subject approves", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/requests/"+created.RequestID+"/approve", f.subjectToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		body := rr.Body.String()
		assert.Contains(t, body, `"ageVerified":true`)
		assert.Contains(t, body, `"nationality":"IN"`)
		assert.NotContains(t, body, "1990-01-01")
		assert.NotContains(t, body, "fullName")
		resp := decode[ApproveResponse](t, rr)
		assert.Regexp(t, `^PROOF-[A-Z0-9]{8}$`, resp.ProofID)
		assert.Nil(t, resp.Anchor)
		proofID = resp.ProofID
	})

	t.Run("second decision is already processed", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/requests/"+created.RequestID+"/reject", f.subjectToken(), nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "already_processed")

		rr = do(t, f.router, http.MethodGet, "/requests/"+created.RequestID, f.subjectToken(), nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("verifier reads status with proof", func(t *testing.T) {
		rr := do(t, f.router, http.MethodGet, "/requests/"+created.RequestID+"/status", f.verifierToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		status := decode[StatusResponse](t, rr)
		assert.Equal(t, "approved", status.Request.Status)
		require.NotNil(t, status.Proof)
		assert.Equal(t, proofID, status.Proof.ProofID)
		assert.True(t, status.Proof.Valid)
	})

	t.Run("other verifier cannot read status", func(t *testing.T) {
		rr := do(t, f.router, http.MethodGet, "/requests/"+created.RequestID+"/status", "verifier:"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("proof visibility", func(t *testing.T) {
		rr := do(t, f.router, http.MethodGet, "/proofs/"+proofID, f.verifierToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, decode[ProofResponse](t, rr).Valid)

		rr = do(t, f.router, http.MethodGet, "/proofs/"+proofID, "subject:"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("subject lists active proofs", func(t *testing.T) {
		rr := do(t, f.router, http.MethodGet, "/proofs", f.subjectToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		list := decode[listProofsResponse](t, rr)
		require.Len(t, list.Proofs, 1)
		assert.Equal(t, proofID, list.Proofs[0].ProofID)
	})

	t.Run("only the owner revokes", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/proofs/"+proofID+"/revoke", "subject:"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = do(t, f.router, http.MethodPost, "/proofs/"+proofID+"/revoke", f.subjectToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[RevokeResponse](t, rr)
		assert.True(t, resp.Revoked)
		require.NotNil(t, resp.RevokedAt)

		rr = do(t, f.router, http.MethodPost, "/proofs/"+proofID+"/revoke", f.subjectToken(), nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "already_revoked")
	})

	t.Run("revocation is visible to the verifier", func(t *testing.T) {
		rr := do(t, f.router, http.MethodGet, "/requests/"+created.RequestID+"/status", f.verifierToken(), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		status := decode[StatusResponse](t, rr)
		assert.Equal(t, "revoked", status.Request.Status)
		require.NotNil(t, status.Proof)
		assert.False(t, status.Proof.Valid)

		rr = do(t, f.router, http.MethodGet, "/proofs", f.subjectToken(), nil)
		assert.Empty(t, decode[listProofsResponse](t, rr).Proofs)
	})
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "identity")

	rr := do(t, f.router, http.MethodPost, "/requests/"+created.RequestID+"/reject", f.subjectToken(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "rejected", decode[RejectResponse](t, rr).Status)

	rr = do(t, f.router, http.MethodGet, "/requests", f.verifierToken(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[listRequestsResponse](t, rr)
	require.Len(t, list.Requests, 1)
	assert.Equal(t, "rejected", list.Requests[0].Status)
	assert.Equal(t, f.subject.String(), list.Requests[0].SubjectID)
}

func TestApprove_Preconditions(t *testing.T) {
	f := newFixture(t)

	testutil.Given(t, "a subject without a credential", func(t *testing.T) {
		created := f.create(t, "age")

		testutil.When(t, "they approve", func(t *testing.T) {
			rr := do(t, f.router, http.MethodPost, "/requests/"+created.RequestID+"/approve", f.subjectToken(), nil)

			testutil.Then(t, "no proof is issued", func(t *testing.T) {
				assert.Equal(t, http.StatusNotFound, rr.Code)
				assert.Equal(t, "no_active_credential", testutil.ErrorCode(t, rr))
			})
		})

		testutil.When(t, "they pin a malformed credential id", func(t *testing.T) {
			rr := do(t, f.router, http.MethodPost, "/requests/"+created.RequestID+"/approve", f.subjectToken(),
				map[string]any{"credentialId": "not-a-uuid"})

			testutil.Then(t, "the body is rejected", func(t *testing.T) {
				assert.Equal(t, http.StatusBadRequest, rr.Code)
				assert.Equal(t, "validation_error", testutil.ErrorCode(t, rr))
			})
		})

		testutil.Then(t, "the request is still pending", func(t *testing.T) {
			rr := do(t, f.router, http.MethodGet, "/requests/"+created.RequestID+"/status", f.verifierToken(), nil)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "pending", decode[StatusResponse](t, rr).Request.Status)
		})
	})

	testutil.Given(t, "an unknown request id", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/requests/VF-ZZZZZZ/approve", f.subjectToken(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCreateRequest_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty fields", map[string]any{"requestedFields": []string{}}, http.StatusBadRequest},
		{"unknown field", map[string]any{"requestedFields": []string{"ssn"}}, http.StatusBadRequest},
		{"unknown property", map[string]any{"requestedFields": []string{"age"}, "dob": "x"}, http.StatusBadRequest},
		{"long purpose", map[string]any{"requestedFields": []string{"age"}, "purpose": strings.Repeat("x", 300)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, f.router, http.MethodPost, "/requests", f.verifierToken(), tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}

	t.Run("subject cannot create", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/requests", f.subjectToken(), map[string]any{"requestedFields": []string{"age"}})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := do(t, f.router, http.MethodPost, "/requests", "", map[string]any{"requestedFields": []string{"age"}})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestCreateRequest_Limited(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	f := newFixture(t, WithCreateLimit(deny))

	rr := do(t, f.router, http.MethodPost, "/requests", f.verifierToken(), map[string]any{"requestedFields": []string{"age"}})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = do(t, f.router, http.MethodGet, "/requests", f.verifierToken(), nil)
	assert.Equal(t, http.StatusOK, rr.Code, "only creation is limited")
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	f := newFixture(t)
	rr := do(t, f.router, http.MethodGet, "/requests/nope", f.subjectToken(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, f.router, http.MethodGet, "/proofs/nope", f.subjectToken(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
