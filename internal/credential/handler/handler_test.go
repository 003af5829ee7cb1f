package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofgate/internal/credential/service"
	"proofgate/internal/credential/store"
	authmw "proofgate/pkg/platform/middleware/auth"
	"proofgate/pkg/testutil"
)

const adminToken = "admin-secret"

// tokenValidator treats the bearer token as "<role>:<uuid>".
type tokenValidator struct{}

func (tokenValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	for _, role := range []string{"subject", "verifier"} {
		prefix := role + ":"
		if len(token) > len(prefix) && token[:len(prefix)] == prefix {
			return &authmw.JWTClaims{Role: role, Subject: token[len(prefix):]}, nil
		}
	}
	return nil, errors.New("bad token")
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store.NewInMemoryStore())
	r := chi.NewRouter()
	New(svc, logger, tokenValidator{}, adminToken).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, bearer, body)
	if method == http.MethodPost && path == "/admin/credentials" {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	return testutil.DoRequest(h, req)
}

func TestCredentialEndpoints(t *testing.T) {
	h := newRouter(t)
	subjectID := uuid.New()
	subjectToken := "subject:" + subjectID.String()

	importBody := map[string]any{
		"subjectId":     subjectID.String(),
		"issuer":        "DigiLocker",
		"fullName":      "Asha Rao",
		"dateOfBirth":   "2000-01-01",
		"idNumberLast4": "9876",
	}

	rr := do(t, h, http.MethodPost, "/admin/credentials", "", importBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created ImportCredentialResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.True(t, created.IsActive)

	t.Run("duplicate active import conflicts", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/admin/credentials", "", importBody)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("list masks id number", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/credentials", subjectToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"idNumber":"****9876"`)
		assert.NotContains(t, rr.Body.String(), `"9876"`)
	})

	t.Run("verifier cannot list credentials", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/credentials", "verifier:"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("other subject cannot deactivate", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/credentials/"+created.ID+"/deactivate", "subject:"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("owner deactivates", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/credentials/"+created.ID+"/deactivate", subjectToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"isActive":false`)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/credentials/nope/deactivate", subjectToken, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestImport_Validation(t *testing.T) {
	h := newRouter(t)

	rr := do(t, h, http.MethodPost, "/admin/credentials", "", map[string]any{"subjectId": "bob"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/admin/credentials", "", map[string]any{
		"subjectId": uuid.NewString(), "issuer": "x", "fullName": "y", "dateOfBirth": "31-12-1999",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "validation_error")

	req := httptest.NewRequest(http.MethodPost, "/admin/credentials", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing admin token")
}
