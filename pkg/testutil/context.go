package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"proofgate/pkg/requestcontext"
)

// WithCaller attaches an authenticated caller to the request context, as the
// auth middleware would.
func WithCaller(req *http.Request, role requestcontext.Role, callerID uuid.UUID) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Caller{ID: callerID, Role: role})
	return req.WithContext(ctx)
}
