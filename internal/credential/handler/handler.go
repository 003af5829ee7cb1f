package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"proofgate/internal/credential/models"
	"proofgate/internal/credential/service"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
	"proofgate/pkg/platform/httputil"
	adminmw "proofgate/pkg/platform/middleware/admin"
	authmw "proofgate/pkg/platform/middleware/auth"
	request "proofgate/pkg/platform/middleware/request"
	"proofgate/pkg/requestcontext"
)

// Service defines the credential operations the handler needs.
type Service interface {
	Import(ctx context.Context, cmd service.ImportCommand) (*models.Credential, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error)
	Deactivate(ctx context.Context, subjectID id.SubjectID, credentialID id.CredentialID) (*models.Credential, error)
}

// Handler serves the credential endpoints.
type Handler struct {
	logger       *slog.Logger
	credentials  Service
	jwtValidator authmw.JWTValidator
	adminToken   string
}

// New creates a credential Handler.
func New(credentials Service, logger *slog.Logger, jwtValidator authmw.JWTValidator, adminToken string) *Handler {
	return &Handler{
		logger:       logger,
		credentials:  credentials,
		jwtValidator: jwtValidator,
		adminToken:   adminToken,
	}
}

// Register registers the credential routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/admin/credentials", h.handleImport)
	})
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.Use(authmw.RequireRole(h.logger, requestcontext.RoleSubject))
		r.Get("/credentials", h.handleList)
		r.Post("/credentials/{id}/deactivate", h.handleDeactivate)
	})
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ImportCredentialRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	credential, err := h.credentials.Import(ctx, service.ImportCommand{
		SubjectID:     req.subjectID,
		Attestation:   req.attestation(),
		ReplaceActive: req.ReplaceActive,
	})
	if err != nil {
		h.logFailure(ctx, "failed to import credential", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, ImportCredentialResponse{
		ID:        credential.ID.String(),
		SubjectID: credential.SubjectID.String(),
		IsActive:  credential.IsActive,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(requestcontext.Principal(ctx).ID)

	list, err := h.credentials.ListBySubject(ctx, subjectID)
	if err != nil {
		h.logFailure(ctx, "failed to list credentials", err)
		httputil.WriteError(w, err)
		return
	}
	resp := listCredentialsResponse{Credentials: make([]CredentialResponse, 0, len(list))}
	for _, c := range list {
		resp.Credentials = append(resp.Credentials, toCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(requestcontext.Principal(ctx).ID)

	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		return
	}

	credential, err := h.credentials.Deactivate(ctx, subjectID, credentialID)
	if err != nil {
		h.logFailure(ctx, "failed to deactivate credential", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCredentialResponse(credential))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	requestID := request.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
