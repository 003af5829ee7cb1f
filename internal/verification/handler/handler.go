// Package handler exposes the verification lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"proofgate/internal/verification/models"
	"proofgate/internal/verification/service"
	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
	"proofgate/pkg/platform/httputil"
	authmw "proofgate/pkg/platform/middleware/auth"
	request "proofgate/pkg/platform/middleware/request"
	"proofgate/pkg/requestcontext"
)

// Service defines the verification operations the handler needs.
type Service interface {
	CreateRequest(ctx context.Context, cmd service.CreateRequestCommand) (*models.Request, error)
	ListByVerifier(ctx context.Context, verifierID id.VerifierID) ([]*models.Request, error)
	Status(ctx context.Context, verifierID id.VerifierID, requestID id.RequestID) (*service.RequestStatus, error)
	GetPending(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Approve(ctx context.Context, cmd service.ApproveCommand) (*service.ApproveResult, error)
	Reject(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID) (*models.Request, error)
	GetProof(ctx context.Context, callerID uuid.UUID, proofID id.ProofID) (*models.Proof, error)
	ListActiveProofs(ctx context.Context, subjectID id.SubjectID) ([]*models.Proof, error)
	RevokeProof(ctx context.Context, proofID id.ProofID, subjectID id.SubjectID) (*models.Proof, error)
}

// Handler serves the verification endpoints.
type Handler struct {
	logger        *slog.Logger
	verifications Service
	jwtValidator  authmw.JWTValidator
	createLimit   func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithCreateLimit guards request creation, typically with a rate limiter.
func WithCreateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.createLimit = mw }
}

// New creates a verification Handler.
func New(verifications Service, logger *slog.Logger, jwtValidator authmw.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:        logger,
		verifications: verifications,
		jwtValidator:  jwtValidator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.logger, requestcontext.RoleVerifier))
			r.Get("/requests", h.handleListRequests)
			r.Get("/requests/{id}/status", h.handleStatus)
			r.Group(func(r chi.Router) {
				if h.createLimit != nil {
					r.Use(h.createLimit)
				}
				r.Post("/requests", h.handleCreateRequest)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.logger, requestcontext.RoleSubject))
			r.Get("/requests/{id}", h.handleGetPending)
			r.Post("/requests/{id}/approve", h.handleApprove)
			r.Post("/requests/{id}/reject", h.handleReject)
			r.Get("/proofs", h.handleListProofs)
			r.Post("/proofs/{id}/revoke", h.handleRevoke)
		})

		r.Get("/proofs/{id}", h.handleGetProof)
	})
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	caller := requestcontext.Principal(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequestRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.verifications.CreateRequest(ctx, service.CreateRequestCommand{
		VerifierID:      id.VerifierID(caller.ID),
		VerifierName:    caller.Name,
		RequestedFields: req.RequestedFields,
		Purpose:         req.Purpose,
	})
	if err != nil {
		h.logFailure(ctx, "failed to create verification request", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CreateRequestResponse{
		RequestID:       created.ID.String(),
		Status:          string(created.Status),
		RequestedFields: fieldNames(created),
		ExpiresAt:       created.ExpiresAt,
	})
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verifierID := id.VerifierID(requestcontext.Principal(ctx).ID)

	list, err := h.verifications.ListByVerifier(ctx, verifierID)
	if err != nil {
		h.logFailure(ctx, "failed to list verification requests", err)
		httputil.WriteError(w, err)
		return
	}
	resp := listRequestsResponse{Requests: make([]RequestResponse, 0, len(list))}
	for _, req := range list {
		resp.Requests = append(resp.Requests, toRequestResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	verifierID := id.VerifierID(requestcontext.Principal(ctx).ID)

	vfID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	status, err := h.verifications.Status(ctx, verifierID, vfID)
	if err != nil {
		h.logFailure(ctx, "failed to load verification status", err)
		httputil.WriteError(w, err)
		return
	}
	resp := StatusResponse{Request: toRequestResponse(status.Request)}
	if status.Proof != nil {
		proof := toProofResponse(status.Proof, requestcontext.Now(ctx))
		resp.Proof = &proof
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vfID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	req, err := h.verifications.GetPending(ctx, vfID)
	if err != nil {
		h.logFailure(ctx, "verification request not answerable", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPendingResponse(req))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	subjectID := id.SubjectID(requestcontext.Principal(ctx).ID)

	vfID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	body, ok := httputil.DecodeAndPrepare[ApproveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.verifications.Approve(ctx, service.ApproveCommand{
		RequestID:    vfID,
		SubjectID:    subjectID,
		CredentialID: body.credentialID,
	})
	if err != nil {
		h.logFailure(ctx, "failed to approve verification request", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ApproveResponse{
		ProofID:    result.Proof.ID.String(),
		SharedData: result.Proof.SharedData,
		ExpiresAt:  result.Proof.ExpiresAt,
		Anchor:     toAnchorResponse(result.Receipt),
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(requestcontext.Principal(ctx).ID)

	vfID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	req, err := h.verifications.Reject(ctx, vfID, subjectID)
	if err != nil {
		h.logFailure(ctx, "failed to reject verification request", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RejectResponse{RequestID: req.ID.String(), Status: string(req.Status)})
}

func (h *Handler) handleListProofs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(requestcontext.Principal(ctx).ID)

	proofs, err := h.verifications.ListActiveProofs(ctx, subjectID)
	if err != nil {
		h.logFailure(ctx, "failed to list proofs", err)
		httputil.WriteError(w, err)
		return
	}
	now := requestcontext.Now(ctx)
	resp := listProofsResponse{Proofs: make([]ProofResponse, 0, len(proofs))}
	for _, p := range proofs {
		resp.Proofs = append(resp.Proofs, toProofResponse(p, now))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Principal(ctx)

	proofID, ok := h.proofIDParam(w, r)
	if !ok {
		return
	}
	proof, err := h.verifications.GetProof(ctx, caller.ID, proofID)
	if err != nil {
		h.logFailure(ctx, "failed to load proof", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProofResponse(proof, requestcontext.Now(ctx)))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := id.SubjectID(requestcontext.Principal(ctx).ID)

	proofID, ok := h.proofIDParam(w, r)
	if !ok {
		return
	}
	proof, err := h.verifications.RevokeProof(ctx, proofID, subjectID)
	if err != nil {
		h.logFailure(ctx, "failed to revoke proof", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RevokeResponse{
		ProofID:   proof.ID.String(),
		Revoked:   proof.Revoked,
		RevokedAt: proof.RevokedAt,
	})
}

// Malformed path ids read as not found: they are lookup tokens, and a
// distinct error would tell a caller which shapes exist.
func (h *Handler) requestIDParam(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	vfID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "verification request not found"))
		return "", false
	}
	return vfID, true
}

func (h *Handler) proofIDParam(w http.ResponseWriter, r *http.Request) (id.ProofID, bool) {
	proofID, err := id.ParseProofID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "proof not found"))
		return "", false
	}
	return proofID, true
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	requestID := request.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
}
