package handler

import (
	"time"

	"proofgate/internal/verification/anchor"
	"proofgate/internal/verification/models"
)

type CreateRequestResponse struct {
	RequestID       string    `json:"requestId"`
	Status          string    `json:"status"`
	RequestedFields []string  `json:"requestedFields"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// PendingRequestResponse is what a subject sees before deciding.
type PendingRequestResponse struct {
	RequestID       string    `json:"requestId"`
	VerifierName    string    `json:"verifierName"`
	RequestedFields []string  `json:"requestedFields"`
	Purpose         string    `json:"purpose,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// RequestResponse is the verifier's full view of a request.
type RequestResponse struct {
	RequestID       string     `json:"requestId"`
	VerifierName    string     `json:"verifierName"`
	RequestedFields []string   `json:"requestedFields"`
	Purpose         string     `json:"purpose,omitempty"`
	Status          string     `json:"status"`
	SubjectID       string     `json:"subjectId,omitempty"`
	ProofID         string     `json:"proofId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	DecidedAt       *time.Time `json:"decidedAt,omitempty"`
}

type ProofResponse struct {
	ProofID      string            `json:"proofId"`
	RequestID    string            `json:"requestId"`
	VerifierName string            `json:"verifierName"`
	SharedData   models.SharedData `json:"sharedData"`
	CreatedAt    time.Time         `json:"createdAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	Revoked      bool              `json:"revoked"`
	RevokedAt    *time.Time        `json:"revokedAt,omitempty"`
	Valid        bool              `json:"valid"`
}

type AnchorResponse struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"blockNumber"`
	AnchoredAt  time.Time `json:"anchoredAt"`
}

type ApproveResponse struct {
	ProofID    string            `json:"proofId"`
	SharedData models.SharedData `json:"sharedData"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	Anchor     *AnchorResponse   `json:"anchor,omitempty"`
}

type RejectResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

type StatusResponse struct {
	Request RequestResponse `json:"request"`
	Proof   *ProofResponse  `json:"proof,omitempty"`
}

type listRequestsResponse struct {
	Requests []RequestResponse `json:"requests"`
}

type listProofsResponse struct {
	Proofs []ProofResponse `json:"proofs"`
}

type RevokeResponse struct {
	ProofID   string     `json:"proofId"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

func fieldNames(r *models.Request) []string {
	out := make([]string, len(r.RequestedFields))
	for i, f := range r.RequestedFields {
		out[i] = f.String()
	}
	return out
}

func toPendingResponse(r *models.Request) PendingRequestResponse {
	return PendingRequestResponse{
		RequestID:       r.ID.String(),
		VerifierName:    r.VerifierName,
		RequestedFields: fieldNames(r),
		Purpose:         r.Purpose,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func toRequestResponse(r *models.Request) RequestResponse {
	resp := RequestResponse{
		RequestID:       r.ID.String(),
		VerifierName:    r.VerifierName,
		RequestedFields: fieldNames(r),
		Purpose:         r.Purpose,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		DecidedAt:       r.DecidedAt,
	}
	if r.SubjectID != nil {
		resp.SubjectID = r.SubjectID.String()
	}
	if r.ProofID != nil {
		resp.ProofID = r.ProofID.String()
	}
	return resp
}

func toProofResponse(p *models.Proof, now time.Time) ProofResponse {
	return ProofResponse{
		ProofID:      p.ID.String(),
		RequestID:    p.RequestID.String(),
		VerifierName: p.VerifierName,
		SharedData:   p.SharedData,
		CreatedAt:    p.CreatedAt,
		ExpiresAt:    p.ExpiresAt,
		Revoked:      p.Revoked,
		RevokedAt:    p.RevokedAt,
		Valid:        p.IsActive(now),
	}
}

func toAnchorResponse(r *anchor.Receipt) *AnchorResponse {
	if r == nil {
		return nil
	}
	return &AnchorResponse{Hash: r.Hash, BlockNumber: r.BlockNumber, AnchoredAt: r.AnchoredAt}
}
