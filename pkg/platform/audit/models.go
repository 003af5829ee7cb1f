package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// data disclosure to a verifier, revocation of that disclosure, credential lifecycle.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers access violations and other forensic signals.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Timestamp  time.Time
	SubjectID  string
	VerifierID string
	Action     string
	// ResourceID is the verification request, proof, or credential the action touched.
	ResourceID string
	Decision   string
	Reason     string
	RequestID  string // Correlation ID from HTTP request context
	ClientIP   string
	UserAgent  string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	// Verification request events
	EventRequestCreated  AuditEvent = "request_created"
	EventRequestApproved AuditEvent = "request_approved"
	EventRequestRejected AuditEvent = "request_rejected"
	EventRequestExpired  AuditEvent = "request_expired"

	// Proof events
	EventProofIssued   AuditEvent = "proof_issued"
	EventProofRevoked  AuditEvent = "proof_revoked"
	EventProofAnchored AuditEvent = "proof_anchored"

	// Credential events
	EventCredentialImported    AuditEvent = "credential_imported"
	EventCredentialDeactivated AuditEvent = "credential_deactivated"

	// Access events
	EventAccessDenied AuditEvent = "access_denied"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventRequestApproved:       CategoryCompliance,
	EventProofIssued:           CategoryCompliance,
	EventProofRevoked:          CategoryCompliance,
	EventCredentialImported:    CategoryCompliance,
	EventCredentialDeactivated: CategoryCompliance,

	EventAccessDenied: CategorySecurity,

	EventRequestCreated:  CategoryOperations,
	EventRequestRejected: CategoryOperations,
	EventRequestExpired:  CategoryOperations,
	EventProofAnchored:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// OutboxEntry is one persisted audit record awaiting publication.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
