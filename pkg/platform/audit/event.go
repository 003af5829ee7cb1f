package audit

import (
	"context"

	"proofgate/pkg/attrs"
	"proofgate/pkg/requestcontext"
)

// NewEvent builds an Event from slog-style attributes plus the request
// metadata carried on ctx. Recognised keys: subject_id, verifier_id,
// resource_id, decision, reason.
func NewEvent(ctx context.Context, event AuditEvent, kv attrs.KV) Event {
	return Event{
		Category:   event.Category(),
		Timestamp:  requestcontext.Now(ctx),
		SubjectID:  kv.String("subject_id"),
		VerifierID: kv.String("verifier_id"),
		Action:     string(event),
		ResourceID: kv.String("resource_id"),
		Decision:   kv.String("decision"),
		Reason:     kv.String("reason"),
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
	}
}
