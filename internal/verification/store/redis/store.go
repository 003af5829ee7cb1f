// Package redis keeps verification requests and proofs in Redis hashes.
// Every status change runs as a Lua script so the check and the write are a
// single atomic step on the server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
)

const (
	requestKeyPrefix       = "pg:req:"
	proofKeyPrefix         = "pg:proof:"
	pendingKey             = "pg:pending"
	verifierRequestsPrefix = "pg:verifier:"
	subjectProofsPrefix    = "pg:subject:"
)

// Script results shared by every Lua script below.
const (
	resultOK           = "ok"
	resultNotFound     = "not_found"
	resultInvalidState = "invalid_state"
	resultExpired      = "expired"
	resultConflict     = "conflict"
)

// KEYS: request, pending zset, verifier zset. ARGV: id, data, expires_at, created_at.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 'conflict' end
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'status', 'pending', 'expires_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
return 'ok'
`)

// KEYS: request, pending zset, proof, subject zset.
// ARGV: request id, now, subject id, proof id, proof data, proof expires_at, proof created_at.
var approveScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'not_found' end
if status == 'expired' then return 'expired' end
if status ~= 'pending' then return 'invalid_state' end
if tonumber(ARGV[2]) > tonumber(redis.call('HGET', KEYS[1], 'expires_at')) then return 'expired' end
if redis.call('EXISTS', KEYS[3]) == 1 then return 'conflict' end
redis.call('HSET', KEYS[1], 'status', 'approved', 'subject_id', ARGV[3], 'proof_id', ARGV[4], 'decided_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3], 'data', ARGV[5], 'revoked', '0', 'expires_at', ARGV[6])
redis.call('ZADD', KEYS[4], ARGV[7], ARGV[4])
return 'ok'
`)

// KEYS: request, pending zset. ARGV: request id, now, subject id.
var rejectScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 'not_found' end
if status == 'expired' then return 'expired' end
if status ~= 'pending' then return 'invalid_state' end
if tonumber(ARGV[2]) > tonumber(redis.call('HGET', KEYS[1], 'expires_at')) then return 'expired' end
redis.call('HSET', KEYS[1], 'status', 'rejected', 'subject_id', ARGV[3], 'decided_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
return 'ok'
`)

// KEYS: request, pending zset. ARGV: request id, now.
var expireScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  redis.call('ZREM', KEYS[2], ARGV[1])
  return 'not_found'
end
if status ~= 'pending' then
  redis.call('ZREM', KEYS[2], ARGV[1])
  return 'invalid_state'
end
if tonumber(redis.call('HGET', KEYS[1], 'expires_at')) >= tonumber(ARGV[2]) then return 'invalid_state' end
redis.call('HSET', KEYS[1], 'status', 'expired')
redis.call('ZREM', KEYS[2], ARGV[1])
return 'ok'
`)

// KEYS: proof, request. ARGV: now.
var revokeScript = redis.NewScript(`
local revoked = redis.call('HGET', KEYS[1], 'revoked')
if not revoked then return 'not_found' end
if revoked == '1' then return 'invalid_state' end
redis.call('HSET', KEYS[1], 'revoked', '1', 'revoked_at', ARGV[1])
if redis.call('HGET', KEYS[2], 'status') == 'approved' then
  redis.call('HSET', KEYS[2], 'status', 'revoked')
end
return 'ok'
`)

// Store is the Redis-backed verification store. Timestamps are stored as
// Unix microseconds so Lua can compare them as numbers.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// requestRecord is the immutable part of a request, stored as JSON.
type requestRecord struct {
	ID              string   `json:"id"`
	VerifierID      string   `json:"verifier_id"`
	VerifierName    string   `json:"verifier_name"`
	RequestedFields []string `json:"requested_fields"`
	Purpose         string   `json:"purpose,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	ExpiresAt       int64    `json:"expires_at"`
}

// proofRecord is the immutable part of a proof, stored as JSON.
type proofRecord struct {
	ID           string            `json:"id"`
	RequestID    string            `json:"request_id"`
	SubjectID    string            `json:"subject_id"`
	VerifierID   string            `json:"verifier_id"`
	VerifierName string            `json:"verifier_name"`
	CredentialID string            `json:"credential_id"`
	SharedData   models.SharedData `json:"shared_data"`
	CreatedAt    int64             `json:"created_at"`
	ExpiresAt    int64             `json:"expires_at"`
}

func (s *Store) CreateRequest(ctx context.Context, r *models.Request) error {
	fields := make([]string, len(r.RequestedFields))
	for i, f := range r.RequestedFields {
		fields[i] = f.String()
	}
	data, err := json.Marshal(requestRecord{
		ID:              r.ID.String(),
		VerifierID:      r.VerifierID.String(),
		VerifierName:    r.VerifierName,
		RequestedFields: fields,
		Purpose:         r.Purpose,
		CreatedAt:       r.CreatedAt.UnixMicro(),
		ExpiresAt:       r.ExpiresAt.UnixMicro(),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	res, err := createScript.Run(ctx, s.client,
		[]string{requestKey(r.ID), pendingKey, verifierRequestsPrefix + r.VerifierID.String()},
		r.ID.String(), data, r.ExpiresAt.UnixMicro(), r.CreatedAt.UnixMicro(),
	).Text()
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return resultErr(res)
}

func (s *Store) FindRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	fields, err := s.client.HGetAll(ctx, requestKey(requestID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeRequest(fields)
}

func (s *Store) ListRequestsByVerifier(ctx context.Context, verifierID id.VerifierID) ([]*models.Request, error) {
	ids, err := s.client.ZRevRange(ctx, verifierRequestsPrefix+verifierID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]*models.Request, 0, len(ids))
	for _, raw := range ids {
		r, err := s.FindRequest(ctx, id.RequestID(raw))
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ApproveWithProof(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, proof *models.Proof, now time.Time) error {
	data, err := json.Marshal(proofRecord{
		ID:           proof.ID.String(),
		RequestID:    requestID.String(),
		SubjectID:    proof.SubjectID.String(),
		VerifierID:   proof.VerifierID.String(),
		VerifierName: proof.VerifierName,
		CredentialID: proof.CredentialID.String(),
		SharedData:   proof.SharedData,
		CreatedAt:    proof.CreatedAt.UnixMicro(),
		ExpiresAt:    proof.ExpiresAt.UnixMicro(),
	})
	if err != nil {
		return fmt.Errorf("marshal proof: %w", err)
	}
	res, err := approveScript.Run(ctx, s.client,
		[]string{requestKey(requestID), pendingKey, proofKey(proof.ID), subjectProofsPrefix + subjectID.String()},
		requestID.String(), now.UnixMicro(), subjectID.String(), proof.ID.String(), data,
		proof.ExpiresAt.UnixMicro(), proof.CreatedAt.UnixMicro(),
	).Text()
	if err != nil {
		return fmt.Errorf("approve request: %w", err)
	}
	return resultErr(res)
}

func (s *Store) RejectRequest(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, now time.Time) error {
	res, err := rejectScript.Run(ctx, s.client,
		[]string{requestKey(requestID), pendingKey},
		requestID.String(), now.UnixMicro(), subjectID.String(),
	).Text()
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	return resultErr(res)
}

func (s *Store) ExpireRequest(ctx context.Context, requestID id.RequestID, now time.Time) error {
	res, err := expireScript.Run(ctx, s.client,
		[]string{requestKey(requestID), pendingKey},
		requestID.String(), now.UnixMicro(),
	).Text()
	if err != nil {
		return fmt.Errorf("expire request: %w", err)
	}
	return resultErr(res)
}

// ExpirePending walks the pending index by deadline and expires each stale
// entry with the same script the read path uses.
func (s *Store) ExpirePending(ctx context.Context, now time.Time, limit int) ([]*models.Request, error) {
	count := int64(limit)
	if count <= 0 {
		count = -1
	}
	ids, err := s.client.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(now.UnixMicro(), 10),
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan pending requests: %w", err)
	}
	var out []*models.Request
	for _, raw := range ids {
		requestID := id.RequestID(raw)
		err := s.ExpireRequest(ctx, requestID, now)
		switch {
		case err == nil:
		case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrNotFound):
			continue
		default:
			return out, err
		}
		r, err := s.FindRequest(ctx, requestID)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) FindProof(ctx context.Context, proofID id.ProofID) (*models.Proof, error) {
	fields, err := s.client.HGetAll(ctx, proofKey(proofID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load proof: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeProof(fields)
}

func (s *Store) FindProofByRequest(ctx context.Context, requestID id.RequestID) (*models.Proof, error) {
	proofID, err := s.client.HGet(ctx, requestKey(requestID), "proof_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load request proof: %w", err)
	}
	return s.FindProof(ctx, id.ProofID(proofID))
}

func (s *Store) ListActiveProofsBySubject(ctx context.Context, subjectID id.SubjectID, now time.Time) ([]*models.Proof, error) {
	ids, err := s.client.ZRevRange(ctx, subjectProofsPrefix+subjectID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list proofs: %w", err)
	}
	var out []*models.Proof
	for _, raw := range ids {
		p, err := s.FindProof(ctx, id.ProofID(raw))
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.IsActive(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) RevokeProof(ctx context.Context, proofID id.ProofID, now time.Time) error {
	raw, err := s.client.HGet(ctx, proofKey(proofID), "data").Result()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load proof: %w", err)
	}
	var rec proofRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	res, err := revokeScript.Run(ctx, s.client,
		[]string{proofKey(proofID), requestKey(id.RequestID(rec.RequestID))},
		now.UnixMicro(),
	).Text()
	if err != nil {
		return fmt.Errorf("revoke proof: %w", err)
	}
	return resultErr(res)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func requestKey(requestID id.RequestID) string { return requestKeyPrefix + requestID.String() }
func proofKey(proofID id.ProofID) string       { return proofKeyPrefix + proofID.String() }

func resultErr(res string) error {
	switch res {
	case resultOK:
		return nil
	case resultNotFound:
		return sentinel.ErrNotFound
	case resultInvalidState:
		return sentinel.ErrInvalidState
	case resultExpired:
		return sentinel.ErrExpired
	case resultConflict:
		return sentinel.ErrConflict
	default:
		return fmt.Errorf("unexpected script result %q", res)
	}
}

func decodeRequest(fields map[string]string) (*models.Request, error) {
	var rec requestRecord
	if err := json.Unmarshal([]byte(fields["data"]), &rec); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	verifierID, err := id.ParseVerifierID(rec.VerifierID)
	if err != nil {
		return nil, fmt.Errorf("decode request verifier: %w", err)
	}
	r := &models.Request{
		ID:           id.RequestID(rec.ID),
		VerifierID:   verifierID,
		VerifierName: rec.VerifierName,
		Purpose:      rec.Purpose,
		Status:       models.Status(fields["status"]),
		CreatedAt:    time.UnixMicro(rec.CreatedAt).UTC(),
		ExpiresAt:    time.UnixMicro(rec.ExpiresAt).UTC(),
	}
	r.RequestedFields = make([]id.Attribute, len(rec.RequestedFields))
	for i, f := range rec.RequestedFields {
		r.RequestedFields[i] = id.Attribute(f)
	}
	if raw := fields["subject_id"]; raw != "" {
		subjectID, err := id.ParseSubjectID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode request subject: %w", err)
		}
		r.SubjectID = &subjectID
	}
	if raw := fields["proof_id"]; raw != "" {
		proofID := id.ProofID(raw)
		r.ProofID = &proofID
	}
	if t, ok := microField(fields, "decided_at"); ok {
		r.DecidedAt = &t
	}
	return r, nil
}

func decodeProof(fields map[string]string) (*models.Proof, error) {
	var rec proofRecord
	if err := json.Unmarshal([]byte(fields["data"]), &rec); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	subjectID, err := id.ParseSubjectID(rec.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("decode proof subject: %w", err)
	}
	verifierID, err := id.ParseVerifierID(rec.VerifierID)
	if err != nil {
		return nil, fmt.Errorf("decode proof verifier: %w", err)
	}
	credentialID, err := id.ParseCredentialID(rec.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("decode proof credential: %w", err)
	}
	p := &models.Proof{
		ID:           id.ProofID(rec.ID),
		RequestID:    id.RequestID(rec.RequestID),
		SubjectID:    subjectID,
		VerifierID:   verifierID,
		VerifierName: rec.VerifierName,
		CredentialID: credentialID,
		SharedData:   rec.SharedData,
		CreatedAt:    time.UnixMicro(rec.CreatedAt).UTC(),
		ExpiresAt:    time.UnixMicro(rec.ExpiresAt).UTC(),
		Revoked:      fields["revoked"] == "1",
	}
	if t, ok := microField(fields, "revoked_at"); ok {
		p.RevokedAt = &t
	}
	return p, nil
}

func microField(fields map[string]string, name string) (time.Time, bool) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMicro(v).UTC(), true
}
