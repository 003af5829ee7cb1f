// Package postgres persists verification requests and proofs. Status
// transitions are conditional UPDATEs; compound transitions run in one
// transaction so a reader never sees an approved request without its proof.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"proofgate/internal/platform/postgres"
	"proofgate/internal/verification/models"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
	txcontext "proofgate/pkg/platform/tx"
)

const proofPrimaryKey = "proofs_pkey"

type dbtx = txcontext.DBTX

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execer(ctx context.Context) dbtx {
	return txcontext.Executor(ctx, s.db)
}

// inTx joins a transaction already on ctx or runs fn in a new one.
func (s *Store) inTx(ctx context.Context, fn func(q dbtx) error) error {
	return txcontext.Run(ctx, s.db, func(_ context.Context, q dbtx) error {
		return fn(q)
	})
}

const requestColumns = `id, verifier_id, verifier_name, requested_fields, purpose, status,
	subject_id, proof_id, created_at, expires_at, decided_at`

func (s *Store) CreateRequest(ctx context.Context, r *models.Request) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO verification_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		r.ID.String(), uuid.UUID(r.VerifierID), r.VerifierName, pq.Array(attributeStrings(r.RequestedFields)),
		r.Purpose, string(r.Status), nullSubject(r.SubjectID), nullProof(r.ProofID),
		r.CreatedAt, r.ExpiresAt, r.DecidedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

func (s *Store) FindRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE id = $1`, requestID.String())
	return scanRequest(row)
}

func (s *Store) ListRequestsByVerifier(ctx context.Context, verifierID id.VerifierID) ([]*models.Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE verifier_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(verifierID))
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	return collectRequests(rows)
}

func (s *Store) ApproveWithProof(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, proof *models.Proof, now time.Time) error {
	shared, err := json.Marshal(proof.SharedData)
	if err != nil {
		return fmt.Errorf("marshal shared data: %w", err)
	}
	return s.inTx(ctx, func(q dbtx) error {
		if err := decide(ctx, q, requestID, models.StatusApproved, subjectID, &proof.ID, now); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO proofs (id, request_id, subject_id, verifier_id, verifier_name, credential_id,
				shared_data, created_at, expires_at, revoked, revoked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NULL)
		`,
			proof.ID.String(), requestID.String(), uuid.UUID(proof.SubjectID), uuid.UUID(proof.VerifierID),
			proof.VerifierName, uuid.UUID(proof.CredentialID), shared, proof.CreatedAt, proof.ExpiresAt,
		)
		if err != nil {
			if postgres.IsUniqueViolation(err, proofPrimaryKey) {
				return sentinel.ErrConflict
			}
			if postgres.IsUniqueViolation(err, "") {
				return sentinel.ErrInvalidState
			}
			return fmt.Errorf("insert proof: %w", err)
		}
		return nil
	})
}

func (s *Store) RejectRequest(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, now time.Time) error {
	return decide(ctx, s.execer(ctx), requestID, models.StatusRejected, subjectID, nil, now)
}

// decide is the compare-and-swap on status = 'pending' that guards approve and reject.
func decide(ctx context.Context, q dbtx, requestID id.RequestID, to models.Status, subjectID id.SubjectID, proofID *id.ProofID, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $2, subject_id = $3, proof_id = $4, decided_at = $5
		WHERE id = $1 AND status = 'pending' AND expires_at >= $5
	`, requestID.String(), string(to), uuid.UUID(subjectID), nullProof(proofID), now)
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	if n == 1 {
		return nil
	}
	return classifyMiss(ctx, q, requestID, now)
}

// classifyMiss explains why a conditional update on a request matched nothing.
func classifyMiss(ctx context.Context, q dbtx, requestID id.RequestID, now time.Time) error {
	var (
		status    string
		expiresAt time.Time
	)
	err := q.QueryRowContext(ctx,
		`SELECT status, expires_at FROM verification_requests WHERE id = $1`, requestID.String(),
	).Scan(&status, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load verification request: %w", err)
	}
	st := models.Status(status)
	if st == models.StatusExpired || (st == models.StatusPending && now.After(expiresAt)) {
		return sentinel.ErrExpired
	}
	return sentinel.ErrInvalidState
}

func (s *Store) ExpireRequest(ctx context.Context, requestID id.RequestID, now time.Time) error {
	q := s.execer(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE verification_requests SET status = 'expired'
		WHERE id = $1 AND status = 'pending' AND expires_at < $2
	`, requestID.String(), now)
	if err != nil {
		return fmt.Errorf("expire verification request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("expire verification request: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verification_requests WHERE id = $1)`, requestID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("expire verification request: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

// ExpirePending expires one batch of stale requests. SKIP LOCKED lets
// concurrent sweepers on several replicas split the work.
func (s *Store) ExpirePending(ctx context.Context, now time.Time, limit int) ([]*models.Request, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		UPDATE verification_requests SET status = 'expired'
		WHERE status = 'pending' AND id IN (
			SELECT id FROM verification_requests
			WHERE status = 'pending' AND expires_at < $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+requestColumns,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("expire pending requests: %w", err)
	}
	return collectRequests(rows)
}

const proofColumns = `id, request_id, subject_id, verifier_id, verifier_name, credential_id,
	shared_data, created_at, expires_at, revoked, revoked_at`

func (s *Store) FindProof(ctx context.Context, proofID id.ProofID) (*models.Proof, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE id = $1`, proofID.String())
	return scanProof(row)
}

func (s *Store) FindProofByRequest(ctx context.Context, requestID id.RequestID) (*models.Proof, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM proofs WHERE request_id = $1`, requestID.String())
	return scanProof(row)
}

func (s *Store) ListActiveProofsBySubject(ctx context.Context, subjectID id.SubjectID, now time.Time) ([]*models.Proof, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+proofColumns+` FROM proofs
		WHERE subject_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY created_at DESC
	`, uuid.UUID(subjectID), now)
	if err != nil {
		return nil, fmt.Errorf("list proofs: %w", err)
	}
	defer rows.Close()

	var out []*models.Proof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proofs: %w", err)
	}
	return out, nil
}

func (s *Store) RevokeProof(ctx context.Context, proofID id.ProofID, now time.Time) error {
	return s.inTx(ctx, func(q dbtx) error {
		var requestID string
		err := q.QueryRowContext(ctx, `
			UPDATE proofs SET revoked = TRUE, revoked_at = $2
			WHERE id = $1 AND NOT revoked
			RETURNING request_id
		`, proofID.String(), now).Scan(&requestID)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := q.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM proofs WHERE id = $1)`, proofID.String(),
			).Scan(&exists); err != nil {
				return fmt.Errorf("revoke proof: %w", err)
			}
			if !exists {
				return sentinel.ErrNotFound
			}
			return sentinel.ErrInvalidState
		}
		if err != nil {
			return fmt.Errorf("revoke proof: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE verification_requests SET status = 'revoked'
			WHERE id = $1 AND status = 'approved'
		`, requestID); err != nil {
			return fmt.Errorf("revoke verification request: %w", err)
		}
		return nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.Request, error) {
	var (
		r          models.Request
		requestID  string
		verifierID uuid.UUID
		fields     []string
		status     string
		subjectID  uuid.NullUUID
		proofID    sql.NullString
		decidedAt  sql.NullTime
	)
	err := row.Scan(&requestID, &verifierID, &r.VerifierName, pq.Array(&fields), &r.Purpose, &status,
		&subjectID, &proofID, &r.CreatedAt, &r.ExpiresAt, &decidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification request: %w", err)
	}
	r.ID = id.RequestID(requestID)
	r.VerifierID = id.VerifierID(verifierID)
	r.Status = models.Status(status)
	r.RequestedFields = make([]id.Attribute, len(fields))
	for i, f := range fields {
		r.RequestedFields[i] = id.Attribute(f)
	}
	if subjectID.Valid {
		sid := id.SubjectID(subjectID.UUID)
		r.SubjectID = &sid
	}
	if proofID.Valid {
		pid := id.ProofID(proofID.String)
		r.ProofID = &pid
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	return &r, nil
}

func collectRequests(rows *sql.Rows) ([]*models.Request, error) {
	defer rows.Close()
	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification requests: %w", err)
	}
	return out, nil
}

func scanProof(row scanner) (*models.Proof, error) {
	var (
		p            models.Proof
		proofID      string
		requestID    string
		subjectID    uuid.UUID
		verifierID   uuid.UUID
		credentialID uuid.UUID
		shared       []byte
		revokedAt    sql.NullTime
	)
	err := row.Scan(&proofID, &requestID, &subjectID, &verifierID, &p.VerifierName, &credentialID,
		&shared, &p.CreatedAt, &p.ExpiresAt, &p.Revoked, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan proof: %w", err)
	}
	if err := json.Unmarshal(shared, &p.SharedData); err != nil {
		return nil, fmt.Errorf("decode shared data: %w", err)
	}
	p.ID = id.ProofID(proofID)
	p.RequestID = id.RequestID(requestID)
	p.SubjectID = id.SubjectID(subjectID)
	p.VerifierID = id.VerifierID(verifierID)
	p.CredentialID = id.CredentialID(credentialID)
	if revokedAt.Valid {
		t := revokedAt.Time
		p.RevokedAt = &t
	}
	return &p, nil
}

func attributeStrings(fields []id.Attribute) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}

func nullSubject(s *id.SubjectID) uuid.NullUUID {
	if s == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*s), Valid: true}
}

func nullProof(p *id.ProofID) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.String(), Valid: true}
}
