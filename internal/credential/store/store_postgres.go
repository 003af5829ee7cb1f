package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"proofgate/internal/credential/models"
	"proofgate/internal/platform/postgres"
	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/sentinel"
	txcontext "proofgate/pkg/platform/tx"
)

const activeConstraint = "credentials_one_active_per_subject"

type dbtx = txcontext.DBTX

// PostgresStore persists credentials. The partial unique index on
// (subject_id) WHERE is_active enforces one active credential per subject.
type PostgresStore struct {
	db   dbtx
	pool *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, pool: db}
}

// NewPostgresTx binds the store to an open transaction.
func NewPostgresTx(tx dbtx) *PostgresStore {
	return &PostgresStore{db: tx}
}

const credentialColumns = `id, subject_id, issuer, full_name, date_of_birth, nationality, address,
	id_number_last4, verified_at, valid_until, is_active, deactivated_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(c.ID), uuid.UUID(c.SubjectID), c.Issuer, c.FullName, c.DateOfBirth,
		c.Nationality, c.Address, c.IDNumberLast4, c.VerifiedAt, c.ValidUntil,
		c.IsActive, c.DeactivatedAt, c.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, uuid.UUID(credentialID))
	return scanCredential(row)
}

func (s *PostgresStore) FindActiveBySubject(ctx context.Context, subjectID id.SubjectID) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE subject_id = $1 AND is_active`, uuid.UUID(subjectID))
	return scanCredential(row)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE subject_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// Deactivate uses a conditional update so concurrent deactivations resolve to one winner.
func (s *PostgresStore) Deactivate(ctx context.Context, credentialID id.CredentialID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET is_active = FALSE, deactivated_at = $2
		WHERE id = $1 AND is_active
	`, uuid.UUID(credentialID), at)
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, uuid.UUID(credentialID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*models.Credential, error) {
	var (
		c             models.Credential
		credID        uuid.UUID
		subjectID     uuid.UUID
		validUntil    sql.NullTime
		deactivatedAt sql.NullTime
	)
	err := row.Scan(&credID, &subjectID, &c.Issuer, &c.FullName, &c.DateOfBirth, &c.Nationality,
		&c.Address, &c.IDNumberLast4, &c.VerifiedAt, &validUntil, &c.IsActive, &deactivatedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	c.ID = id.CredentialID(credID)
	c.SubjectID = id.SubjectID(subjectID)
	if validUntil.Valid {
		t := validUntil.Time
		c.ValidUntil = &t
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		c.DeactivatedAt = &t
	}
	return &c, nil
}
