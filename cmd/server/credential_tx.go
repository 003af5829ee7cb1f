package main

import (
	"context"
	"database/sql"
	"time"

	credentialservice "proofgate/internal/credential/service"
	credentialstore "proofgate/internal/credential/store"
	dErrors "proofgate/pkg/domain-errors"
	txcontext "proofgate/pkg/platform/tx"
)

const defaultCredentialTxTimeout = 5 * time.Second

// credentialPostgresTx runs credential mutations in one database transaction.
// The transaction is also placed on the context so outbox audit writes commit with it.
type credentialPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newCredentialPostgresTx(db *sql.DB) *credentialPostgresTx {
	return &credentialPostgresTx{db: db}
}

func (t *credentialPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store credentialservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultCredentialTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return txcontext.Run(ctx, t.db, func(ctx context.Context, q txcontext.DBTX) error {
		return fn(ctx, credentialstore.NewPostgresTx(q))
	})
}
