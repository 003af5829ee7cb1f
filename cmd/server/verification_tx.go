package main

import (
	"context"
	"database/sql"

	txcontext "proofgate/pkg/platform/tx"
)

// verificationPostgresTx places one SQL transaction on the context for a
// verification transition. The Postgres verification store and the audit
// outbox both join it.
type verificationPostgresTx struct {
	db *sql.DB
}

func newVerificationPostgresTx(db *sql.DB) *verificationPostgresTx {
	return &verificationPostgresTx{db: db}
}

func (t *verificationPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, t.db, func(ctx context.Context, _ txcontext.DBTX) error {
		return fn(ctx)
	})
}
