package service

import (
	"context"
	"sync"
	"time"

	id "proofgate/pkg/domain"
	dErrors "proofgate/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for credential mutations.
// Implementations may wrap a database transaction or, in-memory, a lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// numCredentialShards spreads subjects over independent locks so imports for
// different subjects do not serialize behind each other.
const numCredentialShards = 64

// defaultCredentialTxTimeout is the maximum duration for a credential transaction.
const defaultCredentialTxTimeout = 5 * time.Second

type shardedTx struct {
	shards  [numCredentialShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewShardedTx wraps an in-memory store with per-subject locking.
func NewShardedTx(store Store) StoreTx {
	return &shardedTx{store: store}
}

func (t *shardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
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

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}

func (t *shardedTx) selectShard(ctx context.Context) int {
	if subjectID, ok := ctx.Value(txSubjectKeyCtx).(id.SubjectID); ok && !subjectID.IsNil() {
		return int(fnv32(subjectID.String()) % numCredentialShards)
	}
	return 0
}

// fnv32 is FNV-1a.
func fnv32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

type txSubjectKey struct{}

var txSubjectKeyCtx = txSubjectKey{}

// withTxSubject scopes the next RunInTx to the subject's shard.
func withTxSubject(ctx context.Context, subjectID id.SubjectID) context.Context {
	return context.WithValue(ctx, txSubjectKeyCtx, subjectID)
}
