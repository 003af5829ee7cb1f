// Package anchor records issued proofs with an external notary. Anchoring is
// decoration: callers treat every failure as non-fatal.
package anchor

//go:generate mockgen -source=anchor.go -destination=mocks/anchor_mock.go -package=mocks Anchor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	id "proofgate/pkg/domain"
	"proofgate/pkg/platform/circuit"
)

// ErrUnavailable is returned while the guard's breaker is open.
var ErrUnavailable = errors.New("anchor unavailable")

// Receipt is what a notary hands back for an anchored proof.
type Receipt struct {
	ProofID     id.ProofID `json:"proofId"`
	Hash        string     `json:"hash"`
	BlockNumber uint64     `json:"blockNumber"`
	AnchoredAt  time.Time  `json:"anchoredAt"`
}

// Anchor notarizes a proof id.
type Anchor interface {
	Anchor(ctx context.Context, proofID id.ProofID) (*Receipt, error)
}

// Noop anchors nothing and returns no receipt.
type Noop struct{}

func (Noop) Anchor(context.Context, id.ProofID) (*Receipt, error) {
	return nil, nil
}

// genesisBlock offsets simulated block numbers so they look plausible.
const genesisBlock = 18_000_000

// Simulated derives a receipt from sha256(proofID || timestamp). It has no
// cryptographic meaning and exists for demos.
type Simulated struct {
	now func() time.Time
}

func NewSimulated(now func() time.Time) *Simulated {
	if now == nil {
		now = time.Now
	}
	return &Simulated{now: now}
}

func (s *Simulated) Anchor(ctx context.Context, proofID id.ProofID) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	at := s.now().UTC()
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(at.UnixNano()))
	h := sha256.New()
	h.Write([]byte(proofID))
	h.Write(stamp[:])
	sum := h.Sum(nil)
	return &Receipt{
		ProofID:     proofID,
		Hash:        "0x" + hex.EncodeToString(sum),
		BlockNumber: genesisBlock + uint64(at.Unix()/12),
		AnchoredAt:  at,
	}, nil
}

// FailureRecorder counts anchor failures.
type FailureRecorder interface {
	IncrementAnchorFailures()
}

// Guarded wraps an Anchor with a per-call timeout and a circuit breaker, so a
// struggling notary stops being called until a probe succeeds.
type Guarded struct {
	next     Anchor
	breaker  *circuit.Breaker
	timeout  time.Duration
	logger   *slog.Logger
	failures FailureRecorder
}

type GuardOption func(*Guarded)

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guarded) {
		if b != nil {
			g.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		g.logger = logger
	}
}

func WithFailureRecorder(r FailureRecorder) GuardOption {
	return func(g *Guarded) {
		g.failures = r
	}
}

func NewGuarded(next Anchor, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:    next,
		breaker: circuit.New("anchor"),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Anchor(ctx context.Context, proofID id.ProofID) (*Receipt, error) {
	if !g.breaker.Allow() {
		g.recordFailure()
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	receipt, err := g.next.Anchor(ctx, proofID)
	if err != nil {
		g.recordFailure()
		if _, change := g.breaker.RecordFailure(); change.Opened && g.logger != nil {
			g.logger.WarnContext(ctx, "anchor circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return nil, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed && g.logger != nil {
		g.logger.InfoContext(ctx, "anchor circuit closed", "breaker", g.breaker.Name())
	}
	return receipt, nil
}

func (g *Guarded) recordFailure() {
	if g.failures != nil {
		g.failures.IncrementAnchorFailures()
	}
}
