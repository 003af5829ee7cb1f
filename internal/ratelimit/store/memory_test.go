package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofgate/internal/ratelimit/models"
)

func TestInMemoryStore_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore().WithClock(func() time.Time { return now })
	limit := models.Limit{RequestsPerWindow: 2, Window: time.Minute}
	ctx := context.Background()

	r, err := s.Allow(ctx, "k", limit)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Remaining)

	now = now.Add(30 * time.Second)
	r, _ = s.Allow(ctx, "k", limit)
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)

	r, _ = s.Allow(ctx, "k", limit)
	assert.False(t, r.Allowed)
	assert.Equal(t, 30, r.RetryAfter, "first hit leaves the window 30s from now")

	r, _ = s.Allow(ctx, "other", limit)
	assert.True(t, r.Allowed, "keys are independent")

	now = now.Add(30 * time.Second)
	r, _ = s.Allow(ctx, "k", limit)
	assert.True(t, r.Allowed, "the first hit slid out")

	require.NoError(t, s.Reset(ctx, "k"))
	r, _ = s.Allow(ctx, "k", limit)
	assert.Equal(t, 1, r.Remaining)
}

func TestNewResult_RetryAfterFloor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := models.NewResult(false, 1, 1, now.Add(100*time.Millisecond), now)
	assert.Equal(t, 1, r.RetryAfter)
	r = models.NewResult(false, 1, 1, now.Add(1500*time.Millisecond), now)
	assert.Equal(t, 2, r.RetryAfter)
}
