//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofgate/internal/ratelimit/models"
	"proofgate/pkg/testutil/containers"
)

func TestRedisStore_SlidingWindow(t *testing.T) {
	rc := containers.GetManager().Redis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	now := time.Now()
	s := NewRedisStore(rc.Client)
	s.now = func() time.Time { return now }
	limit := models.Limit{RequestsPerWindow: 2, Window: time.Minute}

	for range 2 {
		r, err := s.Allow(ctx, "rl:test", limit)
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}
	r, err := s.Allow(ctx, "rl:test", limit)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, 60, r.RetryAfter)

	now = now.Add(time.Minute + time.Millisecond)
	r, err = s.Allow(ctx, "rl:test", limit)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Remaining)

	require.NoError(t, s.Reset(ctx, "rl:test"))
}
