package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldflix/goldflix/internal/kv/memory"
	"github.com/goldflix/goldflix/internal/logging"
)

func newTestLimiter(t *testing.T, limits map[string]Limit) (*Limiter, *time.Time) {
	t.Helper()
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	store := memory.NewWithClock(clock)
	return NewLimiterWithClock(store, limits, logging.NewNopLogger(), clock), &now
}

func TestAllowUpToThresholdThenDeny(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Limit{
		Global: {Max: 3, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4", Global)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}
	ok, err := l.Allow(ctx, "1.2.3.4", Global)
	require.NoError(t, err)
	assert.False(t, ok)

	// a different client has its own counter
	ok, err = l.Allow(ctx, "5.6.7.8", Global)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWindowElapsedResets(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Limit{
		Login: {Max: 2, Window: 15 * time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "ip", Login)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip", Login)
	require.NoError(t, err)
	require.False(t, ok)

	*now = now.Add(15*time.Minute + time.Second)
	ok, err = l.Allow(ctx, "ip", Login)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDenialDoesNotExtendWindow(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Limit{
		Search: {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "ip", Search)
	require.NoError(t, err)
	require.True(t, ok)

	// hammering a denied client must not push the reset forward
	for i := 0; i < 5; i++ {
		ok, err = l.Allow(ctx, "ip", Search)
		require.NoError(t, err)
		require.False(t, ok)
	}

	*now = now.Add(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "ip", Search)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCategoriesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Limit{
		Global: {Max: 1, Window: time.Minute},
		API:    {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "ip", Global)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Allow(ctx, "ip", Global)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = l.Allow(ctx, "ip", API)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnknownCategoryFallsBackToGlobal(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Limit{
		Global: {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	ok, err := l.Allow(ctx, "ip", "mystery")
	require.NoError(t, err)
	require.True(t, ok)

	// second request shares the global counter
	ok, err = l.Allow(ctx, "ip", Global)
	require.NoError(t, err)
	assert.False(t, ok)
}
