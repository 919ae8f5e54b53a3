package accounts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/kv/memory"
	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/catalog"
	"github.com/goldflix/goldflix/internal/server/models"
)

func seedMovie(t *testing.T, cat *catalog.Service, id string, price int64) {
	t.Helper()
	err := cat.Save(context.Background(), &models.Movie{
		ID:        id,
		Title:     "Title " + id,
		Category:  "Movies",
		LinkType:  models.LinkDirect,
		Price:     price,
		CreatedAt: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
}

func TestPurchaseHappyPathThenAlreadyOwned(t *testing.T) {
	svc, cat, _ := newTestService(t)
	ctx := context.Background()

	seedMovie(t, cat, "m1", 1000)
	register(t, svc, "alice")
	require.NoError(t, svc.Credit(ctx, "alice", 1000))

	require.NoError(t, svc.Purchase(ctx, "alice", "m1"))

	user, err := svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Coins)
	assert.True(t, user.Owns("m1"))

	err = svc.Purchase(ctx, "alice", "m1")
	assert.ErrorIs(t, err, common.ErrAlreadyOwned)

	// balance untouched by the rejected second attempt
	user, err = svc.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Coins)
}

func TestPurchasePreconditions(t *testing.T) {
	svc, cat, _ := newTestService(t)
	ctx := context.Background()

	seedMovie(t, cat, "paid", 500)
	seedMovie(t, cat, "free", 0)
	register(t, svc, "alice")

	err := svc.Purchase(ctx, "alice", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = svc.Purchase(ctx, "alice", "free")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	err = svc.Purchase(ctx, "alice", "paid")
	assert.ErrorIs(t, err, common.ErrInsufficientFunds)
}

// conflictStore wedges a concurrent user update between the purchase's read
// and its compare-and-set.
type conflictStore struct {
	kv.Store
	target kv.Key
	fired  bool
}

func (c *conflictStore) Get(ctx context.Context, key kv.Key) (*kv.Entry, error) {
	entry, err := c.Store.Get(ctx, key)
	if err != nil || c.fired || key.Encode() != c.target.Encode() {
		return entry, err
	}
	c.fired = true

	var user models.User
	if err := json.Unmarshal(entry.Value, &user); err != nil {
		return nil, err
	}
	user.Coins += 50 // an interleaved top-up bumps the version
	data, err := json.Marshal(&user)
	if err != nil {
		return nil, err
	}
	if err := c.Store.Set(ctx, key, data); err != nil {
		return nil, err
	}
	return entry, nil
}

func TestPurchaseConflictIsSurfacedNotRetried(t *testing.T) {
	base := memory.New()
	cat := catalog.NewService(base, cache.New(), logging.NewNopLogger())
	wrapped := &conflictStore{Store: base, target: kv.K(PrefixUsers, "alice")}
	svc := NewService(wrapped, cat, "test-salt", logging.NewNopLogger())
	ctx := context.Background()

	seedMovie(t, cat, "m1", 100)
	_, err := svc.Register(ctx, "alice", "secret123", "ip", "q", "a")
	require.NoError(t, err)
	require.NoError(t, svc.Credit(ctx, "alice", 1000))
	wrapped.fired = false // the writes above also pass through Get

	err = svc.Purchase(ctx, "alice", "m1")
	assert.ErrorIs(t, err, common.ErrConflict)

	// the interleaved write won; no coins were deducted for the movie
	var user models.User
	require.NoError(t, kv.GetJSON(ctx, base, kv.K(PrefixUsers, "alice"), &user))
	assert.Equal(t, int64(1050), user.Coins)
	assert.False(t, user.Owns("m1"))
}
