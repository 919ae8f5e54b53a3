package backup

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/kv/memory"
	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/catalog"
	"github.com/goldflix/goldflix/internal/server/models"
)

func newFixture(t *testing.T) (*Service, *catalog.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	cat := catalog.NewService(store, cache.New(), logging.NewNopLogger())
	return NewService(store, cat, logging.NewNopLogger()), cat, store
}

func seedMovie(t *testing.T, cat *catalog.Service, id, title string, createdAt int64) {
	t.Helper()
	err := cat.Save(context.Background(), &models.Movie{
		ID: id, Title: title, Category: "Movies",
		LinkType: models.LinkDirect, CreatedAt: createdAt,
	})
	require.NoError(t, err)
}

func TestDumpCoversPersistentPrefixesOnly(t *testing.T) {
	svc, cat, store := newFixture(t)
	ctx := context.Background()

	seedMovie(t, cat, "m1", "Dragon Ball", 1000)
	require.NoError(t, kv.PutJSON(ctx, store, kv.K("users", "alice"), models.User{Username: "alice"}))
	// volatile entries stay out of the dump
	require.NoError(t, store.Set(ctx, kv.K("stream_tokens", "t1"), []byte(`"u"`)))
	require.NoError(t, store.Set(ctx, kv.K("rate_limit", "api", "ip"), []byte(`{}`)))

	var buf bytes.Buffer
	count, err := svc.Dump(ctx, &buf)
	require.NoError(t, err)

	dump := buf.String()
	// movie + idx_time + idx_cat + counts + user
	assert.Equal(t, 5, count)
	assert.Equal(t, count, strings.Count(dump, "\n"))
	assert.Contains(t, dump, `"movies"`)
	assert.Contains(t, dump, `"alice"`)
	assert.NotContains(t, dump, "stream_tokens")
	assert.NotContains(t, dump, "rate_limit")
	// search postings are derived and never dumped
	assert.NotContains(t, dump, "idx_search")
}

func TestRestoreRoundTripRebuildsIndexes(t *testing.T) {
	src, srcCat, _ := newFixture(t)
	ctx := context.Background()

	seedMovie(t, srcCat, "m1", "Dragon Ball", 1000)
	seedMovie(t, srcCat, "m2", "Lost Kingdom", 2000)

	var buf bytes.Buffer
	_, err := src.Dump(ctx, &buf)
	require.NoError(t, err)

	dst, dstCat, dstStore := newFixture(t)
	restored, skipped, err := dst.Restore(ctx, &buf)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Greater(t, restored, 0)

	latest, err := dstCat.Latest(ctx, 20)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "m2", latest[0].ID)

	n, err := dstCat.CategoryCount(ctx, "Movies")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// the rebuild recreated search postings the dump never carried
	postings, err := dstStore.List(ctx, kv.ListOptions{Prefix: kv.K("idx_search")})
	require.NoError(t, err)
	assert.NotEmpty(t, postings)
}

func TestRestoreSkipsGarbageLines(t *testing.T) {
	dst, _, _ := newFixture(t)

	input := strings.Join([]string{
		`{"key":["users","alice"],"value":{"username":"alice"}}`,
		`this is not json`,
		``,
		`{"key":[],"value":1}`,
	}, "\n")

	restored, skipped, err := dst.Restore(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, 2, skipped)
}
