package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/kv/memory"
	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/models"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := NewService(store, cache.New(), logging.NewNopLogger())
	return svc, store
}

func testMovie(id, cat, title string, createdAt int64) *models.Movie {
	return &models.Movie{
		ID:        id,
		Title:     title,
		Category:  cat,
		Tags:      "",
		Year:      "2025",
		StreamURL: "https://cdn.example.com/" + id,
		LinkType:  models.LinkDirect,
		CreatedAt: createdAt,
	}
}

func prefixKeys(t *testing.T, store kv.Store, prefix ...string) []string {
	t.Helper()
	entries, err := store.List(context.Background(), kv.ListOptions{Prefix: kv.K(prefix...)})
	require.NoError(t, err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key.String())
	}
	return keys
}

func TestSaveValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Save(ctx, testMovie("", "Movies", "x", 1))
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	err = svc.Save(ctx, testMovie("m1", "Documentary", "x", 1))
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSaveCreatesIndexEntriesAndCounter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "Dragon Ball", 1000)))

	assert.Len(t, prefixKeys(t, store, PrefixIdxTime), 1)
	assert.Len(t, prefixKeys(t, store, PrefixIdxCat, "Movies"), 1)
	assert.ElementsMatch(t,
		[]string{"idx_search/dragon/m1", "idx_search/ball/m1"},
		prefixKeys(t, store, PrefixIdxSearch))

	n, err := svc.CategoryCount(ctx, "Movies")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Dragon Ball", got.Title)
}

func TestSaveThenDeleteLeavesNothing(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	before, err := svc.CategoryCount(ctx, "Series")
	require.NoError(t, err)

	require.NoError(t, svc.Save(ctx, testMovie("s1", "Series", "Lost Kingdom", 2000)))
	require.NoError(t, svc.Delete(ctx, "s1"))

	assert.Empty(t, prefixKeys(t, store, PrefixMovies))
	assert.Empty(t, prefixKeys(t, store, PrefixIdxTime))
	assert.Empty(t, prefixKeys(t, store, PrefixIdxCat))
	assert.Empty(t, prefixKeys(t, store, PrefixIdxSearch))

	after, err := svc.CategoryCount(ctx, "Series")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	assert.NoError(t, svc.Delete(context.Background(), "ghost"))
}

func TestSaveCategoryChangeMovesIndexAndCounters(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	m := testMovie("m1", "Movies", "Dragon", 1000)
	require.NoError(t, svc.Save(ctx, m))

	moved := *m
	moved.Category = "Series"
	require.NoError(t, svc.Save(ctx, &moved))

	assert.Empty(t, prefixKeys(t, store, PrefixIdxCat, "Movies"))
	assert.Len(t, prefixKeys(t, store, PrefixIdxCat, "Series"), 1)
	// one chronological entry regardless of the move
	assert.Len(t, prefixKeys(t, store, PrefixIdxTime), 1)

	nMovies, err := svc.CategoryCount(ctx, "Movies")
	require.NoError(t, err)
	nSeries, err := svc.CategoryCount(ctx, "Series")
	require.NoError(t, err)
	assert.Equal(t, int64(0), nMovies)
	assert.Equal(t, int64(1), nSeries)
}

func TestSaveTimestampBumpMovesChronologicalEntry(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "Dragon", 1000)))

	bumped := testMovie("m1", "Movies", "Dragon", 5000)
	require.NoError(t, svc.Save(ctx, bumped))

	timeKeys := prefixKeys(t, store, PrefixIdxTime)
	require.Len(t, timeKeys, 1)
	assert.Equal(t, "idx_time/"+kv.TimePart(5000)+"/m1", timeKeys[0])
	assert.Len(t, prefixKeys(t, store, PrefixIdxCat, "Movies"), 1)

	// counter unchanged by a same-category rewrite
	n, err := svc.CategoryCount(ctx, "Movies")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSaveDiffsSearchPostings(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "Dragon Ball", 1000)))

	retitled := testMovie("m1", "Movies", "Dragon Quest", 1000)
	require.NoError(t, svc.Save(ctx, retitled))

	assert.ElementsMatch(t,
		[]string{"idx_search/dragon/m1", "idx_search/quest/m1"},
		prefixKeys(t, store, PrefixIdxSearch))
}

func TestLatestOrderAndCaching(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "First", 1000)))
	require.NoError(t, svc.Save(ctx, testMovie("m2", "Movies", "Second", 3000)))
	require.NoError(t, svc.Save(ctx, testMovie("m3", "Movies", "Third", 2000)))

	latest, err := svc.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "m2", latest[0].ID)
	assert.Equal(t, "m3", latest[1].ID)

	// served from cache: a direct store write does not show up
	require.NoError(t, store.Delete(ctx, kv.K(PrefixIdxTime, kv.TimePart(3000), "m2")))
	again, err := svc.Latest(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, latest, again)

	// a Save invalidates the listing caches
	require.NoError(t, svc.Save(ctx, testMovie("m4", "Movies", "Fourth", 4000)))
	fresh, err := svc.Latest(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "m4", fresh[0].ID)
}

func TestByCategory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "A", 1000)))
	require.NoError(t, svc.Save(ctx, testMovie("s1", "Series", "B", 2000)))
	require.NoError(t, svc.Save(ctx, testMovie("m2", "Movies", "C", 3000)))

	movies, err := svc.ByCategory(ctx, "Movies", 20)
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, "m2", movies[0].ID)
	assert.Equal(t, "m1", movies[1].ID)

	empty, err := svc.ByCategory(ctx, "Animation", 20)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRebuildAllHealsDriftAndIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "Dragon", 1000)))
	require.NoError(t, svc.Save(ctx, testMovie("m2", "Series", "Quest", 2000)))

	// simulate drift: corrupt a counter
	require.NoError(t, kv.PutJSON(ctx, store, kv.K(PrefixCounts, "Movies"), int64(99)))

	n, err := svc.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cnt, err := svc.CategoryCount(ctx, "Movies")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)

	firstTime := prefixKeys(t, store, PrefixIdxTime)
	firstSearch := prefixKeys(t, store, PrefixIdxSearch)

	_, err = svc.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, firstTime, prefixKeys(t, store, PrefixIdxTime))
	assert.Equal(t, firstSearch, prefixKeys(t, store, PrefixIdxSearch))
}

func TestRebuildAllRestoresMissingPostings(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "Dragon", 1000)))

	// a crash between the primary write and the posting writes leaves the
	// record unsearchable; replaying Save alone would diff against the
	// stored record and write nothing
	require.NoError(t, store.Delete(ctx, kv.K(PrefixIdxSearch, "dragon", "m1")))

	_, err := svc.RebuildAll(ctx)
	require.NoError(t, err)

	assert.Contains(t, prefixKeys(t, store, PrefixIdxSearch),
		kv.K(PrefixIdxSearch, "dragon", "m1").String())
}

func TestRepairRemovesOrphansAndAssignsTimestamps(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, testMovie("m1", "Movies", "Dragon", 1000)))

	// orphan posting left behind by a crashed delete
	require.NoError(t, kv.PutJSON(ctx, store, kv.K(PrefixIdxSearch, "ghost", "gone"), int64(1)))
	// record missing its creation timestamp
	require.NoError(t, kv.PutJSON(ctx, store, kv.K(PrefixMovies, "m2"),
		testMovie("m2", "Movies", "Quest", 0)))

	scanned, fixed, err := svc.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, scanned)
	assert.Equal(t, 1, fixed)

	search := prefixKeys(t, store, PrefixIdxSearch)
	assert.NotContains(t, search, "idx_search/ghost/gone")
	assert.Contains(t, search, "idx_search/dragon/m1")
	assert.Contains(t, search, "idx_search/quest/m2")

	m2, err := svc.Get(ctx, "m2")
	require.NoError(t, err)
	assert.NotZero(t, m2.CreatedAt)
}

func TestDraftsLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	draft := testMovie("d1", "Movies", "Hidden Gem", 1000)
	require.NoError(t, svc.SaveDraft(ctx, draft))

	// drafts join no index
	assert.Empty(t, prefixKeys(t, store, PrefixIdxTime))
	assert.Empty(t, prefixKeys(t, store, PrefixIdxSearch))

	got, err := svc.GetDraft(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Hidden Gem", got.Title)

	require.NoError(t, svc.Publish(ctx, "d1"))

	_, err = svc.GetDraft(ctx, "d1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	live, err := svc.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Hidden Gem", live.Title)
	assert.Len(t, prefixKeys(t, store, PrefixIdxTime), 1)
}

func TestPublishAll(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveDraft(ctx, testMovie("d1", "Movies", "One", 1000)))
	require.NoError(t, svc.SaveDraft(ctx, testMovie("d2", "Series", "Two", 2000)))

	n, err := svc.PublishAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	drafts, err := svc.ListDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	cnt, err := svc.CategoryCount(ctx, "Movies")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}
