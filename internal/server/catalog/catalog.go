// Package catalog owns the primary movie records and every derived index:
// the chronological index, the per-category index, the search postings and
// the category counters. All writes go through Save/Delete so the indexes
// never drift from the primary records except transiently during a crash,
// and RebuildAll/Repair heal that drift.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/models"
)

type Service struct {
	store kv.Store
	cache *cache.Cache
	log   logging.Logger
	now   func() time.Time
}

func NewService(store kv.Store, c *cache.Cache, log logging.Logger) *Service {
	return &Service{store: store, cache: c, log: log, now: time.Now}
}

// Save validates the record, migrates any index entries whose key components
// changed, adjusts the category counters and rewrites the primary record plus
// both summaries. Search postings are diffed against the previous record so
// unchanged tokens are left untouched. The steps are not atomic; a crash
// between them leaves a consistency window that RebuildAll closes.
func (s *Service) Save(ctx context.Context, movie *models.Movie) error {
	if movie.ID == "" {
		return fmt.Errorf("%w: empty movie id", common.ErrInvalidInput)
	}
	if !models.ValidCategory(movie.Category) {
		return fmt.Errorf("%w: unknown category %q", common.ErrInvalidInput, movie.Category)
	}
	if movie.CreatedAt == 0 {
		movie.CreatedAt = s.now().UnixMilli()
	}

	var old *models.Movie
	var prev models.Movie
	err := kv.GetJSON(ctx, s.store, movieKey(movie.ID), &prev)
	switch {
	case err == nil:
		old = &prev
	case kv.IsNotFound(err):
	default:
		return fmt.Errorf("save movie %s: %w", movie.ID, err)
	}

	s.cache.InvalidateListings()

	newTokens := tokenSet(movie.Title, movie.Tags)
	if old != nil {
		oldTokens := tokenSet(old.Title, old.Tags)
		for t := range oldTokens {
			if _, keep := newTokens[t]; keep {
				continue
			}
			if err := s.store.Delete(ctx, searchIdxKey(t, movie.ID)); err != nil {
				return fmt.Errorf("save movie %s: %w", movie.ID, err)
			}
		}
		for t := range oldTokens {
			delete(newTokens, t)
		}

		if old.Category != movie.Category {
			if err := s.store.Delete(ctx, catIdxKey(old.Category, old.CreatedAt, old.ID)); err != nil {
				return fmt.Errorf("save movie %s: %w", movie.ID, err)
			}
			if err := s.adjustCount(ctx, old.Category, -1); err != nil {
				return err
			}
		}
		if old.CreatedAt != movie.CreatedAt {
			if err := s.store.Delete(ctx, timeIdxKey(old.CreatedAt, old.ID)); err != nil {
				return fmt.Errorf("save movie %s: %w", movie.ID, err)
			}
			if old.Category == movie.Category {
				if err := s.store.Delete(ctx, catIdxKey(old.Category, old.CreatedAt, old.ID)); err != nil {
					return fmt.Errorf("save movie %s: %w", movie.ID, err)
				}
			}
		}
	}
	if old == nil || old.Category != movie.Category {
		if err := s.adjustCount(ctx, movie.Category, +1); err != nil {
			return err
		}
	}

	if err := kv.PutJSON(ctx, s.store, movieKey(movie.ID), movie); err != nil {
		return fmt.Errorf("save movie %s: %w", movie.ID, err)
	}
	summary := movie.Summary()
	if err := kv.PutJSON(ctx, s.store, timeIdxKey(movie.CreatedAt, movie.ID), summary); err != nil {
		return fmt.Errorf("save movie %s: %w", movie.ID, err)
	}
	if err := kv.PutJSON(ctx, s.store, catIdxKey(movie.Category, movie.CreatedAt, movie.ID), summary); err != nil {
		return fmt.Errorf("save movie %s: %w", movie.ID, err)
	}
	// after the diff above newTokens holds only tokens not present before
	for t := range newTokens {
		if err := kv.PutJSON(ctx, s.store, searchIdxKey(t, movie.ID), movie.CreatedAt); err != nil {
			return fmt.Errorf("save movie %s: %w", movie.ID, err)
		}
	}
	return nil
}

// Delete removes the record, both index entries, every search posting and
// decrements its category counter. Deleting an absent id is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	var movie models.Movie
	err := kv.GetJSON(ctx, s.store, movieKey(id), &movie)
	if kv.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete movie %s: %w", id, err)
	}

	s.cache.InvalidateListings()

	if err := s.store.Delete(ctx, movieKey(id)); err != nil {
		return fmt.Errorf("delete movie %s: %w", id, err)
	}
	if err := s.store.Delete(ctx, timeIdxKey(movie.CreatedAt, id)); err != nil {
		return fmt.Errorf("delete movie %s: %w", id, err)
	}
	if err := s.store.Delete(ctx, catIdxKey(movie.Category, movie.CreatedAt, id)); err != nil {
		return fmt.Errorf("delete movie %s: %w", id, err)
	}
	for t := range tokenSet(movie.Title, movie.Tags) {
		if err := s.store.Delete(ctx, searchIdxKey(t, id)); err != nil {
			return fmt.Errorf("delete movie %s: %w", id, err)
		}
	}
	return s.adjustCount(ctx, movie.Category, -1)
}

// Get loads a primary record; common.ErrNotFound when absent.
func (s *Service) Get(ctx context.Context, id string) (*models.Movie, error) {
	var movie models.Movie
	if err := kv.GetJSON(ctx, s.store, movieKey(id), &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

// Latest returns the n most recent summaries from the chronological index.
// Results for n <= 20 are served through the cache.
func (s *Service) Latest(ctx context.Context, n int) ([]models.MovieSummary, error) {
	if n <= 0 {
		n = 20
	}
	cacheKey := "latest:" + strconv.Itoa(n)
	if n <= 20 {
		if v, ok := s.cache.Get(cache.Movies, cacheKey); ok {
			return v.([]models.MovieSummary), nil
		}
	}

	summaries, err := s.listSummaries(ctx, kv.K(PrefixIdxTime), n)
	if err != nil {
		return nil, fmt.Errorf("latest movies: %w", err)
	}
	if n <= 20 {
		s.cache.Put(cache.Movies, cacheKey, summaries)
	}
	return summaries, nil
}

// ByCategory returns the n most recent summaries of one category, cached per
// (category, limit) pair.
func (s *Service) ByCategory(ctx context.Context, cat string, n int) ([]models.MovieSummary, error) {
	if n <= 0 {
		n = 20
	}
	cacheKey := cat + ":" + strconv.Itoa(n)
	if v, ok := s.cache.Get(cache.Categories, cacheKey); ok {
		return v.([]models.MovieSummary), nil
	}

	summaries, err := s.listSummaries(ctx, kv.K(PrefixIdxCat, cat), n)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", cat, err)
	}
	s.cache.Put(cache.Categories, cacheKey, summaries)
	return summaries, nil
}

func (s *Service) listSummaries(ctx context.Context, prefix kv.Key, n int) ([]models.MovieSummary, error) {
	entries, err := s.store.List(ctx, kv.ListOptions{Prefix: prefix, Reverse: true, Limit: n})
	if err != nil {
		return nil, err
	}
	summaries := make([]models.MovieSummary, 0, len(entries))
	for _, e := range entries {
		var sum models.MovieSummary
		if err := unmarshalEntry(e, &sum); err != nil {
			s.log.Warn(ctx, "skipping unreadable index entry", "key", e.Key.String(), "error", err)
			continue
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func unmarshalEntry(e kv.Entry, out any) error {
	return json.Unmarshal(e.Value, out)
}

// CategoryCount returns the approximate live count for a category; zero when
// the counter is missing.
func (s *Service) CategoryCount(ctx context.Context, cat string) (int64, error) {
	var n int64
	err := kv.GetJSON(ctx, s.store, countKey(cat), &n)
	if kv.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", cat, err)
	}
	return n, nil
}

func (s *Service) adjustCount(ctx context.Context, cat string, delta int64) error {
	n, err := s.CategoryCount(ctx, cat)
	if err != nil {
		return err
	}
	n += delta
	if n < 0 {
		n = 0
	}
	if err := kv.PutJSON(ctx, s.store, countKey(cat), n); err != nil {
		return fmt.Errorf("count %s: %w", cat, err)
	}
	return nil
}

// RebuildAll resets every category counter, replays each primary record
// through Save and force-writes its search postings, so postings lost to a
// partial failure or absent after a restore come back. Idempotent; running
// it twice over an unchanged catalog produces identical indexes.
func (s *Service) RebuildAll(ctx context.Context) (int, error) {
	s.cache.InvalidateListings()

	for _, cat := range models.Categories {
		if err := s.store.Delete(ctx, countKey(cat)); err != nil {
			return 0, fmt.Errorf("reindex: %w", err)
		}
	}

	entries, err := s.store.List(ctx, kv.ListOptions{Prefix: kv.K(PrefixMovies)})
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	count := 0
	tally := make(map[string]int64)
	for _, e := range entries {
		var movie models.Movie
		if err := unmarshalEntry(e, &movie); err != nil {
			s.log.Warn(ctx, "reindex skipping unreadable record", "key", e.Key.String(), "error", err)
			continue
		}
		if err := s.Save(ctx, &movie); err != nil {
			return count, fmt.Errorf("reindex %s: %w", movie.ID, err)
		}
		if err := s.writePostings(ctx, &movie); err != nil {
			return count, fmt.Errorf("reindex %s: %w", movie.ID, err)
		}
		tally[movie.Category]++
		count++
	}
	// replaying Save over records that already exist never touches the
	// counters, so they are written from the tally afterwards
	if err := s.writeCounts(ctx, tally); err != nil {
		return count, err
	}
	s.log.Info(ctx, "reindex complete", "movies", count)
	return count, nil
}

// writePostings force-writes the record's full token set. Save only diffs
// postings against the stored primary record, so missing postings would
// otherwise survive a replay; the rebuild paths write every token outright.
func (s *Service) writePostings(ctx context.Context, movie *models.Movie) error {
	for t := range tokenSet(movie.Title, movie.Tags) {
		if err := kv.PutJSON(ctx, s.store, searchIdxKey(t, movie.ID), movie.CreatedAt); err != nil {
			return fmt.Errorf("posting %s/%s: %w", t, movie.ID, err)
		}
	}
	return nil
}

func (s *Service) writeCounts(ctx context.Context, tally map[string]int64) error {
	for cat, n := range tally {
		if err := kv.PutJSON(ctx, s.store, countKey(cat), n); err != nil {
			return fmt.Errorf("count %s: %w", cat, err)
		}
	}
	return nil
}

// Repair is the heavy recovery path: it clears every derived index outright,
// assigns a creation timestamp to records missing one, then rebuilds through
// Save. Used after partial failures have left orphaned index entries that
// RebuildAll alone would not remove.
func (s *Service) Repair(ctx context.Context) (scanned, fixed int, err error) {
	s.cache.Clear()

	for _, prefix := range []string{PrefixIdxTime, PrefixIdxCat, PrefixIdxSearch} {
		entries, err := s.store.List(ctx, kv.ListOptions{Prefix: kv.K(prefix)})
		if err != nil {
			return 0, 0, fmt.Errorf("repair: %w", err)
		}
		for _, e := range entries {
			if err := s.store.Delete(ctx, e.Key); err != nil {
				return 0, 0, fmt.Errorf("repair: %w", err)
			}
		}
	}
	for _, cat := range models.Categories {
		if err := s.store.Delete(ctx, countKey(cat)); err != nil {
			return 0, 0, fmt.Errorf("repair: %w", err)
		}
	}

	entries, err := s.store.List(ctx, kv.ListOptions{Prefix: kv.K(PrefixMovies)})
	if err != nil {
		return 0, 0, fmt.Errorf("repair: %w", err)
	}
	tally := make(map[string]int64)
	for _, e := range entries {
		var movie models.Movie
		if err := unmarshalEntry(e, &movie); err != nil {
			s.log.Warn(ctx, "repair skipping unreadable record", "key", e.Key.String(), "error", err)
			continue
		}
		if movie.CreatedAt == 0 {
			// stagger synthesized timestamps so ordering stays stable
			movie.CreatedAt = s.now().UnixMilli() - int64(scanned)*1000
			fixed++
		}
		if err := s.Save(ctx, &movie); err != nil {
			return scanned, fixed, fmt.Errorf("repair %s: %w", movie.ID, err)
		}
		if err := s.writePostings(ctx, &movie); err != nil {
			return scanned, fixed, fmt.Errorf("repair %s: %w", movie.ID, err)
		}
		tally[movie.Category]++
		scanned++
	}
	if err := s.writeCounts(ctx, tally); err != nil {
		return scanned, fixed, err
	}
	s.log.Info(ctx, "repair complete", "scanned", scanned, "fixed", fixed)
	return scanned, fixed, nil
}
