// Package search answers free-text queries from the inverted index the
// catalog maintains. Recall comes from the postings, precision from a final
// substring filter over the fetched records.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/catalog"
	"github.com/goldflix/goldflix/internal/server/models"
)

const (
	// per-token postings scanned before the token is cut off
	maxPostingsPerToken = 200
	// ranked candidates carried into the record fetch
	maxCandidates = 50
	// records fetched per GetMany batch
	fetchBatchSize = 10
	// cache keys keep at most this many bytes of the query
	cacheKeyBytes = 50
)

type Engine struct {
	store kv.Store
	cache *cache.Cache
}

func NewEngine(store kv.Store, c *cache.Cache) *Engine {
	return &Engine{store: store, cache: c}
}

// Search tokenizes the query with the writer's tokenizer, scores candidates
// by how many query tokens hit them, fetches the top candidates in batches
// and keeps only records containing every token as a case-insensitive
// substring of title+tags+description. An empty or all-noise query returns
// no results without touching the store.
func (e *Engine) Search(ctx context.Context, query string) ([]models.Movie, error) {
	tokens := catalog.Tokenize(query)
	if len(tokens) == 0 {
		return []models.Movie{}, nil
	}

	cacheKey := normalizeQuery(query)
	if v, ok := e.cache.Get(cache.Search, cacheKey); ok {
		return v.([]models.Movie), nil
	}

	scores := make(map[string]int)
	for _, token := range tokens {
		entries, err := e.store.List(ctx, kv.ListOptions{
			Prefix: kv.K(catalog.PrefixIdxSearch, token),
			Limit:  maxPostingsPerToken,
		})
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", token, err)
		}
		for _, entry := range entries {
			// posting key is (idx_search, token, movieID)
			if len(entry.Key) != 3 {
				continue
			}
			scores[entry.Key[2]]++
		}
	}

	ids := rankCandidates(scores)
	results := make([]models.Movie, 0, len(ids))
	for i := 0; i < len(ids); i += fetchBatchSize {
		batch := ids[i:min(i+fetchBatchSize, len(ids))]
		keys := make([]kv.Key, len(batch))
		for j, id := range batch {
			keys[j] = kv.K(catalog.PrefixMovies, id)
		}
		entries, err := e.store.GetMany(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("search fetch: %w", err)
		}
		for _, entry := range entries {
			if entry == nil {
				continue
			}
			var movie models.Movie
			if err := json.Unmarshal(entry.Value, &movie); err != nil {
				continue
			}
			results = append(results, movie)
		}
	}

	final := make([]models.Movie, 0, len(results))
	for _, m := range results {
		if matchesAll(&m, tokens) {
			final = append(final, m)
		}
	}

	e.cache.Put(cache.Search, cacheKey, final)
	return final, nil
}

// rankCandidates orders ids by hit count descending and caps the list.
// Ties break on id so the ordering is deterministic.
func rankCandidates(scores map[string]int) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > maxCandidates {
		ids = ids[:maxCandidates]
	}
	return ids
}

// matchesAll requires every token as a substring of the record's text.
func matchesAll(m *models.Movie, tokens []string) bool {
	text := strings.ToLower(m.Title + " " + m.Tags + " " + m.Description)
	for _, t := range tokens {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func normalizeQuery(q string) string {
	q = strings.ToLower(q)
	if len(q) > cacheKeyBytes {
		q = q[:cacheKeyBytes]
	}
	return q
}
