package catalog

import "github.com/goldflix/goldflix/internal/kv"

// Key prefixes owned by the catalog.
const (
	PrefixMovies    = "movies"
	PrefixDrafts    = "drafts"
	PrefixIdxTime   = "idx_time"
	PrefixIdxCat    = "idx_cat"
	PrefixIdxSearch = "idx_search"
	PrefixCounts    = "counts"
)

func movieKey(id string) kv.Key  { return kv.K(PrefixMovies, id) }
func draftKey(id string) kv.Key  { return kv.K(PrefixDrafts, id) }
func countKey(cat string) kv.Key { return kv.K(PrefixCounts, cat) }

func timeIdxKey(createdAt int64, id string) kv.Key {
	return kv.K(PrefixIdxTime, kv.TimePart(createdAt), id)
}

func catIdxKey(cat string, createdAt int64, id string) kv.Key {
	return kv.K(PrefixIdxCat, cat, kv.TimePart(createdAt), id)
}

func searchIdxKey(token, id string) kv.Key {
	return kv.K(PrefixIdxSearch, token, id)
}
