// Package backup implements the line-oriented dump/restore boundary and the
// off-site copy to S3-compatible storage. A dump is one JSON object per line,
// {"key": [...], "value": ...}, covering a fixed list of prefixes; restore
// replays the lines and then rebuilds every derived index.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/logging"
)

// dumpPrefixes is the closed list of prefixes a backup covers. Volatile data
// (stream tokens, link cache, rate limit windows, admin logs) is deliberately
// left out; it is all TTL-bounded and rebuilt by normal operation.
var dumpPrefixes = []string{
	"config",
	"movies",
	"users",
	"keys",
	"drafts",
	"banned_ips",
	"counts",
	"idx_time",
	"idx_cat",
}

// Reindexer rebuilds the derived indexes after a bulk load.
type Reindexer interface {
	RebuildAll(ctx context.Context) (int, error)
}

type line struct {
	Key   []string        `json:"key"`
	Value json.RawMessage `json:"value"`
}

type Service struct {
	store   kv.Store
	catalog Reindexer
	log     logging.Logger
}

func NewService(store kv.Store, catalog Reindexer, log logging.Logger) *Service {
	return &Service{store: store, catalog: catalog, log: log}
}

// Dump streams every entry under the backup prefixes to w and returns the
// number of lines written.
func (s *Service) Dump(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	count := 0
	for _, prefix := range dumpPrefixes {
		entries, err := s.store.List(ctx, kv.ListOptions{Prefix: kv.K(prefix)})
		if err != nil {
			return count, fmt.Errorf("dump %s: %w", prefix, err)
		}
		for _, e := range entries {
			data, err := json.Marshal(line{Key: e.Key, Value: e.Value})
			if err != nil {
				return count, fmt.Errorf("dump %s: %w", e.Key, err)
			}
			if _, err := bw.Write(append(data, '\n')); err != nil {
				return count, fmt.Errorf("dump write: %w", err)
			}
			count++
		}
	}
	if err := bw.Flush(); err != nil {
		return count, fmt.Errorf("dump flush: %w", err)
	}
	return count, nil
}

// Restore replays a dump through plain sets and then rebuilds all derived
// indexes. Unparseable lines are counted and skipped, never fatal; a partial
// dump is still worth loading.
func (s *Service) Restore(ctx context.Context, r io.Reader) (restored, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil || len(l.Key) == 0 {
			skipped++
			continue
		}
		if err := s.store.Set(ctx, kv.Key(l.Key), l.Value); err != nil {
			return restored, skipped, fmt.Errorf("restore %v: %w", l.Key, err)
		}
		restored++
	}
	if err := scanner.Err(); err != nil {
		return restored, skipped, fmt.Errorf("restore read: %w", err)
	}

	if skipped > 0 {
		s.log.Warn(ctx, "restore skipped unparseable lines", "count", skipped)
	}
	// the dump carries no search postings; the rebuild recreates them and
	// brings every index in line with the restored records
	if _, err := s.catalog.RebuildAll(ctx); err != nil {
		return restored, skipped, fmt.Errorf("restore reindex: %w", err)
	}
	s.log.Info(ctx, "restore complete", "restored", restored, "skipped", skipped)
	return restored, skipped, nil
}
