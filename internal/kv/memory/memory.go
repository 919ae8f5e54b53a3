// Package memory provides an in-memory kv.Store used by tests and local
// development. Expiry is evaluated lazily against an injectable clock and
// versions grow from a single counter, mirroring the semantics the postgres
// adapter gets from its backing table.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
)

type record struct {
	key       kv.Key
	value     []byte
	version   int64
	expiresAt time.Time // zero means no expiry
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]*record
	version int64
	now     func() time.Time
}

// New returns an empty store using the wall clock.
func New() *Store { return NewWithClock(time.Now) }

// NewWithClock returns an empty store reading time from now; tests use this
// to step through TTL windows deterministically.
func NewWithClock(now func() time.Time) *Store {
	return &Store{entries: make(map[string]*record), now: now}
}

func (s *Store) expired(r *record) bool {
	return !r.expiresAt.IsZero() && !s.now().Before(r.expiresAt)
}

func (s *Store) Get(_ context.Context, key kv.Key) (*kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[key.Encode()]
	if !ok || s.expired(r) {
		return nil, common.ErrNotFound
	}
	return &kv.Entry{Key: r.key, Value: r.value, Version: r.version}, nil
}

func (s *Store) GetMany(ctx context.Context, keys []kv.Key) ([]*kv.Entry, error) {
	out := make([]*kv.Entry, len(keys))
	for i, k := range keys {
		entry, err := s.Get(ctx, k)
		if err != nil {
			if kv.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out[i] = entry
	}
	return out, nil
}

func (s *Store) Set(_ context.Context, key kv.Key, value []byte, opts ...kv.SetOption) error {
	var o kv.SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, o.TTL)
	return nil
}

// put assumes s.mu is held.
func (s *Store) put(key kv.Key, value []byte, ttl time.Duration) {
	s.version++
	r := &record{key: append(kv.Key(nil), key...), value: append([]byte(nil), value...), version: s.version}
	if ttl > 0 {
		r.expiresAt = s.now().Add(ttl)
	}
	s.entries[key.Encode()] = r
}

func (s *Store) Delete(_ context.Context, key kv.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.Encode())
	return nil
}

func (s *Store) List(_ context.Context, opts kv.ListOptions) ([]kv.Entry, error) {
	var start, end string
	if len(opts.Prefix) > 0 {
		start, end = opts.Prefix.PrefixRange()
	} else {
		start, end = opts.Start.Encode(), opts.End.Encode()
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k, r := range s.entries {
		if k >= start && k < end && !s.expired(r) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if opts.Reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}
	out := make([]kv.Entry, 0, len(keys))
	for _, k := range keys {
		r := s.entries[k]
		out = append(out, kv.Entry{Key: r.key, Value: r.value, Version: r.version})
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) CompareAndSet(_ context.Context, key kv.Key, expectedVersion int64, value []byte, opts ...kv.SetOption) error {
	var o kv.SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.entries[key.Encode()]
	if ok && s.expired(r) {
		ok = false
	}
	switch {
	case expectedVersion == 0 && ok:
		return common.ErrConflict
	case expectedVersion != 0 && (!ok || r.version != expectedVersion):
		return common.ErrConflict
	}
	s.put(key, value, o.TTL)
	return nil
}

func (s *Store) Close() error { return nil }

// Len reports the number of live entries; test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.entries {
		if !s.expired(r) {
			n++
		}
	}
	return n
}
