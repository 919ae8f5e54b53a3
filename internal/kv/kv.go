// Package kv defines the ordered key-value store boundary the backend is
// built on. The store itself is external; this package only describes the
// consumed capability (get/set/delete, ordered range listing, TTL expiry and
// single-key optimistic compare-and-set) plus the hierarchical key scheme.
//
// Keys are tuples of string parts. Adapters encode a tuple by joining its
// parts with a separator byte that sorts below any printable character, so
// lexicographic order over encoded keys equals component-wise tuple order.
// Key parts must not contain control bytes; numeric parts (timestamps) are
// written through TimePart so their text order equals their numeric order.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goldflix/goldflix/internal/common"
)

// Key is a hierarchical store key, e.g. K("idx_cat", "Movies", TimePart(ts), id).
type Key []string

// K builds a Key from its parts.
func K(parts ...string) Key { return Key(parts) }

// Append returns a new Key with the given parts appended.
func (k Key) Append(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// sep sorts below every byte key parts may contain.
const sep = "\x1f"

// Encode flattens the key into the adapters' storage representation.
func (k Key) Encode() string { return strings.Join(k, sep) }

// PrefixRange returns the half-open encoded range [start, end) covering every
// key strictly under k.
func (k Key) PrefixRange() (start, end string) {
	p := k.Encode()
	return p + sep, p + "\x20"
}

// String renders the key for logs and error messages.
func (k Key) String() string { return strings.Join(k, "/") }

// TimePart encodes a millisecond timestamp as a fixed-width decimal so that
// lexicographic order over key parts matches numeric order.
func TimePart(ms int64) string { return fmt.Sprintf("%020d", ms) }

// Entry is a stored key/value pair with the version observed at read time.
// Versions are opaque monotone markers used only by CompareAndSet.
type Entry struct {
	Key     Key
	Value   []byte
	Version int64
}

// ListOptions selects a contiguous slice of the ordered key space. Either
// Prefix or the explicit Start/End pair must be set.
type ListOptions struct {
	Prefix  Key
	Start   Key
	End     Key
	Reverse bool
	Limit   int
}

// SetOptions carries optional write parameters.
type SetOptions struct {
	TTL time.Duration
}

type SetOption func(*SetOptions)

// WithTTL makes the entry expire after d. Zero means no expiry.
func WithTTL(d time.Duration) SetOption {
	return func(o *SetOptions) { o.TTL = d }
}

// Store is the consumed store capability. Adapters return common.ErrNotFound
// for missing keys and common.ErrConflict for compare-and-set losses; any
// other failure wraps the underlying driver error and is surfaced to the
// caller as-is, never retried here.
type Store interface {
	Get(ctx context.Context, key Key) (*Entry, error)
	// GetMany fetches a batch of keys; missing keys yield nil slots so the
	// result always lines up with the request.
	GetMany(ctx context.Context, keys []Key) ([]*Entry, error)
	Set(ctx context.Context, key Key, value []byte, opts ...SetOption) error
	// Delete is a no-op when the key is absent.
	Delete(ctx context.Context, key Key) error
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
	// CompareAndSet writes value only if the key's current version equals
	// expectedVersion. Zero means the key must not exist yet.
	CompareAndSet(ctx context.Context, key Key, expectedVersion int64, value []byte, opts ...SetOption) error
	Close() error
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, key Key, v any, opts ...SetOption) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data, opts...)
}

// GetJSON loads key into out. Missing keys surface as common.ErrNotFound.
func GetJSON(ctx context.Context, s Store, key Key, out any) error {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Value, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// IsNotFound reports whether err is the store's missing-key error.
func IsNotFound(err error) bool { return errors.Is(err, common.ErrNotFound) }

// IsConflict reports whether err is a compare-and-set loss.
func IsConflict(err error) bool { return errors.Is(err, common.ErrConflict) }
