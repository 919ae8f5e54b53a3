// Package postgres adapts the ordered kv.Store boundary onto a single
// PostgreSQL table. Encoded tuple keys keep their component-wise order under
// the TEXT primary key, range listings become index scans, and the version
// column backs CompareAndSet. Expired rows are filtered on every read and
// removed for real by a background janitor.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/kv/postgres/migrations"
	"github.com/goldflix/goldflix/internal/logging"
)

const sep = "\x1f"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the database, runs the embedded migrations and returns a
// ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	s := NewWithDB(db)
	if err := s.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

func (s *Store) expiresAt(opts []kv.SetOption) any {
	var o kv.SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.TTL <= 0 {
		return nil
	}
	return s.now().Add(o.TTL)
}

func decodeKey(k string) kv.Key { return kv.Key(strings.Split(k, sep)) }

func (s *Store) Get(ctx context.Context, key kv.Key) (*kv.Entry, error) {
	query :=
		`SELECT v, version FROM kv_entries
		 WHERE k = $1 AND (expires_at IS NULL OR expires_at > now())
		 `

	entry := &kv.Entry{Key: key}
	err := s.db.QueryRowContext(ctx, query, key.Encode()).Scan(&entry.Value, &entry.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func (s *Store) GetMany(ctx context.Context, keys []kv.Key) ([]*kv.Entry, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k.Encode()
		index[k.Encode()] = i
	}

	query := fmt.Sprintf(
		`SELECT k, v, version FROM kv_entries
		 WHERE k IN (%s) AND (expires_at IS NULL OR expires_at > now())
		 `, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*kv.Entry, len(keys))
	for rows.Next() {
		var k string
		entry := &kv.Entry{}
		if err := rows.Scan(&k, &entry.Value, &entry.Version); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entry.Key = decodeKey(k)
		if i, ok := index[k]; ok {
			out[i] = entry
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key kv.Key, value []byte, opts ...kv.SetOption) error {
	query :=
		`INSERT INTO kv_entries (k, v, version, expires_at)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (k) DO UPDATE
		 SET v = EXCLUDED.v, version = kv_entries.version + 1, expires_at = EXCLUDED.expires_at
		 `

	if _, err := s.db.ExecContext(ctx, query, key.Encode(), value, s.expiresAt(opts)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key kv.Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE k = $1`, key.Encode()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, opts kv.ListOptions) ([]kv.Entry, error) {
	var start, end string
	if len(opts.Prefix) > 0 {
		start, end = opts.Prefix.PrefixRange()
	} else {
		start, end = opts.Start.Encode(), opts.End.Encode()
	}

	order := "ASC"
	if opts.Reverse {
		order = "DESC"
	}
	query := fmt.Sprintf(
		`SELECT k, v, version FROM kv_entries
		 WHERE k >= $1 AND k < $2 AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY k %s
		 `, order)
	args := []any{start, end}
	if opts.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []kv.Entry
	for rows.Next() {
		var k string
		var entry kv.Entry
		if err := rows.Scan(&k, &entry.Value, &entry.Version); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entry.Key = decodeKey(k)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *Store) CompareAndSet(ctx context.Context, key kv.Key, expectedVersion int64, value []byte, opts ...kv.SetOption) error {
	var res sql.Result
	var err error

	if expectedVersion == 0 {
		// create-only; an expired leftover row may be taken over
		query :=
			`INSERT INTO kv_entries (k, v, version, expires_at)
			 VALUES ($1, $2, 1, $3)
			 ON CONFLICT (k) DO UPDATE
			 SET v = EXCLUDED.v, version = kv_entries.version + 1, expires_at = EXCLUDED.expires_at
			 WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now()
			 `
		res, err = s.db.ExecContext(ctx, query, key.Encode(), value, s.expiresAt(opts))
	} else {
		query :=
			`UPDATE kv_entries
			 SET v = $2, version = version + 1, expires_at = $3
			 WHERE k = $1 AND version = $4 AND (expires_at IS NULL OR expires_at > now())
			 `
		res, err = s.db.ExecContext(ctx, query, key.Encode(), value, s.expiresAt(opts), expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrConflict
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Sweep removes rows whose TTL has elapsed and returns the count.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// StartJanitor sweeps expired rows every interval until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration, log logging.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					log.Warn(ctx, "kv janitor sweep failed", "error", err)
					continue
				}
				if n > 0 {
					log.Debug(ctx, "kv janitor removed expired entries", "count", n)
				}
			}
		}
	}()
}
