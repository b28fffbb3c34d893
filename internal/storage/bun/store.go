// Package bunstore implements the durable storage tier on top of an embedded
// SQLite database accessed through bun. The tier survives process restarts
// and platform eviction better than the in-memory tier, at the cost of
// asynchronous access and a startup readiness window.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/lightningsats/go-realtime/pkg/interfaces/kv"
	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
)

// cacheEntry is the single keyed table backing the durable tier.
type cacheEntry struct {
	bun.BaseModel `bun:"table:cache_entries"`

	Key       string    `bun:",pk,notnull"`
	Value     []byte    `bun:",notnull"`
	UpdatedAt time.Time `bun:",notnull"`
}

// storeMeta tracks the schema shape version; a mismatch wipes the table
// rather than migrating it.
type storeMeta struct {
	bun.BaseModel `bun:"table:store_meta"`

	ID      int64 `bun:",pk"`
	Version int   `bun:",notnull"`
}

const metaRowID = 1

// Store is a kv.DurableStore backed by bun + SQLite.
type Store struct {
	db      *bun.DB
	version int
	logger  logger.Logger

	initErr error
}

var _ kv.DurableStore = (*Store)(nil)

// Open connects to a SQLite database at dsn (":memory:" for tests) and wraps
// it in a bun.DB.
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("bunstore: open %s: %w", dsn, err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// NewStore builds the durable tier and runs its schema setup within ctx.
// When setup fails the store stays usable as a value but reports
// kv.ErrUnavailable from every call, letting callers degrade to the
// synchronous tier without special cases.
func NewStore(ctx context.Context, db *bun.DB, version int, lgr logger.Logger) *Store {
	if lgr == nil {
		lgr = &logger.Nop{}
	}
	store := &Store{db: db, version: version, logger: lgr}
	if db == nil {
		store.initErr = kv.ErrUnavailable
		return store
	}
	store.initErr = store.init(ctx)
	if store.initErr != nil {
		lgr.Warn("durable tier unavailable", logger.F("error", store.initErr))
	}
	return store
}

func (s *Store) init(ctx context.Context) error {
	models := []any{(*cacheEntry)(nil), (*storeMeta)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("bunstore: create table: %w", err)
		}
	}

	meta := &storeMeta{ID: metaRowID}
	err := s.db.NewSelect().Model(meta).WherePK().Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		meta.Version = s.version
		if _, err := s.db.NewInsert().Model(meta).Exec(ctx); err != nil {
			return fmt.Errorf("bunstore: write store version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("bunstore: read store version: %w", err)
	}

	if meta.Version == s.version {
		return nil
	}

	// Shape changed: wipe rather than migrate. Cached snapshots are always
	// recoverable from the next authoritative fetch.
	s.logger.Info("store version bump, clearing durable tier",
		logger.F("from", meta.Version), logger.F("to", s.version))
	if _, err := s.db.NewDelete().Model((*cacheEntry)(nil)).Where("1 = 1").Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: clear on version bump: %w", err)
	}
	meta.Version = s.version
	if _, err := s.db.NewUpdate().Model(meta).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: update store version: %w", err)
	}
	return nil
}

// Ready reports whether schema setup succeeded.
func (s *Store) Ready(ctx context.Context) error {
	return s.initErr
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (kv.Entry, error) {
	if s.initErr != nil {
		return kv.Entry{}, kv.ErrUnavailable
	}
	record := &cacheEntry{Key: key}
	err := s.db.NewSelect().Model(record).WherePK().Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Entry{}, kv.ErrNotFound
	}
	if err != nil {
		return kv.Entry{}, fmt.Errorf("bunstore: get %s: %w", key, err)
	}
	return kv.Entry{Key: record.Key, Value: record.Value, UpdatedAt: record.UpdatedAt}, nil
}

// Set upserts the entry under entry.Key.
func (s *Store) Set(ctx context.Context, entry kv.Entry) error {
	if s.initErr != nil {
		return kv.ErrUnavailable
	}
	if entry.Key == "" {
		return errors.New("bunstore: entry key is required")
	}
	record := &cacheEntry{Key: entry.Key, Value: entry.Value, UpdatedAt: entry.UpdatedAt}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bunstore: set %s: %w", entry.Key, err)
	}
	return nil
}

// Delete removes the entry under key; absent keys are a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.initErr != nil {
		return kv.ErrUnavailable
	}
	if _, err := s.db.NewDelete().Model((*cacheEntry)(nil)).Where("key = ?", key).Exec(ctx); err != nil {
		return fmt.Errorf("bunstore: delete %s: %w", key, err)
	}
	return nil
}
