package bunstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/lightningsats/go-realtime/pkg/interfaces/kv"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, setupDB(t), 1, nil)
	if err := store.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	err := store.Set(ctx, kv.Entry{Key: "user_state", Value: []byte(`{"balance":"10"}`), UpdatedAt: now})
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, err := store.Get(ctx, "user_state")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Value) != `{"balance":"10"}` {
		t.Fatalf("unexpected value %q", entry.Value)
	}
	if !entry.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt %v, got %v", now, entry.UpdatedAt)
	}
}

func TestStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, setupDB(t), 1, nil)

	first := time.Now().UTC().Add(-time.Minute)
	second := first.Add(30 * time.Second)
	if err := store.Set(ctx, kv.Entry{Key: "k", Value: []byte("old"), UpdatedAt: first}); err != nil {
		t.Fatalf("set old: %v", err)
	}
	if err := store.Set(ctx, kv.Entry{Key: "k", Value: []byte("new"), UpdatedAt: second}); err != nil {
		t.Fatalf("set new: %v", err)
	}

	entry, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Value) != "new" {
		t.Fatalf("expected overwrite, got %q", entry.Value)
	}
}

func TestStoreMissAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, setupDB(t), 1, nil)

	if _, err := store.Get(ctx, "absent"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected kv.ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "absent"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestStoreVersionBumpClearsEntries(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	v1 := NewStore(ctx, db, 1, nil)
	if err := v1.Set(ctx, kv.Entry{Key: "k", Value: []byte("v"), UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Same version: entry survives re-init.
	again := NewStore(ctx, db, 1, nil)
	if _, err := again.Get(ctx, "k"); err != nil {
		t.Fatalf("expected entry to survive same-version init: %v", err)
	}

	// Bumped version: table is wiped.
	v2 := NewStore(ctx, db, 2, nil)
	if err := v2.Ready(ctx); err != nil {
		t.Fatalf("ready after bump: %v", err)
	}
	if _, err := v2.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected wipe on version bump, got %v", err)
	}
}

func TestStoreUnavailableWithoutDB(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ctx, nil, 1, nil)

	if err := store.Ready(ctx); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected unavailable get, got %v", err)
	}
	if err := store.Set(ctx, kv.Entry{Key: "k"}); !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("expected unavailable set, got %v", err)
	}
}
