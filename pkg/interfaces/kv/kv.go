// Package kv defines the storage-tier seams used by the snapshot cache: a
// small blocking tier and a larger asynchronous durable tier. Each target
// deployment substitutes its own implementations without changing the
// reconciliation contract.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a key with no entry in the queried tier.
var ErrNotFound = errors.New("kv: entry not found")

// ErrUnavailable reports a tier that is disabled or unreachable in the
// current runtime context.
var ErrUnavailable = errors.New("kv: store unavailable")

// Entry is one timestamped copy of a logical key. The same key may hold an
// entry in zero, one, or both tiers at once.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsZero reports whether the entry carries no data.
func (e Entry) IsZero() bool {
	return e.Key == "" && e.Value == nil && e.UpdatedAt.IsZero()
}

// SyncStore is the small, blocking tier. Calls complete before returning;
// a write that returns nil is on record.
type SyncStore interface {
	Get(key string) (Entry, error)
	Set(entry Entry) error
	Delete(key string) error
}

// DurableStore is the larger, asynchronous tier. It is more resistant to
// eviction but not guaranteed present; Ready reports whether the tier came
// up, and every call accepts a context so slow backends stay cancellable.
type DurableStore interface {
	Ready(ctx context.Context) error
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// NopSync returns misses and ignores writes.
type NopSync struct{}

var _ SyncStore = (*NopSync)(nil)

func (n *NopSync) Get(key string) (Entry, error) { return Entry{}, ErrNotFound }
func (n *NopSync) Set(entry Entry) error         { return nil }
func (n *NopSync) Delete(key string) error       { return nil }

// NopDurable reports the tier as unavailable.
type NopDurable struct{}

var _ DurableStore = (*NopDurable)(nil)

func (n *NopDurable) Ready(ctx context.Context) error { return ErrUnavailable }
func (n *NopDurable) Get(ctx context.Context, key string) (Entry, error) {
	return Entry{}, ErrUnavailable
}
func (n *NopDurable) Set(ctx context.Context, entry Entry) error   { return ErrUnavailable }
func (n *NopDurable) Delete(ctx context.Context, key string) error { return ErrUnavailable }
