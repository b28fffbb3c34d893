// Package memory implements the synchronous storage tier: a small bounded
// in-memory key/value table with blocking semantics.
package memory

import (
	"errors"
	"sync"

	"github.com/lightningsats/go-realtime/pkg/interfaces/kv"
)

// DefaultCapacity bounds the tier when the caller does not size it. The tier
// holds a fixed set of named keys, so a small table is enough.
const DefaultCapacity = 64

// ErrFull reports a write that would exceed the tier's capacity.
var ErrFull = errors.New("memory: store full")

// Store is a bounded in-memory SyncStore. Values are copied on the way in
// and out so callers can never alias the stored bytes.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]kv.Entry
	capacity int
}

var _ kv.SyncStore = (*Store)(nil)

// NewStore builds a Store holding at most capacity entries; capacity <= 0
// selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make(map[string]kv.Entry, capacity),
		capacity: capacity,
	}
}

// Get returns the entry stored under key, or kv.ErrNotFound.
func (s *Store) Get(key string) (kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return kv.Entry{}, kv.ErrNotFound
	}
	entry.Value = cloneBytes(entry.Value)
	return entry, nil
}

// Set overwrites the entry for entry.Key. New keys beyond capacity are
// rejected with ErrFull; existing keys always update.
func (s *Store) Set(entry kv.Entry) error {
	if entry.Key == "" {
		return errors.New("memory: entry key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Key]; !exists && len(s.entries) >= s.capacity {
		return ErrFull
	}
	entry.Value = cloneBytes(entry.Value)
	s.entries[entry.Key] = entry
	return nil
}

// Delete removes the entry for key; deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len reports how many entries the tier currently holds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func cloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}
