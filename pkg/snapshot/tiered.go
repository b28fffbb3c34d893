// Package snapshot keeps a client-held copy of authoritative user state
// durable across reloads and transient storage failures. It composes a small
// blocking tier with a larger asynchronous tier and reconciles redundant
// copies by recency.
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightningsats/go-realtime/pkg/interfaces/kv"
	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
)

const (
	// DefaultInitTimeout bounds how long the durable tier may take to come
	// up before the cache falls back permanently to the synchronous tier.
	DefaultInitTimeout = 3 * time.Second

	// DefaultSyncInterval coalesces re-sync writes after authoritative
	// fetches to avoid write amplification.
	DefaultSyncInterval = 5 * time.Second
)

// Options configures a Tiered cache. Sync is required; everything else has a
// working default.
type Options struct {
	Sync        kv.SyncStore
	Durable     kv.DurableStore
	Logger      logger.Logger
	InitTimeout time.Duration
	SyncEvery   time.Duration
	Now         func() time.Time
}

// Tiered is a write-through cache over the two storage tiers. Writes hit the
// synchronous tier first and unconditionally, so a usable copy survives even
// when the durable write is slow, fails, or races a teardown; the durable
// write then runs in the background and its failure is logged, never
// propagated.
type Tiered struct {
	sync    kv.SyncStore
	durable kv.DurableStore
	logger  logger.Logger

	syncEvery time.Duration
	now       func() time.Time

	mu         sync.Mutex
	durableOK  bool
	lastSyncAt map[string]time.Time
	stale      map[string]bool

	background sync.WaitGroup
}

// NewTiered builds the cache and probes the durable tier for up to
// InitTimeout. A durable tier that does not come up inside the window is
// disabled for the rest of the session.
func NewTiered(ctx context.Context, opts Options) (*Tiered, error) {
	if opts.Sync == nil {
		return nil, errors.New("snapshot: synchronous tier is required")
	}
	if opts.Durable == nil {
		opts.Durable = &kv.NopDurable{}
	}
	if opts.Logger == nil {
		opts.Logger = &logger.Nop{}
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = DefaultInitTimeout
	}
	if opts.SyncEvery <= 0 {
		opts.SyncEvery = DefaultSyncInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	t := &Tiered{
		sync:       opts.Sync,
		durable:    opts.Durable,
		logger:     opts.Logger,
		syncEvery:  opts.SyncEvery,
		now:        opts.Now,
		lastSyncAt: make(map[string]time.Time),
		stale:      make(map[string]bool),
	}

	readyCtx, cancel := context.WithTimeout(ctx, opts.InitTimeout)
	defer cancel()
	if err := opts.Durable.Ready(readyCtx); err != nil {
		t.logger.Warn("durable tier not ready, running synchronous-only",
			logger.F("error", err))
	} else {
		t.durableOK = true
	}
	return t, nil
}

// DurableEnabled reports whether the durable tier survived initialization.
func (t *Tiered) DurableEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durableOK
}

// Write stores an authoritative update under entry.Key: synchronous tier
// first and always, then the durable tier in the background. Storage errors
// are logged and swallowed per tier.
func (t *Tiered) Write(entry kv.Entry) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = t.now()
	}

	if err := t.sync.Set(entry); err != nil {
		t.logger.Warn("synchronous tier write failed",
			logger.F("key", entry.Key), logger.F("error", err))
	}
	t.writeDurable(entry)
	t.clearStale(entry.Key)
}

func (t *Tiered) writeDurable(entry kv.Entry) {
	t.mu.Lock()
	enabled := t.durableOK
	t.mu.Unlock()
	if !enabled {
		return
	}

	t.background.Add(1)
	go func() {
		defer t.background.Done()
		// Deliberately not tied to any caller context: these writes are
		// pure background durability against process-wide keyed storage.
		if err := t.durable.Set(context.Background(), entry); err != nil {
			t.logger.Warn("durable tier write failed",
				logger.F("key", entry.Key), logger.F("error", err))
		}
	}()
}

// Read performs the cold-start read: take the durable candidate if the tier
// is up, always take the synchronous candidate, and reconcile by recency.
// kv.ErrNotFound means no tier holds a copy and the caller should fall back
// to a fresh authoritative fetch.
func (t *Tiered) Read(ctx context.Context, key string) (kv.Entry, error) {
	var durableEntry kv.Entry
	t.mu.Lock()
	enabled := t.durableOK
	t.mu.Unlock()
	if enabled {
		entry, err := t.durable.Get(ctx, key)
		switch {
		case err == nil:
			durableEntry = entry
		case errors.Is(err, kv.ErrNotFound):
		default:
			t.logger.Warn("durable tier read failed",
				logger.F("key", key), logger.F("error", err))
		}
	}

	var syncEntry kv.Entry
	entry, err := t.sync.Get(key)
	switch {
	case err == nil:
		syncEntry = entry
	case errors.Is(err, kv.ErrNotFound):
	default:
		t.logger.Warn("synchronous tier read failed",
			logger.F("key", key), logger.F("error", err))
	}

	winner, ok := Reconcile(syncEntry, durableEntry)
	if !ok {
		return kv.Entry{}, kv.ErrNotFound
	}
	return winner, nil
}

// SyncIfDue writes the entry only when at least the coalescing interval has
// elapsed since the key's last recorded sync. It reports whether a write
// happened. Call it after every authoritative fetch.
func (t *Tiered) SyncIfDue(entry kv.Entry) bool {
	now := t.now()

	t.mu.Lock()
	last, seen := t.lastSyncAt[entry.Key]
	if seen && now.Sub(last) < t.syncEvery {
		t.mu.Unlock()
		return false
	}
	t.lastSyncAt[entry.Key] = now
	t.mu.Unlock()

	t.Write(entry)
	return true
}

// Flush writes immediately, bypassing coalescing. Use it when the process
// is backgrounded or about to be torn down; at that point only the
// synchronous tier write is relied upon.
func (t *Tiered) Flush(entry kv.Entry) {
	t.mu.Lock()
	t.lastSyncAt[entry.Key] = t.now()
	t.mu.Unlock()
	t.Write(entry)
}

// MarkStale flags a logical key or named collection so the next
// authoritative fetch reconciles it fully. Idempotent.
func (t *Tiered) MarkStale(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale[key] = true
}

// IsStale reports whether the key was invalidated since its last write.
func (t *Tiered) IsStale(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stale[key]
}

func (t *Tiered) clearStale(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stale, key)
}

// Wait blocks until in-flight durable writes settle. Intended for tests;
// production teardown relies on the synchronous tier instead.
func (t *Tiered) Wait() {
	t.background.Wait()
}
