package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bunstore "github.com/lightningsats/go-realtime/internal/storage/bun"
)

func testStores(t *testing.T) map[string]TokenStore {
	t.Helper()
	db, err := bunstore.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bun, err := NewBunStore(context.Background(), db)
	if err != nil {
		t.Fatalf("new bun store: %v", err)
	}
	return map[string]TokenStore{
		"memory": NewMemoryStore(),
		"bun":    bun,
	}
}

func newIssuer(t *testing.T, store TokenStore, now *time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerOptions{
		Store: store,
		TTL:   30 * time.Second,
		Now:   func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func TestIssueAndValidate(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Unix(1000, 0).UTC()
			issuer := newIssuer(t, store, &now)

			token, err := issuer.Issue(ctx, "user-1")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if token.Value == "" {
				t.Fatalf("expected opaque token value")
			}

			got, err := issuer.Validate(ctx, token.Value)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if got.UserID != "user-1" {
				t.Fatalf("expected bound identity, got %q", got.UserID)
			}
		})
	}
}

func TestTokenSingleUse(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Unix(1000, 0).UTC()
			issuer := newIssuer(t, store, &now)

			token, err := issuer.Issue(ctx, "user-1")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if _, err := issuer.Validate(ctx, token.Value); err != nil {
				t.Fatalf("first validate: %v", err)
			}
			if _, err := issuer.Validate(ctx, token.Value); !errors.Is(err, ErrTokenConsumed) {
				t.Fatalf("expected ErrTokenConsumed on reuse, got %v", err)
			}
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Unix(1000, 0).UTC()
			issuer := newIssuer(t, store, &now)

			token, err := issuer.Issue(ctx, "user-1")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			now = now.Add(time.Minute)
			if _, err := issuer.Validate(ctx, token.Value); !errors.Is(err, ErrTokenExpired) {
				t.Fatalf("expected ErrTokenExpired, got %v", err)
			}
		})
	}
}

func TestTokensAreDistinctPerIssue(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0).UTC()
	issuer := newIssuer(t, NewMemoryStore(), &now)

	first, err := issuer.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := issuer.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue again: %v", err)
	}
	if first.Value == second.Value {
		t.Fatalf("token values must never repeat")
	}
}

func TestUnknownToken(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Unix(1000, 0).UTC()
			issuer := newIssuer(t, store, &now)
			if _, err := issuer.Validate(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected ErrTokenNotFound, got %v", err)
			}
			if _, err := issuer.Validate(context.Background(), ""); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("expected ErrTokenNotFound for empty value, got %v", err)
			}
		})
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0).UTC()
	issuer := newIssuer(t, NewMemoryStore(), &now)

	token, err := issuer.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := issuer.Validate(ctx, token.Value); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Unix(1000, 0).UTC()
			issuer := newIssuer(t, store, &now)

			stale, err := issuer.Issue(ctx, "user-1")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}

			now = now.Add(time.Minute)
			fresh, err := issuer.Issue(ctx, "user-2")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}

			issuer.Sweep(ctx)
			if _, err := issuer.Validate(ctx, fresh.Value); err != nil {
				t.Fatalf("fresh token must survive sweep: %v", err)
			}
			if _, err := issuer.Validate(ctx, stale.Value); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("swept token should be unknown, got %v", err)
			}
		})
	}
}
