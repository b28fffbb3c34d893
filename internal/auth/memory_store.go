package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tokens in process memory. Consumed tokens are retained
// until they expire so a replayed value is rejected as consumed rather than
// unknown.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

// Save records a freshly issued token.
func (s *MemoryStore) Save(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Value] = token
	return nil
}

// Consume atomically marks the token used. The mutex is held across the
// read-check-write, so concurrent consumers of one value see exactly one
// winner.
func (s *MemoryStore) Consume(ctx context.Context, value string, now time.Time) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	if now.After(token.ExpiresAt) {
		delete(s.tokens, value)
		return Token{}, ErrTokenExpired
	}
	if token.Consumed {
		return Token{}, ErrTokenConsumed
	}
	token.Consumed = true
	s.tokens[value] = token
	return token, nil
}

// DeleteExpired drops every token past its TTL.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for value, token := range s.tokens {
		if now.After(token.ExpiresAt) {
			delete(s.tokens, value)
			removed++
		}
	}
	return removed, nil
}
