// Package auth issues and consumes the short-lived, single-use tokens that
// bind a freshly opened socket to one verified identity. Tokens are handed
// out over an authenticated HTTP call and consumed exactly once by the
// socket handshake; long-lived credentials never touch the socket URL.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
)

// DefaultTTL is how long an issued token stays valid. Long enough to open a
// socket and send the first frame, short enough that a leaked token is
// useless moments later.
const DefaultTTL = 30 * time.Second

var (
	// ErrTokenNotFound reports a token value the store never issued or has
	// already swept.
	ErrTokenNotFound = errors.New("auth: token not found")
	// ErrTokenExpired reports a token past its TTL.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenConsumed reports a token that was already used once.
	ErrTokenConsumed = errors.New("auth: token already consumed")
)

// Token is one single-use handshake credential.
type Token struct {
	Value     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// TokenStore persists issued tokens. Consume must be atomic: of two
// concurrent handshakes presenting the same value, exactly one wins.
type TokenStore interface {
	Save(ctx context.Context, token Token) error
	Consume(ctx context.Context, value string, now time.Time) (Token, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Issuer mints and validates handshake tokens.
type Issuer struct {
	store  TokenStore
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// IssuerOptions configures an Issuer; Store is required.
type IssuerOptions struct {
	Store  TokenStore
	TTL    time.Duration
	Now    func() time.Time
	Logger logger.Logger
}

// NewIssuer builds an Issuer.
func NewIssuer(opts IssuerOptions) (*Issuer, error) {
	if opts.Store == nil {
		return nil, errors.New("auth: token store is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = &logger.Nop{}
	}
	return &Issuer{
		store:  opts.Store,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
	}, nil
}

// Issue mints a fresh token for userID. Every connection attempt gets its
// own token; values are never reused.
func (i *Issuer) Issue(ctx context.Context, userID string) (Token, error) {
	if userID == "" {
		return Token{}, errors.New("auth: user id is required")
	}
	now := i.now()
	token := Token{
		Value:     uuid.NewString(),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.store.Save(ctx, token); err != nil {
		return Token{}, err
	}
	i.logger.Debug("token issued", logger.F("user", userID))
	return token, nil
}

// Validate consumes the token value, enforcing existence, expiry, and
// single use. On success it returns the bound identity.
func (i *Issuer) Validate(ctx context.Context, value string) (Token, error) {
	if value == "" {
		return Token{}, ErrTokenNotFound
	}
	return i.store.Consume(ctx, value, i.now())
}

// Sweep removes expired tokens from the store.
func (i *Issuer) Sweep(ctx context.Context) {
	removed, err := i.store.DeleteExpired(ctx, i.now())
	if err != nil {
		i.logger.Warn("token sweep failed", logger.F("error", err))
		return
	}
	if removed > 0 {
		i.logger.Debug("token sweep", logger.F("removed", removed))
	}
}

// RunSweeper sweeps expired tokens on the given interval until ctx ends.
func (i *Issuer) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Sweep(ctx)
		}
	}
}
