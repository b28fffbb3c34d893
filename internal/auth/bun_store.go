package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// tokenRecord is the bun model backing BunStore.
type tokenRecord struct {
	bun.BaseModel `bun:"table:auth_tokens"`

	Value     string    `bun:",pk,notnull"`
	UserID    string    `bun:",notnull"`
	IssuedAt  time.Time `bun:",notnull"`
	ExpiresAt time.Time `bun:",notnull"`
	Consumed  bool      `bun:",notnull,default:false"`
}

// BunStore persists tokens in SQLite via bun, surviving server restarts
// within a token's short TTL.
type BunStore struct {
	db *bun.DB
}

var _ TokenStore = (*BunStore)(nil)

// NewBunStore creates the backing table and returns the store.
func NewBunStore(ctx context.Context, db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("auth: bun db is required")
	}
	if _, err := db.NewCreateTable().Model((*tokenRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("auth: create token table: %w", err)
	}
	return &BunStore{db: db}, nil
}

// Save records a freshly issued token.
func (s *BunStore) Save(ctx context.Context, token Token) error {
	record := &tokenRecord{
		Value:     token.Value,
		UserID:    token.UserID,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
		Consumed:  token.Consumed,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("auth: save token: %w", err)
	}
	return nil
}

// Consume flips the consumed flag with a guarded UPDATE; the row count
// decides the winner when two handshakes race on one value.
func (s *BunStore) Consume(ctx context.Context, value string, now time.Time) (Token, error) {
	record := &tokenRecord{Value: value}
	err := s.db.NewSelect().Model(record).WherePK().Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("auth: load token: %w", err)
	}
	if now.After(record.ExpiresAt) {
		return Token{}, ErrTokenExpired
	}

	res, err := s.db.NewUpdate().
		Model((*tokenRecord)(nil)).
		Set("consumed = ?", true).
		Where("value = ?", value).
		Where("consumed = ?", false).
		Exec(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("auth: consume token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Token{}, fmt.Errorf("auth: consume token: %w", err)
	}
	if affected == 0 {
		return Token{}, ErrTokenConsumed
	}

	return Token{
		Value:     record.Value,
		UserID:    record.UserID,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt,
		Consumed:  true,
	}, nil
}

// DeleteExpired drops every token past its TTL.
func (s *BunStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("auth: delete expired tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("auth: delete expired tokens: %w", err)
	}
	return int(affected), nil
}
