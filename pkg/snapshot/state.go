package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lightningsats/go-realtime/pkg/interfaces/kv"
)

// KeyUserState is the logical cache key holding the user snapshot.
const KeyUserState = "user_state"

// Named collections invalidated by pushed events. They carry no cached bytes
// of their own here; staleness on these keys tells the data layer which
// lists to refetch.
const (
	KeyWithdrawals = "withdrawals"
	KeyPromotions  = "promotions"
	KeyTasks       = "tasks"
	KeySettings    = "settings"
)

// UserState mirrors the authoritative user record. Monetary amounts are kept
// as decimal strings exactly as the server renders them; the client never
// does arithmetic on them.
type UserState struct {
	UserID         string `json:"user_id"`
	Balance        string `json:"balance"`
	TotalEarned    string `json:"total_earned"`
	AdsWatched     int    `json:"ads_watched"`
	DailyStreak    int    `json:"daily_streak"`
	ReferralCode   string `json:"referral_code"`
	ReferralCount  int    `json:"referral_count"`
	ReferralProfit string `json:"referral_profit"`
}

// ApplyBalancePatch merges the optimistic fields of a balance push into the
// snapshot. Safe to apply more than once: the next authoritative fetch
// overwrites whatever this produced.
func (s *UserState) ApplyBalancePatch(balance string) {
	if balance != "" {
		s.Balance = balance
	}
}

// ToEntry serializes the snapshot into a cache entry timestamped at now.
func (s UserState) ToEntry(now time.Time) (kv.Entry, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return kv.Entry{}, fmt.Errorf("snapshot: marshal user state: %w", err)
	}
	return kv.Entry{Key: KeyUserState, Value: value, UpdatedAt: now}, nil
}

// StateFromEntry deserializes a cached snapshot.
func StateFromEntry(entry kv.Entry) (UserState, error) {
	var state UserState
	if err := json.Unmarshal(entry.Value, &state); err != nil {
		return UserState{}, fmt.Errorf("snapshot: unmarshal user state: %w", err)
	}
	return state, nil
}
