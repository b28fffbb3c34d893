package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightningsats/go-realtime/pkg/realtime"
	"github.com/lightningsats/go-realtime/pkg/snapshot"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (i *recordingInvalidator) MarkStale(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys = append(i.keys, key)
}

func (i *recordingInvalidator) marked(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, k := range i.keys {
		if k == key {
			return true
		}
	}
	return false
}

type taskHook struct {
	mu     sync.Mutex
	events []TaskRemovedEvent
}

func (h *taskHook) Execute(ctx context.Context, ev TaskRemovedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

type countryHook struct {
	mu     sync.Mutex
	events []CountryBlockEvent
}

func (h *countryHook) Execute(ctx context.Context, ev CountryBlockEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

type rewardHook struct {
	mu     sync.Mutex
	events []RewardEvent
}

func (h *rewardHook) Execute(ctx context.Context, ev RewardEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	return nil
}

func TestRouterBalanceUpdatePatchesAndInvalidates(t *testing.T) {
	cache := &recordingInvalidator{}
	r := NewRouter(RouterOptions{Cache: cache})
	r.SetState(snapshot.UserState{UserID: "u1", Balance: "10.00"})

	r.Handle(context.Background(), realtime.BalanceUpdate("12.50"))

	if got := r.State().Balance; got != "12.50" {
		t.Fatalf("balance = %q, want 12.50", got)
	}
	if !cache.marked(snapshot.KeyUserState) {
		t.Fatal("user state not marked stale")
	}
}

func TestRouterBalanceUpdateIdempotent(t *testing.T) {
	cache := &recordingInvalidator{}
	r := NewRouter(RouterOptions{Cache: cache})
	r.SetState(snapshot.UserState{Balance: "10.00"})

	msg := realtime.BalanceUpdate("12.50")
	r.Handle(context.Background(), msg)
	r.Handle(context.Background(), msg)

	if got := r.State().Balance; got != "12.50" {
		t.Fatalf("balance after replay = %q, want 12.50", got)
	}
}

func TestRouterEmptyBalanceLeavesStateAlone(t *testing.T) {
	r := NewRouter(RouterOptions{})
	r.SetState(snapshot.UserState{Balance: "10.00"})

	r.Handle(context.Background(), realtime.Message{Type: realtime.TypeBalanceUpdate})

	if got := r.State().Balance; got != "10.00" {
		t.Fatalf("balance = %q, want 10.00", got)
	}
}

func TestRouterRewardMessagesNotifyAndInvalidate(t *testing.T) {
	cache := &recordingInvalidator{}
	clock := newFakeClock()
	notices := NewDeduper(DeduperOptions{Clock: clock})
	rewards := &rewardHook{}
	r := NewRouter(RouterOptions{
		Cache:   cache,
		Notices: notices,
		Hooks:   Hooks{ShowReward: rewards},
	})

	r.Handle(context.Background(), realtime.AdReward("0.05"))
	clock.advance(3 * time.Second)
	r.Handle(context.Background(), realtime.ReferralBonus("1.00"))

	if !cache.marked(snapshot.KeyUserState) {
		t.Fatal("user state not marked stale")
	}
	rewards.mu.Lock()
	got := len(rewards.events)
	first := rewards.events[0]
	rewards.mu.Unlock()
	if got != 2 {
		t.Fatalf("reward events = %d, want 2", got)
	}
	if first.Amount != "0.05" {
		t.Fatalf("reward amount = %q, want 0.05", first.Amount)
	}
	if notices.Pending() != 2 {
		t.Fatalf("pending notices = %d, want 2", notices.Pending())
	}
}

func TestRouterWithdrawalInvalidation(t *testing.T) {
	cases := []struct {
		msgType       realtime.Type
		wantUserState bool
	}{
		{realtime.TypeWithdrawalRequested, false},
		{realtime.TypeWithdrawalApproved, true},
		{realtime.TypeWithdrawalRejected, true},
	}
	for _, tc := range cases {
		cache := &recordingInvalidator{}
		r := NewRouter(RouterOptions{Cache: cache})

		r.Handle(context.Background(), realtime.Message{Type: tc.msgType})

		if !cache.marked(snapshot.KeyWithdrawals) {
			t.Fatalf("%s: withdrawals not marked stale", tc.msgType)
		}
		if cache.marked(snapshot.KeyUserState) != tc.wantUserState {
			t.Fatalf("%s: user state staleness = %v, want %v",
				tc.msgType, cache.marked(snapshot.KeyUserState), tc.wantUserState)
		}
	}
}

func TestRouterCollectionInvalidation(t *testing.T) {
	cases := []struct {
		msgType realtime.Type
		wantKey string
	}{
		{realtime.TypePromotionApproved, snapshot.KeyPromotions},
		{realtime.TypePromotionRejected, snapshot.KeyPromotions},
		{realtime.TypeTaskCreated, snapshot.KeyTasks},
		{realtime.TypeTaskPaymentSuccess, snapshot.KeyTasks},
		{realtime.TypeSettingsUpdated, snapshot.KeySettings},
	}
	for _, tc := range cases {
		cache := &recordingInvalidator{}
		r := NewRouter(RouterOptions{Cache: cache})

		r.Handle(context.Background(), realtime.Message{Type: tc.msgType})

		if !cache.marked(tc.wantKey) {
			t.Fatalf("%s: %s not marked stale", tc.msgType, tc.wantKey)
		}
	}
}

func TestRouterTaskRemovalEmitsLocalEvent(t *testing.T) {
	hook := &taskHook{}
	cache := &recordingInvalidator{}
	r := NewRouter(RouterOptions{Cache: cache, Hooks: Hooks{TaskRemoved: hook}})

	r.Handle(context.Background(), realtime.Message{Type: realtime.TypeTaskRemoved, TaskID: "t-1"})
	r.Handle(context.Background(), realtime.Message{Type: realtime.TypeTaskDeleted, TaskID: "t-2"})

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.events) != 2 {
		t.Fatalf("events = %d, want 2", len(hook.events))
	}
	if hook.events[0].TaskID != "t-1" || hook.events[0].Deleted {
		t.Fatalf("first event = %+v, want t-1 not deleted", hook.events[0])
	}
	if hook.events[1].TaskID != "t-2" || !hook.events[1].Deleted {
		t.Fatalf("second event = %+v, want t-2 deleted", hook.events[1])
	}
	// Removal is a local event, not a cache effect.
	if len(cache.keys) != 0 {
		t.Fatalf("cache keys marked = %v, want none", cache.keys)
	}
}

func TestRouterCountryBlockEvents(t *testing.T) {
	hook := &countryHook{}
	r := NewRouter(RouterOptions{Hooks: Hooks{CountryBlock: hook}})

	r.Handle(context.Background(), realtime.Message{Type: realtime.TypeCountryBlocked, Country: "US"})
	r.Handle(context.Background(), realtime.Message{Type: realtime.TypeCountryUnblocked, Country: "US"})

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.events) != 2 {
		t.Fatalf("events = %d, want 2", len(hook.events))
	}
	if !hook.events[0].Blocked || hook.events[1].Blocked {
		t.Fatalf("events = %+v, want blocked then unblocked", hook.events)
	}
}

func TestRouterUnknownTypeIgnored(t *testing.T) {
	cache := &recordingInvalidator{}
	r := NewRouter(RouterOptions{Cache: cache})

	r.Handle(context.Background(), realtime.Message{Type: "future_feature"})

	if len(cache.keys) != 0 {
		t.Fatalf("cache keys marked = %v, want none", cache.keys)
	}
}

func TestRouterAuthErrorProducesNotice(t *testing.T) {
	clock := newFakeClock()
	notices := NewDeduper(DeduperOptions{Clock: clock})
	r := NewRouter(RouterOptions{Notices: notices})

	r.Handle(context.Background(), realtime.AuthError("session token rejected"))

	if notices.Pending() != 1 {
		t.Fatalf("pending notices = %d, want 1", notices.Pending())
	}
}
