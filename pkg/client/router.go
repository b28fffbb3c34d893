package client

import (
	"context"
	"sync"

	command "github.com/goliatone/go-command"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/realtime"
	"github.com/lightningsats/go-realtime/pkg/snapshot"
)

// TaskRemovedEvent is re-emitted locally when the server withdraws a task;
// the task list UI consumes it without touching the cache.
type TaskRemovedEvent struct {
	TaskID  string
	Deleted bool
}

// CountryBlockEvent is re-emitted locally when the user's country block
// state changes.
type CountryBlockEvent struct {
	Country string
	Blocked bool
}

// RewardEvent asks the UI to play its reward display for a credited amount.
type RewardEvent struct {
	Amount string
	Kind   string
}

// Hooks are the seams to the UI collaborators this core does not own. Each
// is a go-command handler; nil hooks are skipped.
type Hooks struct {
	TaskRemoved  command.Commander[TaskRemovedEvent]
	CountryBlock command.Commander[CountryBlockEvent]
	ShowReward   command.Commander[RewardEvent]
}

// Invalidator marks cached keys and collections stale. *snapshot.Tiered
// satisfies it.
type Invalidator interface {
	MarkStale(key string)
}

// RouterOptions wires the router's collaborators.
type RouterOptions struct {
	Cache   Invalidator
	Notices *Deduper
	Hooks   Hooks
	Logger  logger.Logger
}

// Router maps every inbound message type to exactly one category of effect:
// a connection-status update, an optimistic snapshot patch plus cache
// invalidation, a collection invalidation, a decoupled local event, or a
// user-facing notice. Every effect is safe to apply more than once.
type Router struct {
	cache   Invalidator
	notices *Deduper
	hooks   Hooks
	logger  logger.Logger

	mu    sync.Mutex
	state snapshot.UserState
}

type nopInvalidator struct{}

func (nopInvalidator) MarkStale(key string) {}

// NewRouter builds a Router.
func NewRouter(opts RouterOptions) *Router {
	if opts.Cache == nil {
		opts.Cache = nopInvalidator{}
	}
	if opts.Logger == nil {
		opts.Logger = &logger.Nop{}
	}
	return &Router{
		cache:   opts.Cache,
		notices: opts.Notices,
		hooks:   opts.Hooks,
		logger:  opts.Logger,
	}
}

// State returns a copy of the in-memory user snapshot.
func (r *Router) State() snapshot.UserState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState replaces the in-memory snapshot with a full authoritative fetch
// result, overwriting any optimistic patches.
func (r *Router) SetState(state snapshot.UserState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// Handle routes one inbound message. Unknown types are logged and ignored
// so older clients survive newer servers.
func (r *Router) Handle(ctx context.Context, msg realtime.Message) {
	switch msg.Type {
	case realtime.TypeConnected:
		// Connection status is owned by the socket manager; nothing to do.

	case realtime.TypeAuthError:
		r.notify(Notice{Text: fallback(msg.Text, "Authentication failed"), Kind: string(msg.Type)})

	case realtime.TypeBalanceUpdate:
		// Optimistic patch now; the stale mark makes the next authoritative
		// fetch reconcile fully, so a repeated or stale patch self-heals.
		r.mu.Lock()
		r.state.ApplyBalancePatch(msg.Balance)
		r.mu.Unlock()
		r.cache.MarkStale(snapshot.KeyUserState)

	case realtime.TypeAdReward:
		r.cache.MarkStale(snapshot.KeyUserState)
		r.emitReward(ctx, RewardEvent{Amount: msg.Amount, Kind: string(msg.Type)})
		r.notify(Notice{Text: fallback(msg.Text, "Ad reward credited"), Kind: string(msg.Type)})

	case realtime.TypeReferralBonus:
		r.cache.MarkStale(snapshot.KeyUserState)
		r.emitReward(ctx, RewardEvent{Amount: msg.Amount, Kind: string(msg.Type)})
		r.notify(Notice{Text: fallback(msg.Text, "Referral bonus earned"), Kind: string(msg.Type)})

	case realtime.TypeWithdrawalRequested, realtime.TypeWithdrawalApproved, realtime.TypeWithdrawalRejected:
		r.cache.MarkStale(snapshot.KeyWithdrawals)
		if msg.Type != realtime.TypeWithdrawalRequested {
			r.cache.MarkStale(snapshot.KeyUserState)
		}
		r.notify(Notice{Text: fallback(msg.Text, "Withdrawal status updated"), Kind: string(msg.Type)})

	case realtime.TypePromotionApproved, realtime.TypePromotionRejected:
		r.cache.MarkStale(snapshot.KeyPromotions)
		r.notify(Notice{Text: fallback(msg.Text, "Promotion review finished"), Kind: string(msg.Type)})

	case realtime.TypeTaskCreated:
		r.cache.MarkStale(snapshot.KeyTasks)
		r.notify(Notice{Text: fallback(msg.Text, "A new task is available"), Kind: string(msg.Type)})

	case realtime.TypeTaskPaymentSuccess:
		r.cache.MarkStale(snapshot.KeyTasks)
		r.notify(Notice{Text: fallback(msg.Text, "Task payment confirmed"), Kind: string(msg.Type)})

	case realtime.TypeTaskRemoved, realtime.TypeTaskDeleted:
		r.emitTaskRemoved(ctx, TaskRemovedEvent{
			TaskID:  msg.TaskID,
			Deleted: msg.Type == realtime.TypeTaskDeleted,
		})

	case realtime.TypeSettingsUpdated:
		r.cache.MarkStale(snapshot.KeySettings)

	case realtime.TypeCountryBlocked, realtime.TypeCountryUnblocked:
		r.emitCountryBlock(ctx, CountryBlockEvent{
			Country: msg.Country,
			Blocked: msg.Type == realtime.TypeCountryBlocked,
		})

	default:
		r.logger.Debug("ignoring unknown message type",
			logger.F("type", string(msg.Type)))
	}
}

func (r *Router) notify(n Notice) {
	if r.notices == nil {
		return
	}
	r.notices.Offer(n)
}

func (r *Router) emitReward(ctx context.Context, ev RewardEvent) {
	if r.hooks.ShowReward == nil {
		return
	}
	if err := r.hooks.ShowReward.Execute(ctx, ev); err != nil {
		r.logger.Warn("reward hook failed", logger.F("error", err))
	}
}

func (r *Router) emitTaskRemoved(ctx context.Context, ev TaskRemovedEvent) {
	if r.hooks.TaskRemoved == nil {
		return
	}
	if err := r.hooks.TaskRemoved.Execute(ctx, ev); err != nil {
		r.logger.Warn("task hook failed", logger.F("error", err))
	}
}

func (r *Router) emitCountryBlock(ctx context.Context, ev CountryBlockEvent) {
	if r.hooks.CountryBlock == nil {
		return
	}
	if err := r.hooks.CountryBlock.Execute(ctx, ev); err != nil {
		r.logger.Warn("country hook failed", logger.F("error", err))
	}
}

func fallback(text, alt string) string {
	if text != "" {
		return text
	}
	return alt
}
