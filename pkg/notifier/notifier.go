// Package notifier is the facade external collaborators call after mutating
// authoritative state: admin approval flows, the payment processor, the ad
// reward pipeline. Each method builds the right wire message and hands it to
// the broadcast dispatcher; delivery is best-effort and a user with no live
// session simply reconciles on their next authoritative fetch.
package notifier

import (
	"errors"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/realtime"
)

// Broadcaster delivers one message to every live session of a user and
// reports how many sends succeeded.
type Broadcaster interface {
	Broadcast(userID string, msg realtime.Message) int
}

// Notifier publishes typed domain events to a user's sessions.
type Notifier struct {
	broadcaster Broadcaster
	logger      logger.Logger
}

// New builds a Notifier over the given dispatcher.
func New(b Broadcaster, lgr logger.Logger) (*Notifier, error) {
	if b == nil {
		return nil, errors.New("notifier: broadcaster is required")
	}
	if lgr == nil {
		lgr = &logger.Nop{}
	}
	return &Notifier{broadcaster: b, logger: lgr}, nil
}

// Publish sends an arbitrary message; prefer the typed helpers.
func (n *Notifier) Publish(userID string, msg realtime.Message) bool {
	delivered := n.broadcaster.Broadcast(userID, msg)
	if delivered == 0 {
		n.logger.Debug("no live sessions",
			logger.F("user", userID), logger.F("type", string(msg.Type)))
	}
	return delivered > 0
}

// AdReward announces a credited ad view followed by the new balance.
func (n *Notifier) AdReward(userID, amount, balance string) bool {
	ok := n.Publish(userID, realtime.AdReward(amount))
	n.Publish(userID, realtime.BalanceUpdate(balance))
	return ok
}

// ReferralBonus announces a referral earning followed by the new balance.
func (n *Notifier) ReferralBonus(userID, amount, balance string) bool {
	ok := n.Publish(userID, realtime.ReferralBonus(amount))
	n.Publish(userID, realtime.BalanceUpdate(balance))
	return ok
}

// BalanceUpdate pushes the new authoritative balance.
func (n *Notifier) BalanceUpdate(userID, balance string) bool {
	return n.Publish(userID, realtime.BalanceUpdate(balance))
}

// WithdrawalRequested confirms a freshly filed withdrawal.
func (n *Notifier) WithdrawalRequested(userID, method, amount string) bool {
	return n.Publish(userID, realtime.WithdrawalRequested(method, amount))
}

// WithdrawalApproved announces an approved withdrawal.
func (n *Notifier) WithdrawalApproved(userID, method, amount string) bool {
	return n.Publish(userID, realtime.WithdrawalApproved(method, amount))
}

// WithdrawalRejected announces a rejected withdrawal with the review reason.
func (n *Notifier) WithdrawalRejected(userID, method, reason string) bool {
	return n.Publish(userID, realtime.WithdrawalRejected(method, reason))
}

// PromotionApproved announces an approved promotion submission.
func (n *Notifier) PromotionApproved(userID, text string) bool {
	return n.Publish(userID, realtime.PromotionApproved(text))
}

// PromotionRejected announces a rejected promotion submission.
func (n *Notifier) PromotionRejected(userID, reason string) bool {
	return n.Publish(userID, realtime.PromotionRejected(reason))
}

// TaskCreated announces a new task available to the user.
func (n *Notifier) TaskCreated(userID, taskID string) bool {
	return n.Publish(userID, realtime.TaskCreated(taskID))
}

// TaskRemoved announces a task withdrawn from the user's list.
func (n *Notifier) TaskRemoved(userID, taskID string) bool {
	return n.Publish(userID, realtime.TaskRemoved(taskID))
}

// SettingsUpdated tells sessions to refetch server-side settings.
func (n *Notifier) SettingsUpdated(userID string) bool {
	return n.Publish(userID, realtime.SettingsUpdated())
}

// CountryBlocked announces a reward block for the given country.
func (n *Notifier) CountryBlocked(userID, country string) bool {
	return n.Publish(userID, realtime.CountryBlocked(country))
}

// CountryUnblocked announces a lifted country block.
func (n *Notifier) CountryUnblocked(userID, country string) bool {
	return n.Publish(userID, realtime.CountryUnblocked(country))
}
