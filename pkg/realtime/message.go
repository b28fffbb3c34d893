// Package realtime defines the wire-level message envelope exchanged over the
// notification socket and the catalog of server-pushed event types.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies a realtime message kind. Unknown types are valid on the
// wire; consumers must ignore them rather than fail.
type Type string

// Client-sent and handshake types.
const (
	TypeAuth      Type = "auth"
	TypeConnected Type = "connected"
	TypeAuthError Type = "auth_error"
)

// Server-pushed event types.
const (
	TypeAdReward            Type = "ad_reward"
	TypeWithdrawalRequested Type = "withdrawal_requested"
	TypeWithdrawalApproved  Type = "withdrawal_approved"
	TypeWithdrawalRejected  Type = "withdrawal_rejected"
	TypeReferralBonus       Type = "referral_bonus"
	TypeBalanceUpdate       Type = "balance_update"
	TypePromotionApproved   Type = "promotion_approved"
	TypePromotionRejected   Type = "promotion_rejected"
	TypeTaskDeleted         Type = "task_deleted"
	TypeTaskRemoved         Type = "task_removed"
	TypeTaskPaymentSuccess  Type = "taskPaymentSuccess"
	TypeTaskCreated         Type = "task:created"
	TypeSettingsUpdated     Type = "settings_updated"
	TypeCountryBlocked      Type = "country_blocked"
	TypeCountryUnblocked    Type = "country_unblocked"
)

// ErrMissingType reports a frame without the mandatory "type" field.
var ErrMissingType = errors.New("realtime: message has no type")

// Message is the flat JSON envelope carried on the socket. Every frame has a
// type; the remaining fields are type-specific. Fields not named here survive
// a decode/encode round trip through Extra.
type Message struct {
	Type         Type
	Text         string
	Amount       string
	Balance      string
	Method       string
	TaskID       string
	Country      string
	SessionToken string
	Timestamp    int64
	Extra        map[string]any
}

// wire field names for the struct members above.
const (
	fieldType         = "type"
	fieldMessage      = "message"
	fieldAmount       = "amount"
	fieldBalance      = "balance"
	fieldMethod       = "method"
	fieldTaskID       = "taskId"
	fieldCountry      = "country"
	fieldSessionToken = "sessionToken"
	fieldTimestamp    = "timestamp"
)

// Decode parses a raw frame into a Message. Unknown top-level fields are
// preserved in Extra; a frame without a type is rejected.
func Decode(raw []byte) (Message, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("realtime: malformed frame: %w", err)
	}

	typ, ok := fields[fieldType].(string)
	if !ok || typ == "" {
		return Message{}, ErrMissingType
	}

	msg := Message{Type: Type(typ)}
	msg.Text, _ = fields[fieldMessage].(string)
	msg.Amount, _ = fields[fieldAmount].(string)
	msg.Balance, _ = fields[fieldBalance].(string)
	msg.Method, _ = fields[fieldMethod].(string)
	msg.TaskID, _ = fields[fieldTaskID].(string)
	msg.Country, _ = fields[fieldCountry].(string)
	msg.SessionToken, _ = fields[fieldSessionToken].(string)
	if ts, ok := fields[fieldTimestamp].(float64); ok {
		msg.Timestamp = int64(ts)
	}

	for _, known := range []string{
		fieldType, fieldMessage, fieldAmount, fieldBalance, fieldMethod,
		fieldTaskID, fieldCountry, fieldSessionToken, fieldTimestamp,
	} {
		delete(fields, known)
	}
	if len(fields) > 0 {
		msg.Extra = fields
	}
	return msg, nil
}

// Encode renders the message as a flat JSON object, re-inlining Extra at the
// top level. Named fields win over Extra on key collision.
func (m Message) Encode() ([]byte, error) {
	if m.Type == "" {
		return nil, ErrMissingType
	}
	fields := make(map[string]any, len(m.Extra)+9)
	for k, v := range m.Extra {
		fields[k] = v
	}
	fields[fieldType] = string(m.Type)
	setIfPresent(fields, fieldMessage, m.Text)
	setIfPresent(fields, fieldAmount, m.Amount)
	setIfPresent(fields, fieldBalance, m.Balance)
	setIfPresent(fields, fieldMethod, m.Method)
	setIfPresent(fields, fieldTaskID, m.TaskID)
	setIfPresent(fields, fieldCountry, m.Country)
	setIfPresent(fields, fieldSessionToken, m.SessionToken)
	if m.Timestamp != 0 {
		fields[fieldTimestamp] = m.Timestamp
	}
	return json.Marshal(fields)
}

func setIfPresent(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

// stamped returns the message with Timestamp set to now when unset.
func (m Message) stamped() Message {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().Unix()
	}
	return m
}

// Auth builds the first client frame of the socket handshake.
func Auth(sessionToken string) Message {
	return Message{Type: TypeAuth, SessionToken: sessionToken}
}

// Connected builds the server's successful-handshake reply.
func Connected() Message {
	return Message{Type: TypeConnected}.stamped()
}

// AuthError builds the server's failed-handshake reply.
func AuthError(reason string) Message {
	return Message{Type: TypeAuthError, Text: reason}.stamped()
}

// AdReward announces a credited ad view.
func AdReward(amount string) Message {
	return Message{Type: TypeAdReward, Amount: amount, Text: "Ad reward credited"}.stamped()
}

// ReferralBonus announces a bonus earned from a referral's activity.
func ReferralBonus(amount string) Message {
	return Message{Type: TypeReferralBonus, Amount: amount, Text: "Referral bonus earned"}.stamped()
}

// BalanceUpdate carries the new authoritative balance.
func BalanceUpdate(balance string) Message {
	return Message{Type: TypeBalanceUpdate, Balance: balance}.stamped()
}

// WithdrawalRequested announces a newly filed withdrawal.
func WithdrawalRequested(method, amount string) Message {
	return Message{Type: TypeWithdrawalRequested, Method: method, Amount: amount}.stamped()
}

// WithdrawalApproved announces an approved withdrawal.
func WithdrawalApproved(method, amount string) Message {
	return Message{
		Type:   TypeWithdrawalApproved,
		Method: method,
		Amount: amount,
		Text:   fmt.Sprintf("Your %s withdrawal of %s was approved", method, amount),
	}.stamped()
}

// WithdrawalRejected announces a rejected withdrawal with the review reason.
func WithdrawalRejected(method, reason string) Message {
	return Message{Type: TypeWithdrawalRejected, Method: method, Text: reason}.stamped()
}

// PromotionApproved announces an approved promotion submission.
func PromotionApproved(text string) Message {
	return Message{Type: TypePromotionApproved, Text: text}.stamped()
}

// PromotionRejected announces a rejected promotion submission.
func PromotionRejected(reason string) Message {
	return Message{Type: TypePromotionRejected, Text: reason}.stamped()
}

// TaskCreated announces a new task available to the user.
func TaskCreated(taskID string) Message {
	return Message{Type: TypeTaskCreated, TaskID: taskID}.stamped()
}

// TaskRemoved announces a task withdrawn from the user's list.
func TaskRemoved(taskID string) Message {
	return Message{Type: TypeTaskRemoved, TaskID: taskID}.stamped()
}

// SettingsUpdated announces a change to server-side app settings.
func SettingsUpdated() Message {
	return Message{Type: TypeSettingsUpdated}.stamped()
}

// CountryBlocked announces that a country was blocked for rewards.
func CountryBlocked(country string) Message {
	return Message{Type: TypeCountryBlocked, Country: country}.stamped()
}

// CountryUnblocked announces that a country block was lifted.
func CountryUnblocked(country string) Message {
	return Message{Type: TypeCountryUnblocked, Country: country}.stamped()
}
