package retry

import "time"

// Backoff computes the delay before the next retry attempt.
type Backoff interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same delay regardless of the attempt count. The
// socket manager reconnects on this policy: pushed events are best-effort
// and a missed window is reconciled by the next authoritative fetch, so
// there is nothing to gain from growing the delay.
type FixedBackoff struct {
	Delay time.Duration
}

// Next returns the fixed delay.
func (b FixedBackoff) Next(attempt int) time.Duration {
	if b.Delay <= 0 {
		return 3 * time.Second
	}
	return b.Delay
}

// ExponentialBackoff grows delays by powers of two, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay for the given attempt (1-based).
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base << (attempt - 1)
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// DefaultReconnect returns the fixed reconnect policy used by the socket
// manager.
func DefaultReconnect() Backoff {
	return FixedBackoff{Delay: 3 * time.Second}
}
