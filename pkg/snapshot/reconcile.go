package snapshot

import "github.com/lightningsats/go-realtime/pkg/interfaces/kv"

// Reconcile resolves two candidate copies of the same logical key read from
// the synchronous and durable tiers. Recency wins: the copy with the greater
// UpdatedAt is kept. On an exact timestamp tie the durable copy wins, since
// the synchronous tier is more prone to silent truncation. A zero entry
// marks an absent candidate; the second return value is false when neither
// tier had data.
func Reconcile(syncEntry, durableEntry kv.Entry) (kv.Entry, bool) {
	switch {
	case syncEntry.IsZero() && durableEntry.IsZero():
		return kv.Entry{}, false
	case syncEntry.IsZero():
		return durableEntry, true
	case durableEntry.IsZero():
		return syncEntry, true
	case syncEntry.UpdatedAt.After(durableEntry.UpdatedAt):
		return syncEntry, true
	default:
		return durableEntry, true
	}
}
