package snapback

import "time"

// Policy holds the two retention parameters of a profile.
//
// MaxLongCount bounds the number of long-lived snapshots kept; zero disables
// the long tier entirely (no new Long snapshots, and existing ones are
// retired on the next pruning pass). MaxAge bounds both the age of
// short-lived snapshots and the minimum spacing between long-lived ones.
type Policy struct {
	MaxLongCount int
	MaxAge       time.Duration
}

// Classify decides the tier of the snapshot about to be committed.
// longs must be the repository's existing Long snapshots in ascending order.
//
// A snapshot is Long when the long tier is enabled and at least MaxAge has
// passed since the most recent Long snapshot (or since epoch zero when none
// exists, so the very first cycle is Long). This guarantees at most one Long
// snapshot per MaxAge window.
func (p Policy) Classify(longs []Snapshot, now time.Time) Tier {
	if p.MaxLongCount <= 0 {
		return TierShort
	}
	var lastLong time.Time // zero sentinel when no Long snapshot exists
	if len(longs) > 0 {
		lastLong = longs[len(longs)-1].Timestamp.Time()
	}
	if now.Sub(lastLong) >= p.MaxAge {
		return TierLong
	}
	return TierShort
}

// Prune selects the snapshots eligible for deletion after a commit.
// longs and shorts must each be in ascending timestamp order.
//
// Long tier: everything but the MaxLongCount most recent (all of them when
// MaxLongCount is zero). Short tier: every snapshot aged MaxAge or more; the
// boundary is inclusive. The returned order follows the inputs; callers may
// delete in any order since each deletion is independent and idempotent.
func (p Policy) Prune(longs, shorts []Snapshot, now time.Time) []Snapshot {
	var eligible []Snapshot

	keep := p.MaxLongCount
	if keep < 0 {
		keep = 0
	}
	if excess := len(longs) - keep; excess > 0 {
		eligible = append(eligible, longs[:excess]...)
	}

	for _, s := range shorts {
		if now.Sub(s.Timestamp.Time()) >= p.MaxAge {
			eligible = append(eligible, s)
		}
	}
	return eligible
}
