package snapback

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Tier classifies a snapshot by its retention rule.
type Tier string

const (
	// TierLong marks a long-lived snapshot, retained by count.
	TierLong Tier = "L"
	// TierShort marks a short-lived snapshot, retained by age.
	TierShort Tier = "S"
)

// Prefix returns the snapshot name prefix for the tier ("L_" or "S_").
func (t Tier) Prefix() string { return string(t) + "_" }

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t == TierLong || t == TierShort }

// TimestampFormat selects how snapshot timestamps are encoded in names.
// A repository uses exactly one format for its whole lifetime; mixing
// formats breaks the total ordering over snapshot names.
type TimestampFormat string

const (
	// FormatUnix encodes timestamps as integer Unix epoch seconds.
	FormatUnix TimestampFormat = "unix"
	// FormatISO8601 encodes timestamps as compact UTC ISO-8601
	// (20060102T150405Z), which sorts lexicographically.
	FormatISO8601 TimestampFormat = "iso8601"
)

const isoLayout = "20060102T150405Z"

// Valid reports whether f is a known timestamp format.
func (f TimestampFormat) Valid() bool { return f == FormatUnix || f == FormatISO8601 }

// Timestamp is the total-ordering key of a snapshot. It carries its encoding
// format so that comparisons and rendering can never mix representations.
// Sub-second precision is dropped: names only encode whole seconds.
type Timestamp struct {
	t      time.Time
	format TimestampFormat
}

// NewTimestamp creates a Timestamp from t in the given format.
func NewTimestamp(t time.Time, format TimestampFormat) (Timestamp, error) {
	if !format.Valid() {
		return Timestamp{}, errors.Newf("unknown timestamp format: %s", format)
	}
	return Timestamp{t: t.UTC().Truncate(time.Second), format: format}, nil
}

// ParseTimestamp decodes a timestamp string in the given format.
func ParseTimestamp(s string, format TimestampFormat) (Timestamp, error) {
	switch format {
	case FormatUnix:
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Timestamp{}, errors.Wrapf(err, "parsing unix timestamp %q", s)
		}
		return Timestamp{t: time.Unix(sec, 0).UTC(), format: format}, nil
	case FormatISO8601:
		t, err := time.Parse(isoLayout, s)
		if err != nil {
			return Timestamp{}, errors.Wrapf(err, "parsing iso8601 timestamp %q", s)
		}
		return Timestamp{t: t, format: format}, nil
	default:
		return Timestamp{}, errors.Newf("unknown timestamp format: %s", format)
	}
}

// Time returns the timestamp as a time.Time in UTC.
func (ts Timestamp) Time() time.Time { return ts.t }

// Format returns the encoding format the timestamp was created with.
func (ts Timestamp) Format() TimestampFormat { return ts.format }

// String renders the timestamp in its format. The rendering round-trips
// through ParseTimestamp and sorts consistently with Before within one
// repository.
func (ts Timestamp) String() string {
	if ts.format == FormatISO8601 {
		return ts.t.Format(isoLayout)
	}
	return strconv.FormatInt(ts.t.Unix(), 10)
}

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// Equal reports whether ts and other denote the same instant.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

// Snapshot is an immutable, read-only point-in-time copy of a repository's
// working mirror. Identity within a repository is Tier + Timestamp.
type Snapshot struct {
	Tier      Tier
	Timestamp Timestamp
	Path      string
}

// Name returns the on-disk entry name, e.g. "L_1692800000" or
// "S_20230823T101500Z".
func (s Snapshot) Name() string { return s.Tier.Prefix() + s.Timestamp.String() }

// ParseSnapshotName decodes a snapshot entry name into its tier and
// timestamp. Returns ok=false for names that are not snapshots (the working
// mirror, the last pointer, dotfiles).
func ParseSnapshotName(name string, format TimestampFormat) (Tier, Timestamp, bool) {
	var tier Tier
	switch {
	case strings.HasPrefix(name, TierLong.Prefix()):
		tier = TierLong
	case strings.HasPrefix(name, TierShort.Prefix()):
		tier = TierShort
	default:
		return "", Timestamp{}, false
	}
	ts, err := ParseTimestamp(name[len(tier.Prefix()):], format)
	if err != nil {
		return "", Timestamp{}, false
	}
	return tier, ts, true
}

// sortSnapshots orders snapshots by ascending timestamp, with tier as a
// tie-breaker across tiers so the order is deterministic.
func sortSnapshots(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].Timestamp.Equal(snaps[j].Timestamp) {
			return snaps[i].Timestamp.Before(snaps[j].Timestamp)
		}
		return snaps[i].Tier < snaps[j].Tier
	})
}
