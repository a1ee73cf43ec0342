package backend

import (
	"github.com/cockroachdb/errors"

	"snapback/internal/snapback"
)

// New creates a SnapshotBackend for the given kind: "btrfs" or "plain".
func New(kind string) (snapback.SnapshotBackend, error) {
	switch kind {
	case "btrfs":
		return NewBtrfs(), nil
	case "plain":
		return NewPlain(), nil
	default:
		return nil, errors.Newf("unknown backend kind: %s", kind)
	}
}
