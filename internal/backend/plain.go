// Package backend implements the snapshot backends a repository can be
// built on: btrfs (native copy-on-write snapshots) and plain (a fallback
// emulated with rename and a trash bin).
package backend

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"snapback/internal/snapback"
)

// TrashName is the trash bin entry under a fallback repository root.
const TrashName = ".trash"

// Plain is the fallback backend for filesystems without native snapshots.
// "Snapshotting" is an atomic rename that consumes the working mirror, and
// deletion stages the victim in a trash bin so its disappearance from the
// snapshot namespace is atomic even though content removal is not.
//
// The rename-based snapshot is not read-only toward an in-flight reader of
// the mirror. That gap is inherent to this mode and intentionally kept.
type Plain struct{}

// NewPlain creates the fallback backend.
func NewPlain() *Plain { return &Plain{} }

// Prepare creates the trash bin if absent and verifies it shares a device
// with the repository root. A cross-device trash would turn the rename-based
// delete into a silent copy, so it is rejected outright.
func (p *Plain) Prepare(_ context.Context, root string) error {
	trash := filepath.Join(root, TrashName)
	if err := os.MkdirAll(trash, 0755); err != nil {
		return errors.Wrap(err, "creating trash bin")
	}
	same, err := sameDevice(root, trash)
	if err != nil {
		return err
	}
	if !same {
		return errors.Newf("trash bin %s is not on the same device as %s", trash, root)
	}
	return nil
}

// CreateVolume makes an ordinary directory at path.
func (p *Plain) CreateVolume(_ context.Context, path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(err, "creating volume")
	}
	return nil
}

// Snapshot renames src to dst. The rename is atomic within one device; src
// no longer exists afterwards and must be recreated before the next sync.
func (p *Plain) Snapshot(_ context.Context, src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrap(err, "renaming mirror into snapshot")
	}
	return nil
}

// DeleteSnapshot moves path into the trash bin, discards the trash contents,
// and recreates an empty trash bin. A missing path is a no-op. Leftovers
// from a crash between the move and the discard are swept up by the next
// deletion's discard pass.
func (p *Plain) DeleteSnapshot(_ context.Context, path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "checking snapshot")
	}

	trash := filepath.Join(filepath.Dir(path), TrashName)
	if err := os.MkdirAll(trash, 0755); err != nil {
		return errors.Wrap(err, "recreating trash bin")
	}

	same, err := sameDevice(path, trash)
	if err != nil {
		return err
	}
	if !same {
		return errors.Newf("refusing cross-device delete: %s and %s", path, trash)
	}

	staged := filepath.Join(trash, filepath.Base(path))
	if err := os.RemoveAll(staged); err != nil {
		return errors.Wrap(err, "clearing stale trash entry")
	}
	if err := os.Rename(path, staged); err != nil {
		return errors.Wrap(err, "moving snapshot into trash")
	}

	if err := os.RemoveAll(trash); err != nil {
		return errors.Wrap(err, "discarding trash contents")
	}
	if err := os.MkdirAll(trash, 0755); err != nil {
		return errors.Wrap(err, "recreating trash bin")
	}
	return nil
}

// NeedsLinkHint is true: each snapshot consumes the mirror, so the transfer
// layer should hardlink unchanged files against the previous snapshot.
func (p *Plain) NeedsLinkHint() bool { return true }

// Compile-time check that Plain implements snapback.SnapshotBackend.
var _ snapback.SnapshotBackend = (*Plain)(nil)
