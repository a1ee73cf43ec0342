package backend

import (
	"context"
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"

	"snapback/internal/snapback"
)

// Btrfs is the CoW backend, shelling out to the btrfs binary for native
// subvolume snapshot and delete primitives. The working mirror persists
// across cycles, so no link hint is needed.
type Btrfs struct {
	// btrfsPath is the path to the btrfs binary. Defaults to "btrfs".
	btrfsPath string
}

// Option is a functional option for configuring Btrfs.
type Option func(*Btrfs)

// WithBtrfsPath sets a custom path to the btrfs binary.
func WithBtrfsPath(path string) Option {
	return func(b *Btrfs) {
		b.btrfsPath = path
	}
}

// NewBtrfs creates the CoW backend.
func NewBtrfs(opts ...Option) *Btrfs {
	b := &Btrfs{btrfsPath: "btrfs"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prepare verifies the repository root lives on a btrfs filesystem. The
// check runs once per cycle; the primitives trust it afterwards.
func (b *Btrfs) Prepare(ctx context.Context, root string) error {
	if out, err := b.run(ctx, "filesystem", "df", root); err != nil {
		return errors.Wrapf(err, "%s is not on a btrfs filesystem: %s", root, out)
	}
	return nil
}

// CreateVolume creates an empty writable subvolume at path.
func (b *Btrfs) CreateVolume(ctx context.Context, path string) error {
	if out, err := b.run(ctx, "subvolume", "create", path); err != nil {
		return errors.Wrapf(err, "btrfs subvolume create failed: %s", out)
	}
	return nil
}

// Snapshot takes a read-only subvolume snapshot of src at dst. src stays
// writable and keeps serving as the working mirror.
func (b *Btrfs) Snapshot(ctx context.Context, src, dst string) error {
	if out, err := b.run(ctx, "subvolume", "snapshot", "-r", src, dst); err != nil {
		return errors.Wrapf(err, "btrfs subvolume snapshot failed: %s", out)
	}
	return nil
}

// DeleteSnapshot clears the read-only property and deletes the subvolume.
// A missing path is a no-op. A path that is not a subvolume fails loudly
// rather than being removed as plain files.
func (b *Btrfs) DeleteSnapshot(ctx context.Context, path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "checking snapshot")
	}
	if out, err := b.run(ctx, "property", "set", "-ts", path, "ro", "false"); err != nil {
		return errors.Wrapf(err, "clearing read-only property failed: %s", out)
	}
	if out, err := b.run(ctx, "subvolume", "delete", path); err != nil {
		return errors.Wrapf(err, "btrfs subvolume delete failed: %s", out)
	}
	return nil
}

// NeedsLinkHint is false: the mirror persists, so transfers are naturally
// incremental in place.
func (b *Btrfs) NeedsLinkHint() bool { return false }

func (b *Btrfs) run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, b.btrfsPath, args...).CombinedOutput()
	return string(out), err
}

// Compile-time check that Btrfs implements snapback.SnapshotBackend.
var _ snapback.SnapshotBackend = (*Btrfs)(nil)
