package snapback

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Entry names under the repository root. Snapshots live alongside these as
// L_<ts> / S_<ts> siblings.
const (
	MirrorName       = "mirror"
	LastPointerName  = "last"
	FormatMarkerName = ".format"
)

// Repository is the on-disk layout for one backup profile: a working mirror,
// a pointer to the most recent snapshot, and a set of named snapshots, all
// siblings under one root on a single logical volume. All snapshot
// primitives go through the configured backend.
type Repository struct {
	root    string
	backend SnapshotBackend
	format  TimestampFormat
}

// NewRepository creates a Repository handle. No filesystem access happens
// until Ensure.
func NewRepository(root string, backend SnapshotBackend, format TimestampFormat) *Repository {
	return &Repository{root: root, backend: backend, format: format}
}

// Root returns the repository root path.
func (r *Repository) Root() string { return r.root }

// Mirror returns the working mirror path.
func (r *Repository) Mirror() string { return filepath.Join(r.root, MirrorName) }

// Format returns the timestamp format the repository was opened with.
func (r *Repository) Format() TimestampFormat { return r.format }

func (r *Repository) lastPath() string { return filepath.Join(r.root, LastPointerName) }

func (r *Repository) markerPath() string { return filepath.Join(r.root, FormatMarkerName) }

// Backend exposes the snapshot backend for capability queries
// (NeedsLinkHint). Mutating primitives should go through Repository methods.
func (r *Repository) Backend() SnapshotBackend { return r.backend }

// Ensure verifies the repository preconditions and creates the working
// mirror and backend housekeeping entries if absent. The root itself must
// already exist: a missing root is a precondition error, never silently
// created, so a typo'd path cannot grow a new repository.
func (r *Repository) Ensure(ctx context.Context) error {
	info, err := os.Stat(r.root)
	if err != nil {
		return NewError(CategoryPrecondition, r.root, errors.Wrap(err, "repository root"))
	}
	if !info.IsDir() {
		return NewError(CategoryPrecondition, r.root, errors.New("repository root is not a directory"))
	}

	if err := r.checkFormatMarker(); err != nil {
		return err
	}

	if err := r.backend.Prepare(ctx, r.root); err != nil {
		return NewError(CategoryPrecondition, r.root, err)
	}

	if _, err := os.Stat(r.Mirror()); err != nil {
		if !os.IsNotExist(err) {
			return NewError(CategoryPrecondition, r.Mirror(), err)
		}
		if err := r.backend.CreateVolume(ctx, r.Mirror()); err != nil {
			return NewError(CategoryBackend, r.Mirror(), err)
		}
	}
	return nil
}

// checkFormatMarker enforces one timestamp format per repository lifetime.
// The first run writes the marker; later runs reject a config that disagrees
// rather than silently corrupting the snapshot ordering.
func (r *Repository) checkFormatMarker() error {
	data, err := os.ReadFile(r.markerPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return NewError(CategoryPrecondition, r.markerPath(), err)
		}
		if err := os.WriteFile(r.markerPath(), []byte(r.format+"\n"), 0644); err != nil {
			return NewError(CategoryPrecondition, r.markerPath(), errors.Wrap(err, "writing format marker"))
		}
		return nil
	}
	recorded := TimestampFormat(strings.TrimSpace(string(data)))
	if recorded != r.format {
		return NewError(CategoryPrecondition, r.root,
			errors.Newf("repository uses timestamp format %q but config says %q", recorded, r.format))
	}
	return nil
}

// List returns the repository's snapshots of one tier in ascending
// timestamp order, regardless of directory-entry order.
func (r *Repository) List(tier Tier) ([]Snapshot, error) {
	all, err := r.ListAll()
	if err != nil {
		return nil, err
	}
	var out []Snapshot
	for _, s := range all {
		if s.Tier == tier {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListAll returns every snapshot in the repository, both tiers merged, in
// ascending timestamp order. Entries that do not parse as snapshot names
// (the mirror, the pointer, dotfiles) are skipped.
func (r *Repository) ListAll() ([]Snapshot, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, NewError(CategoryPrecondition, r.root, errors.Wrap(err, "listing repository"))
	}
	var snaps []Snapshot
	for _, e := range entries {
		tier, ts, ok := ParseSnapshotName(e.Name(), r.format)
		if !ok {
			continue
		}
		snaps = append(snaps, Snapshot{
			Tier:      tier,
			Timestamp: ts,
			Path:      filepath.Join(r.root, e.Name()),
		})
	}
	sortSnapshots(snaps)
	return snaps, nil
}

// LastSnapshot resolves the last-snapshot pointer. ok is false when the
// repository has no pointer yet (no snapshot has ever been committed, or the
// pointed-at snapshot was deleted by an operator).
func (r *Repository) LastSnapshot() (Snapshot, bool, error) {
	target, err := os.Readlink(r.lastPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, NewError(CategoryPrecondition, r.lastPath(), err)
	}
	tier, ts, ok := ParseSnapshotName(filepath.Base(target), r.format)
	if !ok {
		return Snapshot{}, false, NewError(CategoryPrecondition, r.lastPath(),
			errors.Newf("pointer references %q, not a snapshot name", target))
	}
	return Snapshot{Tier: tier, Timestamp: ts, Path: filepath.Join(r.root, filepath.Base(target))}, true, nil
}

// Commit takes a read-only snapshot of the working mirror at the given tier
// and instant, then atomically updates the last-snapshot pointer. A snapshot
// with the same tier and timestamp already on disk is a data-corruption
// condition: Commit refuses to overwrite it.
func (r *Repository) Commit(ctx context.Context, tier Tier, at Timestamp) (Snapshot, error) {
	snap := Snapshot{Tier: tier, Timestamp: at}
	snap.Path = filepath.Join(r.root, snap.Name())

	if _, err := os.Lstat(snap.Path); err == nil {
		return Snapshot{}, NewError(CategoryBackend, snap.Path, errors.New("snapshot already exists"))
	} else if !os.IsNotExist(err) {
		return Snapshot{}, NewError(CategoryBackend, snap.Path, err)
	}

	if err := r.backend.Snapshot(ctx, r.Mirror(), snap.Path); err != nil {
		return Snapshot{}, NewError(CategoryBackend, snap.Path, err)
	}

	if err := r.updatePointer(snap.Name()); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// updatePointer atomically repoints the last-snapshot symlink via
// symlink-to-temp + rename, so a reader never observes a missing or
// half-written pointer.
func (r *Repository) updatePointer(name string) error {
	tmp := r.lastPath() + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return NewError(CategoryBackend, tmp, err)
	}
	if err := os.Symlink(name, tmp); err != nil {
		return NewError(CategoryBackend, r.lastPath(), errors.Wrap(err, "creating pointer"))
	}
	if err := os.Rename(tmp, r.lastPath()); err != nil {
		os.Remove(tmp)
		return NewError(CategoryBackend, r.lastPath(), errors.Wrap(err, "updating pointer"))
	}
	return nil
}

// Delete removes a snapshot through the backend. Deleting a snapshot that is
// already gone is a no-op, so a crash between pruning enumeration and
// deletion can be retried safely. If the last-snapshot pointer references
// the victim it is dropped first; the pointer may go missing but never
// dangles.
func (r *Repository) Delete(ctx context.Context, snap Snapshot) error {
	if _, err := os.Lstat(snap.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return NewError(CategoryBackend, snap.Path, err)
	}

	if target, err := os.Readlink(r.lastPath()); err == nil && filepath.Base(target) == snap.Name() {
		if err := os.Remove(r.lastPath()); err != nil && !os.IsNotExist(err) {
			return NewError(CategoryBackend, r.lastPath(), err)
		}
	}

	if err := r.backend.DeleteSnapshot(ctx, snap.Path); err != nil {
		return NewError(CategoryBackend, snap.Path, err)
	}
	return nil
}
