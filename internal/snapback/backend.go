package snapback

import "context"

// SnapshotBackend abstracts the filesystem capability model a repository is
// built on. Implementations cover copy-on-write filesystems with native
// snapshot primitives and a fallback model built from move+hardlink
// semantics. The backend is chosen once at repository initialization and
// fixed for its lifetime; nothing outside the implementations may branch on
// the backend kind.
type SnapshotBackend interface {
	// Prepare validates the repository root against the backend's
	// preconditions (native volume check, trash bin on the same device)
	// and creates any backend housekeeping entries. Called once per run,
	// before any mutation.
	Prepare(ctx context.Context, root string) error

	// CreateVolume makes an empty writable volume at path.
	CreateVolume(ctx context.Context, path string) error

	// Snapshot produces an immutable copy of src at dst. CoW backends
	// leave src writable; the fallback backend consumes src (atomic
	// rename), after which it must be recreated before the next sync.
	// dst must not already exist.
	Snapshot(ctx context.Context, src, dst string) error

	// DeleteSnapshot removes the snapshot at path. Deleting a path that
	// does not exist is a no-op, not an error.
	DeleteSnapshot(ctx context.Context, path string) error

	// NeedsLinkHint reports whether the transfer layer should hardlink
	// unchanged files against the previous snapshot. True for the
	// fallback backend, where the mirror is consumed by each snapshot;
	// false for CoW backends, where the mirror persists between cycles.
	NeedsLinkHint() bool
}
