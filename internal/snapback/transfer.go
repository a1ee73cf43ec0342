package snapback

import "context"

// Transfer is the external synchronization service: a one-way, resumable,
// mirror-style copy of a remote source tree into a local directory.
// Implementations map their tool's benign partial-transfer status codes to
// success; everything else is an error.
type Transfer interface {
	// Sync mirrors the remote source path into dest. linkDest, when
	// non-empty, names a local directory whose unchanged files should be
	// hardlinked instead of copied.
	Sync(ctx context.Context, source, dest, linkDest string) error
}
