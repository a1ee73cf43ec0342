package testutil

import (
	"context"

	"snapback/internal/snapback"
)

// FlakyBackend wraps a real backend and injects scripted failures.
// Zero-value fields mean "delegate normally".
type FlakyBackend struct {
	Backend snapback.SnapshotBackend

	PrepareErr  error
	SnapshotErr error
	// DeleteErrs maps a snapshot path to the error its deletion returns.
	DeleteErrs map[string]error
}

func (f *FlakyBackend) Prepare(ctx context.Context, root string) error {
	if f.PrepareErr != nil {
		return f.PrepareErr
	}
	return f.Backend.Prepare(ctx, root)
}

func (f *FlakyBackend) CreateVolume(ctx context.Context, path string) error {
	return f.Backend.CreateVolume(ctx, path)
}

func (f *FlakyBackend) Snapshot(ctx context.Context, src, dst string) error {
	if f.SnapshotErr != nil {
		return f.SnapshotErr
	}
	return f.Backend.Snapshot(ctx, src, dst)
}

func (f *FlakyBackend) DeleteSnapshot(ctx context.Context, path string) error {
	if err, ok := f.DeleteErrs[path]; ok {
		return err
	}
	return f.Backend.DeleteSnapshot(ctx, path)
}

func (f *FlakyBackend) NeedsLinkHint() bool { return f.Backend.NeedsLinkHint() }

// Compile-time check that FlakyBackend implements snapback.SnapshotBackend.
var _ snapback.SnapshotBackend = (*FlakyBackend)(nil)
