// Package transfer provides the synchronization service adapter: a
// mirror-style rsync invocation via exec.Command.
package transfer

import (
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"

	"snapback/internal/snapback"
)

// Rsync implements snapback.Transfer by shelling out to the rsync binary.
// It mirrors a remote source tree into a local directory in archive mode,
// deleting local files that vanished remotely.
type Rsync struct {
	// rsyncPath is the path to the rsync binary. Defaults to "rsync".
	rsyncPath string
	// endpoint is the remote host ("user@host"). Empty means local sources.
	endpoint string
	// sshKey is the identity file passed to ssh. Empty uses ssh defaults.
	sshKey   string
	excludes []string
}

// Option is a functional option for configuring Rsync.
type Option func(*Rsync)

// WithRsyncPath sets a custom path to the rsync binary.
func WithRsyncPath(path string) Option {
	return func(r *Rsync) { r.rsyncPath = path }
}

// WithSSHKey sets the ssh identity file used to reach the endpoint.
func WithSSHKey(path string) Option {
	return func(r *Rsync) { r.sshKey = path }
}

// WithExcludes sets exclusion patterns passed through to rsync.
func WithExcludes(patterns []string) Option {
	return func(r *Rsync) { r.excludes = patterns }
}

// NewRsync creates an rsync adapter for the given remote endpoint.
func NewRsync(endpoint string, opts ...Option) *Rsync {
	r := &Rsync{rsyncPath: "rsync", endpoint: endpoint}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// benignExit reports whether an rsync exit code means "partial transfer,
// some files vanished mid-run". Files changing or disappearing on a live
// remote filesystem are expected, not exceptional, so these codes map to
// success. Everything else is a transfer failure.
//
//	23: partial transfer due to error
//	24: partial transfer because source files vanished
func benignExit(code int) bool { return code == 23 || code == 24 }

// Sync mirrors source into dest. When linkDest is non-empty, unchanged files
// are hardlinked against it instead of copied.
func (r *Rsync) Sync(ctx context.Context, source, dest, linkDest string) error {
	args := r.args(source, dest, linkDest)
	out, err := exec.CommandContext(ctx, r.rsyncPath, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && benignExit(exitErr.ExitCode()) {
			return nil
		}
		return errors.Wrapf(err, "rsync %s: %s", source, string(out))
	}
	return nil
}

// args builds the rsync argument list. Archive mode preserves permissions
// and ownership; --delete keeps dest an exact mirror. Source gets a trailing
// slash so rsync copies contents, not the directory itself.
func (r *Rsync) args(source, dest, linkDest string) []string {
	args := []string{"-a", "--delete"}
	for _, pattern := range r.excludes {
		args = append(args, "--exclude", pattern)
	}
	if r.sshKey != "" {
		args = append(args, "-e", "ssh -i "+r.sshKey)
	}
	if linkDest != "" {
		args = append(args, "--link-dest="+linkDest)
	}
	src := strings.TrimSuffix(source, "/") + "/"
	if r.endpoint != "" {
		src = r.endpoint + ":" + src
	}
	return append(args, src, dest)
}

// Compile-time check that Rsync implements snapback.Transfer.
var _ snapback.Transfer = (*Rsync)(nil)
