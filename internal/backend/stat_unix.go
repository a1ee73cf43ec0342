//go:build unix

package backend

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

// sameDevice reports whether two paths reside on the same device, which is
// what makes rename atomic between them.
func sameDevice(a, b string) (bool, error) {
	da, err := deviceOf(a)
	if err != nil {
		return false, err
	}
	db, err := deviceOf(b)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

func deviceOf(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errors.Newf("cannot read device ID: expected *syscall.Stat_t, got %T", info.Sys())
	}
	return uint64(stat.Dev), nil
}
