//go:build linux

package possumfs

import (
	"golang.org/x/sys/unix"
)

// ofdLockCmd is F_OFD_SETLK, the open-file-description variant of fcntl
// locking. Unlike F_SETLK, OFD locks are associated with the open file
// description (so they survive other fds in the same process closing) and
// compose with byte-range granularity, which plain flock(2) doesn't offer.
const ofdLockCmd = unix.F_OFD_SETLK

func lockTypeFor(mode LockMode) int16 {
	if mode == LockShared {
		return unix.F_RDLCK
	}

	return unix.F_WRLCK
}
