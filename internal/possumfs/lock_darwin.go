//go:build darwin

package possumfs

import (
	"golang.org/x/sys/unix"
)

// Darwin has no F_OFD_SETLK; byte-range locks here are the classic
// process-associated fcntl locks (F_SETLK), which is why
// [Capabilities.WholeFileOnlyLocking] matters less here than whether two
// locks from the same process on different fds can coexist — they can't,
// so a process must not try to hold two conflicting segment locks on the
// same file through different file descriptors.
const ofdLockCmd = unix.F_SETLK

func lockTypeFor(mode LockMode) int16 {
	if mode == LockShared {
		return unix.F_RDLCK
	}

	return unix.F_WRLCK
}
