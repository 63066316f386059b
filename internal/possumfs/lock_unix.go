//go:build linux || darwin

package possumfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// LockSegment takes a non-blocking byte-range lock over [offset,
// offset+length) of f. length == 0 locks to the end of the file, matching
// fcntl's own convention. Returns (false, nil) rather than an error when the
// lock would block, so callers can retry with backoff (see
// possum/reclaimer.go) without inspecting errors on the hot path.
func (r *Real) LockSegment(f File, mode LockMode, offset, length int64) (bool, error) {
	lk := unix.Flock_t{
		Type:   lockTypeFor(mode),
		Whence: 0,
		Start:  offset,
		Len:    length,
	}

	err := unix.FcntlFlock(f.Fd(), ofdLockCmd, &lk)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EACCES) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// UnlockSegment releases a lock previously taken over the same range by
// this process.
func (r *Real) UnlockSegment(f File, offset, length int64) error {
	lk := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  offset,
		Len:    length,
	}

	return unix.FcntlFlock(f.Fd(), ofdLockCmd, &lk)
}
