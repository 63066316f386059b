//go:build linux

package possumfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// PunchHole deallocates [offset, offset+length) within f using
// fallocate(FALLOC_FL_PUNCH_HOLE|FALLOC_FL_KEEP_SIZE), which frees the
// underlying blocks without shrinking the file.
func (r *Real) PunchHole(f File, offset, length int64) error {
	err := unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
	if err != nil {
		if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
			return ErrUnsupportedFilesystem
		}

		return err
	}

	return nil
}
