//go:build darwin

package possumfs

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PunchHole deallocates [offset, offset+length) within f via
// fcntl(F_PUNCHHOLE), APFS/HFS+'s equivalent of Linux's
// FALLOC_FL_PUNCH_HOLE. Only whole-block ranges are actually freed; the
// kernel silently rounds the request, which is why callers align to
// [FS.MinHoleSize] before calling this.
func (r *Real) PunchHole(f File, offset, length int64) error {
	arg := unix.Fpunchhole_t{
		Offset: offset,
		Length: length,
	}

	_, _, errno := unix.Syscall(unix.SYS_FCNTL, f.Fd(), uintptr(unix.F_PUNCHHOLE), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		if errors.Is(errno, unix.ENOTSUP) || errors.Is(errno, unix.EINVAL) {
			return ErrUnsupportedFilesystem
		}

		return errno
	}

	return nil
}
