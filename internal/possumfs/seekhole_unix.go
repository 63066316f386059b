//go:build linux || darwin

package possumfs

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// SeekHole returns the offset of the next hole at or after offset using
// lseek(SEEK_HOLE). ENXIO from the kernel (no hole past offset) is
// translated to io.EOF.
func (r *Real) SeekHole(f File, offset int64) (int64, error) {
	off, err := unix.Seek(int(f.Fd()), offset, unix.SEEK_HOLE)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return 0, io.EOF
		}

		return 0, err
	}

	return off, nil
}

// SeekData returns the offset of the next data region at or after offset
// using lseek(SEEK_DATA). ENXIO (no data past offset, i.e. the rest of the
// file is a trailing hole) is translated to io.EOF.
func (r *Real) SeekData(f File, offset int64) (int64, error) {
	off, err := unix.Seek(int(f.Fd()), offset, unix.SEEK_DATA)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return 0, io.EOF
		}

		return 0, err
	}

	return off, nil
}
