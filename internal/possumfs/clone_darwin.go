//go:build darwin

package possumfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// CloneFile clones src to dst via clonefile(2), which APFS implements as a
// copy-on-write block-sharing clone. dst must not already exist; unlike
// Linux's FICLONE, clonefile creates the destination itself.
func (r *Real) CloneFile(src, dst string) error {
	err := unix.Clonefile(src, dst, 0)
	if err != nil {
		if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EINVAL) {
			return ErrUnsupportedFilesystem
		}

		return err
	}

	return nil
}
