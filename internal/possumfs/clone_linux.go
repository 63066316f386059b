//go:build linux

package possumfs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// CloneFile attempts a reflink clone of src at dst via the FICLONE ioctl,
// which shares physical blocks copy-on-write on filesystems that support it
// (btrfs, xfs with reflink=1, overlayfs over one of those). Returns
// [ErrUnsupportedFilesystem] when the ioctl isn't supported, so callers can
// fall back to segment locking over the original file.
func (r *Real) CloneFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = dstFile.Close() }()

	err = unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd()))
	if err != nil {
		if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EINVAL) {
			_ = dstFile.Close()
			_ = os.Remove(dst)

			return ErrUnsupportedFilesystem
		}

		_ = dstFile.Close()
		_ = os.Remove(dst)

		return err
	}

	return nil
}
