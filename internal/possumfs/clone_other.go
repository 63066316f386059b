//go:build !linux && !darwin

package possumfs

// CloneFile is unimplemented on this platform; every call reports the
// filesystem as unable to clone so callers fall back to segment locking.
func (r *Real) CloneFile(src, dst string) error {
	return ErrUnsupportedFilesystem
}
