//go:build !linux && !darwin

package possumfs

// PunchHole is unimplemented on this platform; reclamation is disabled for
// values files stored here.
func (r *Real) PunchHole(f File, offset, length int64) error {
	return ErrUnsupportedFilesystem
}
