//go:build !unix

package possumfs

// MinHoleSize reports no sparse support on platforms without statfs, which
// disables hole punching and extent-skipping reads but not correctness.
func (r *Real) MinHoleSize(dir string) (int64, error) {
	return 0, nil
}
