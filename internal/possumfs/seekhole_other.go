//go:build !linux && !darwin

package possumfs

import "io"

// SeekHole reports no holes on platforms without SEEK_HOLE support: every
// file looks fully allocated, which is conservatively correct (it just
// disables sparse-region skipping, not correctness).
func (r *Real) SeekHole(f File, offset int64) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if offset >= fi.Size() {
		return 0, io.EOF
	}

	return fi.Size(), nil
}

// SeekData reports the requested offset as data when SEEK_DATA isn't
// available, i.e. assumes there are no holes to skip.
func (r *Real) SeekData(f File, offset int64) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}

	if offset >= fi.Size() {
		return 0, io.EOF
	}

	return offset, nil
}
