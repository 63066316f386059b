//go:build unix

package possumfs

import "syscall"

// MinHoleSize returns dir's filesystem block size, read via statfs. Holes
// punched or inspected below this granularity are not guaranteed to round
// the way callers expect, so extent alignment always rounds up to this
// value first.
//
// Linux reports this via statfs f_bsize; Darwin's APFS can report a finer
// minimum hole size separately via pathconf _PC_MIN_HOLE_SIZE, but statfs's
// block size is a safe, if occasionally conservative, upper bound on the
// true minimum hole granularity on every platform this runs on, so both
// are treated the same way here.
func (r *Real) MinHoleSize(dir string) (int64, error) {
	var st syscall.Statfs_t

	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, err
	}

	return int64(st.Bsize), nil
}
