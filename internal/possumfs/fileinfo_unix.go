//go:build unix

package possumfs

import (
	"os"
	"syscall"
)

// diskAllocation returns the number of bytes actually allocated on disk for
// fi, read from the platform Stat_t's block count (always in 512-byte units,
// regardless of the filesystem's actual block size).
func diskAllocation(fi os.FileInfo) int64 {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fi.Size()
	}

	return int64(st.Blocks) * 512
}
