//go:build !unix

package possumfs

import "os"

// diskAllocation falls back to the logical size on platforms without a
// portable way to read the allocated block count.
func diskAllocation(fi os.FileInfo) int64 {
	return fi.Size()
}
