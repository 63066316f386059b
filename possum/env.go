package possum

import "github.com/reflinkdb/possum/internal/possumfs"

// EmulateFreeBSD reports whether this process is forced onto the
// whole-file-only locking path, either because it's actually running on
// FreeBSD or because POSSUM_EMULATE_FREEBSD is set in the environment.
// Exposed at the package level since it affects the concurrency
// guarantees [Reader.Begin] can offer, not just internal file-handling
// detail.
func EmulateFreeBSD() bool {
	return possumfs.EmulateFreeBSD()
}
