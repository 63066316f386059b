package possumfs

import (
	"os"
	"runtime"
	"sync"
)

// emulateFreeBSD reports whether the process should behave as though it
// were running on a host that only supports whole-file locking (as FreeBSD
// effectively does for the lock APIs this store uses), even when the real
// host supports byte-range/OFD locks.
//
// Initialized once at first use and treated as immutable for the process
// lifetime, per the "global environment flag" design note: flipping it
// mid-run would leave already-open files locked under one discipline and
// new ones under another.
var emulateFreeBSD = sync.OnceValue(func() bool {
	if runtime.GOOS == "freebsd" {
		return true
	}

	_, set := os.LookupEnv("POSSUM_EMULATE_FREEBSD")

	return set
})

// EmulateFreeBSD reports whether whole-file-only locking is forced for this
// process, either because the host is FreeBSD or because
// POSSUM_EMULATE_FREEBSD is set in the environment. Used by tests to
// exercise the degraded-correctness locking path on hosts that otherwise
// support segment locks.
func EmulateFreeBSD() bool {
	return emulateFreeBSD()
}

func wholeFileOnlyLocking() bool {
	return EmulateFreeBSD() || runtime.GOOS == "windows"
}
