//go:build !linux && !darwin

package possumfs

// LockSegment is unimplemented on this platform; it always reports success
// without taking an actual OS-level lock, so multi-process coordination
// degrades to whatever guarantees the manifest store's own locking
// provides. [Capabilities.WholeFileOnlyLocking] is true here only on
// FreeBSD, on Windows, or when POSSUM_EMULATE_FREEBSD is set (see env.go).
func (r *Real) LockSegment(f File, mode LockMode, offset, length int64) (bool, error) {
	return true, nil
}

func (r *Real) UnlockSegment(f File, offset, length int64) error {
	return nil
}
