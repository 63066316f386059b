// Package possumfs provides the filesystem abstraction the store's values
// files are built on: ordinary file I/O plus the copy-on-write primitives
// (block-reflink clone, hole punching, sparse-region inspection, byte-range
// locking) that make zero-copy snapshots and punctual reclamation possible.
//
// [Real] is the production implementation, wrapping [os] and the platform
// syscalls directly. Tests use [Chaos] to force individual operations to
// fail, in particular to exercise the "filesystem doesn't support cloning"
// fallback path without needing a filesystem that actually lacks it.
package possumfs

import (
	"io"
	"os"
)

// LockMode selects shared or exclusive locking for [FS.LockSegment].
type LockMode int

const (
	// LockShared allows any number of concurrent shared locks, but excludes
	// exclusive locks.
	LockShared LockMode = iota
	// LockExclusive excludes any other lock, shared or exclusive.
	LockExclusive
)

// Capabilities describes what a directory's filesystem can do. [Real]
// probes the directory afresh on every [FS.Capabilities] call; nothing is
// cached. Callers degrade behavior based on these flags.
type Capabilities struct {
	// SupportsSparse is true when the filesystem can represent holes
	// (unallocated byte ranges) within a file without changing its logical
	// length.
	SupportsSparse bool
	// SupportsBlockClone is true when [FS.CloneFile] can produce a
	// copy-on-write reflink instead of a full data copy.
	SupportsBlockClone bool
	// WholeFileOnlyLocking is true when the host can only take locks on an
	// entire file (no byte-range/OFD locks), so callers must fall back to
	// whole-file flock semantics and degrade the correctness checks that
	// assume segment-level isolation.
	WholeFileOnlyLocking bool
}

// File is an open file descriptor. Satisfied by [os.File].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the OS file descriptor, valid until Close. Used for the
	// syscalls backing CloneFile, PunchHole, SeekHole/SeekData and
	// LockSegment.
	Fd() uintptr

	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

// FS is the set of operations the store needs from a filesystem.
//
// Implementations must be safe for concurrent use by multiple goroutines;
// cross-process safety is the caller's responsibility via LockSegment.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	Stat(path string) (os.FileInfo, error)
	Exists(path string) (bool, error)
	ReadDir(path string) ([]os.DirEntry, error)
	MkdirAll(path string, perm os.FileMode) error

	Remove(path string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error

	// CloneFile attempts a block-reflink copy-on-write duplicate of src at
	// dst. Returns [ErrUnsupportedFilesystem] when the filesystem lacks
	// reflink support; callers fall back to segment locking over the
	// original file instead of cloning it.
	CloneFile(src, dst string) error

	// PunchHole deallocates the byte range [offset, offset+length) within
	// f, turning it into a sparse hole. Must not change f's logical length.
	// Returns [ErrUnsupportedFilesystem] when the filesystem can't punch
	// holes.
	PunchHole(f File, offset, length int64) error

	// SeekHole returns the offset of the next hole at or after offset, or
	// io.EOF if there is none before the end of the file.
	SeekHole(f File, offset int64) (int64, error)
	// SeekData returns the offset of the next data region at or after
	// offset, or io.EOF if there is none before the end of the file.
	SeekData(f File, offset int64) (int64, error)

	// MinHoleSize returns the minimum alignment at which dir's filesystem
	// can represent a hole (the block size on most filesystems, 1 on
	// byte-granular sparse filesystems).
	MinHoleSize(dir string) (int64, error)

	// SetSparse marks f as sparse where the platform requires an explicit
	// opt-in (a no-op on Unix, where files are sparse by default).
	SetSparse(f File) error

	// FileDiskAllocation returns the number of bytes actually allocated on
	// disk for path, which can be less than its logical length if it
	// contains holes.
	FileDiskAllocation(path string) (int64, error)

	// LockSegment takes a lock over [offset, offset+length) of
	// f, non-blocking. length == 0 means "to the end of the file". Returns
	// (false, nil) if the lock would block rather than erroring.
	LockSegment(f File, mode LockMode, offset, length int64) (bool, error)
	// UnlockSegment releases a previously taken lock over the same range.
	UnlockSegment(f File, offset, length int64) error

	// Capabilities reports what this filesystem can do, probed against
	// dir.
	Capabilities(dir string) (Capabilities, error)
}

var _ File = (*os.File)(nil)
