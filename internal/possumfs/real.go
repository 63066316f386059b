package possumfs

import (
	"os"
)

// Real implements [FS] against the real filesystem. Ordinary file
// operations are pure passthroughs to [os]; the copy-on-write primitives
// dispatch to platform-specific syscalls (see clone_*.go, punch_*.go,
// seekhole_*.go, minholesize_*.go, lock_*.go).
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (r *Real) Create(path string) (File, error) {
	return os.Create(path)
}

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists reports whether path exists, collapsing [os.ErrNotExist] into
// (false, nil) the way callers usually want it.
func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func (r *Real) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func (r *Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

func (r *Real) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (r *Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// FileDiskAllocation returns the number of 512-byte blocks a file occupies
// on disk, scaled to bytes. Implemented in fileinfo_unix.go /
// fileinfo_other.go since it needs the platform Stat_t.
func (r *Real) FileDiskAllocation(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return diskAllocation(fi), nil
}

func (r *Real) Capabilities(dir string) (Capabilities, error) {
	minHole, err := r.MinHoleSize(dir)
	if err != nil {
		return Capabilities{}, err
	}

	probe, err := os.CreateTemp(dir, ".possum-capcheck-*")
	if err != nil {
		return Capabilities{}, err
	}

	probePath := probe.Name()

	defer func() {
		_ = probe.Close()
		_ = os.Remove(probePath)
	}()

	cloneSupported := true
	clonePath := probePath + ".clone"

	if err := r.CloneFile(probePath, clonePath); err != nil {
		cloneSupported = false
	} else {
		_ = os.Remove(clonePath)
	}

	return Capabilities{
		SupportsSparse:       minHole > 0,
		SupportsBlockClone:   cloneSupported,
		WholeFileOnlyLocking: wholeFileOnlyLocking(),
	}, nil
}

var _ FS = (*Real)(nil)
