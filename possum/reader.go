package possum

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/reflinkdb/possum/internal/manifest"
	"github.com/reflinkdb/possum/internal/possumfs"
)

// segmentLockAttempts/segmentLockBackoff bound the cooperative retry a
// Reader performs when a live-file segment lock would block, since
// [possumfs.FS.LockSegment] itself is a single, non-blocking attempt and
// never an indefinite kernel-blocking wait.
const (
	segmentLockAttempts = 20
	segmentLockBackoff  = 5 * time.Millisecond
)

// Value identifies one value a [Reader] has touched via [Reader.Add],
// opaque until handed to [Snapshot.Value].
type Value struct {
	location manifest.Location
}

// Length returns the value's byte length.
func (v Value) Length() int64 { return v.location.ValueLength }

// LastUsed returns the wall-clock instant [Reader.Add] bumped this value's
// last_used column to, millisecond resolution.
func (v Value) LastUsed() time.Time { return time.UnixMilli(v.location.LastUsed) }

// Reader accumulates a read set against one [Handle]: every key touched
// via [Reader.Add] is recorded, and [Reader.Begin] materializes a
// [Snapshot] holding all of their values stable.
type Reader struct {
	handle *Handle
	tx     *manifest.ReadTx
	reads  *readSet
	done   bool
}

// Add touches key, recording its extent in the read set and returning a
// [Value] usable with a [Snapshot] once Begin is called. Returns
// [ErrNoSuchKey] if key has no row.
func (r *Reader) Add(key []byte) (Value, error) {
	if r.done {
		return Value{}, errors.New("possum: reader already finished")
	}

	loc, ok, err := r.tx.TouchForRead(key)
	if err != nil {
		return Value{}, &ManifestError{Op: "touch for read", Err: err}
	}

	if !ok {
		return Value{}, ErrNoSuchKey
	}

	if loc.ValueLength != 0 {
		r.reads.add(fileID(loc.FileID), loc.FileOffset, loc.ValueLength)
	}

	return Value{location: loc}, nil
}

// ListItems returns every key/location pair whose key has prefix, without
// touching last_used or affecting the read set.
func (r *Reader) ListItems(prefix []byte) ([]manifest.Item, error) {
	items, err := r.tx.ListItems(prefix)
	if err != nil {
		return nil, &ManifestError{Op: "list items", Err: err}
	}

	return items, nil
}

// Rollback discards the read transaction without materializing a
// Snapshot. Safe to call after Begin (no-op).
func (r *Reader) Rollback() error {
	if r.done {
		return nil
	}

	r.done = true

	if err := r.tx.Rollback(); err != nil {
		return &ManifestError{Op: "rollback read tx", Err: err}
	}

	return nil
}

// Begin materializes a [Snapshot] covering every value touched via Add,
// then commits the read transaction. The manifest commit happens only
// after every file clone or segment lock has been taken, so a concurrent
// writer can never retire an extent between the touch and the lock.
func (r *Reader) Begin() (*Snapshot, error) {
	if r.done {
		return nil, errors.New("possum: reader already finished")
	}

	supportsClone, err := r.handle.DirSupportsFileCloning()
	if err != nil {
		_ = r.tx.Rollback()

		return nil, err
	}

	clones := make(map[fileID]*fileClone, len(r.reads.byFile))

	for _, id := range r.reads.fileIDs() {
		extents := r.reads.extents(id)
		minEnd := r.reads.maxEnd(id)

		fc, err := r.handle.clones.get(id, extents, minEnd, func() (*fileClone, error) {
			return r.acquireClone(id, extents, supportsClone)
		}, r.ensureLocked)
		if err != nil {
			_ = r.tx.Rollback()

			return nil, err
		}

		clones[id] = fc
	}

	r.done = true

	if err := r.tx.Commit(); err != nil {
		return nil, &ManifestError{Op: "commit read tx", Err: err}
	}

	return &Snapshot{handle: r.handle, clones: clones}, nil
}

func (r *Reader) acquireClone(id fileID, extents []readExtent, supportsClone bool) (*fileClone, error) {
	if supportsClone {
		fc, err := r.cloneWholeFile(id)
		if err == nil {
			return fc, nil
		}

		if !errors.Is(err, possumfs.ErrUnsupportedFilesystem) {
			return nil, err
		}
	}

	return r.lockLiveFile(id, extents)
}

func (r *Reader) cloneWholeFile(id fileID) (*fileClone, error) {
	tempDir, err := r.snapshotTempDir()
	if err != nil {
		return nil, err
	}

	srcPath := id.valuesFilePath(r.handle.dir)
	dstPath := id.valuesFilePath(tempDir)

	if err := r.handle.fs.CloneFile(srcPath, dstPath); err != nil {
		return nil, err
	}

	f, err := r.handle.fs.Open(dstPath)
	if err != nil {
		return nil, &IOError{Op: "open clone", Path: dstPath, Err: err}
	}

	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()

		return nil, &IOError{Op: "seek clone", Path: dstPath, Err: err}
	}

	return &fileClone{file: f, length: length, cloned: true, tempDir: tempDir}, nil
}

// snapshotTempDir returns a fresh per-call temp directory under the store
// directory, named with snapshotDirNamePrefix so [Handle.WalkDir] and
// [Handle.CleanupSnapshots] recognize it.
func (r *Reader) snapshotTempDir() (string, error) {
	id, err := randomFileID()
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s%08x", snapshotDirNamePrefix, uint32(id))
	dir := filepath.Join(r.handle.dir, name)

	if err := r.handle.fs.MkdirAll(dir, 0o700); err != nil {
		return "", &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	return dir, nil
}

func (r *Reader) lockLiveFile(id fileID, extents []readExtent) (*fileClone, error) {
	path := id.valuesFilePath(r.handle.dir)

	f, err := r.handle.fs.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}

	caps, err := r.handle.fs.Capabilities(r.handle.dir)
	if err != nil {
		_ = f.Close()

		return nil, err
	}

	wholeFileLocked := caps.WholeFileOnlyLocking

	if wholeFileLocked {
		if err := r.lockRangeWithBackoff(f, 0, 0); err != nil {
			_ = f.Close()

			return nil, err
		}
	} else {
		for _, ext := range extents {
			if err := r.lockRangeWithBackoff(f, ext.offset, ext.length); err != nil {
				_ = f.Close()

				return nil, err
			}
		}
	}

	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()

		return nil, &IOError{Op: "seek", Path: path, Err: err}
	}

	return &fileClone{file: f, length: length, cloned: false, wholeFileLocked: wholeFileLocked, lockedExtents: extents}, nil
}

// ensureLocked takes a shared segment lock for each extent in missing on
// an already-cached live-file clone being reused by this Reader for
// byte ranges an earlier reader sharing the entry never locked.
func (r *Reader) ensureLocked(fc *fileClone, missing []readExtent) error {
	for _, ext := range missing {
		if err := r.lockRangeWithBackoff(fc.file, ext.offset, ext.length); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) lockRangeWithBackoff(f possumfs.File, offset, length int64) error {
	backoff := segmentLockBackoff

	for attempt := 0; attempt < segmentLockAttempts; attempt++ {
		ok, err := r.handle.fs.LockSegment(f, possumfs.LockShared, offset, length)
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		time.Sleep(backoff)

		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}

	return fmt.Errorf("possum: timed out acquiring shared lock on range [%d, %d)", offset, offset+length)
}
