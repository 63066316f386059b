package possum

import (
	"fmt"
	"sync"

	"github.com/reflinkdb/possum/internal/possumfs"
)

// fileClone is a stable, lockable view of one values file's bytes: either
// a reflink clone living in a per-snapshot temp directory, or the live
// values file itself with the requested extents segment-locked. Either
// way its length never shrinks out from under a reader holding it.
type fileClone struct {
	mu   sync.Mutex
	file possumfs.File
	// length is the file's size at the time this clone/lock was taken.
	// Never updated afterwards; see the length check in cloneCache.reuse.
	length int64
	// cloned is true when file is a reflink clone (so its lock covers the
	// whole clone and isn't tied to specific extents); false when file is
	// the live values file under segment locks.
	cloned bool
	// wholeFileLocked is true when, despite !cloned, the lock taken on
	// file already covers [0, EOF) (possumfs.Capabilities.WholeFileOnlyLocking),
	// so any later reuse is safe regardless of which extents it requests.
	wholeFileLocked bool
	// lockedExtents records which extents of the live file are locked,
	// only meaningful when !cloned && !wholeFileLocked, so a later reuse
	// can tell whether it needs to take additional locks for new extents
	// before handing the entry to a different Reader.
	lockedExtents []readExtent
	// tempDir is the per-snapshot directory file lives in, only set when
	// cloned is true. Removed by cloneCache once this entry is invalidated.
	tempDir string
}

func (fc *fileClone) ReadAt(buf []byte, offset int64) (int, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return readAtFile(fc.file, buf, offset)
}

func readAtFile(f possumfs.File, buf []byte, offset int64) (int, error) {
	type readerAt interface {
		ReadAt(p []byte, off int64) (int, error)
	}

	if ra, ok := f.(readerAt); ok {
		return ra.ReadAt(buf, offset)
	}

	if _, err := f.Seek(offset, 0); err != nil {
		return 0, err
	}

	return f.Read(buf)
}

func (fc *fileClone) Close() error {
	return fc.file.Close()
}

// cloneCache is the Handle's per-file_id cache of fileClones, reused
// across Snapshots until a writer invalidates the entry for a file_id it
// just mutated.
type cloneCache struct {
	fs possumfs.FS

	mu      sync.Mutex
	entries map[fileID]*fileClone
}

func newCloneCache(fs possumfs.FS) *cloneCache {
	return &cloneCache{fs: fs, entries: make(map[fileID]*fileClone)}
}

// invalidate drops id's cached entry, if any, closing its underlying file
// and removing its temp directory (if it was a clone). Called after a
// commit alters id, and after the reclaimer punches a hole in it.
func (c *cloneCache) invalidate(id fileID) {
	c.mu.Lock()
	entry, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()

	if ok {
		c.release(entry)
	}
}

func (c *cloneCache) release(entry *fileClone) {
	_ = entry.Close()

	if entry.tempDir != "" {
		_ = c.fs.RemoveAll(entry.tempDir)
	}
}

// get returns a fileClone for id covering at least through minEnd and
// every extent in extents, acquiring a fresh one via acquire if nothing
// cached is long enough. Reuse of a cached, non-cloned entry whose lock
// doesn't already cover every requested extent calls ensureLocked to
// take the missing segment locks before handing the entry back, so a
// reader is never handed an extent nothing actually locked.
func (c *cloneCache) get(
	id fileID,
	extents []readExtent,
	minEnd int64,
	acquire func() (*fileClone, error),
	ensureLocked func(fc *fileClone, missing []readExtent) error,
) (*fileClone, error) {
	c.mu.Lock()
	entry, ok := c.entries[id]
	c.mu.Unlock()

	if ok {
		reused, err := c.reuse(entry, extents, minEnd, ensureLocked)
		if err != nil {
			return nil, err
		}

		if reused {
			return entry, nil
		}
	}

	entry, err := acquire()
	if err != nil {
		return nil, fmt.Errorf("possum: acquiring file clone for file id %s: %w", fileID(id).valuesFileName(), err)
	}

	c.mu.Lock()
	c.entries[id] = entry
	c.mu.Unlock()

	return entry, nil
}

// reuse reports whether entry already covers minEnd and has every extent
// in extents locked, extending its lockedExtents via ensureLocked for
// whatever a previous reader sharing this entry never touched.
func (c *cloneCache) reuse(
	entry *fileClone,
	extents []readExtent,
	minEnd int64,
	ensureLocked func(fc *fileClone, missing []readExtent) error,
) (bool, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.length < minEnd {
		return false, nil
	}

	if entry.cloned || entry.wholeFileLocked {
		return true, nil
	}

	missing := missingExtents(extents, entry.lockedExtents)
	if len(missing) == 0 {
		return true, nil
	}

	if err := ensureLocked(entry, missing); err != nil {
		return false, err
	}

	entry.lockedExtents = append(entry.lockedExtents, missing...)

	return true, nil
}

// closeAll releases every cached entry. Called from Handle.Close.
func (c *cloneCache) closeAll() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[fileID]*fileClone)
	c.mu.Unlock()

	for _, entry := range entries {
		c.release(entry)
	}
}
