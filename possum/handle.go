package possum

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/reflinkdb/possum/internal/manifest"
	"github.com/reflinkdb/possum/internal/possumfs"
)

// exclusiveFilePoolSize bounds how many idle exclusiveFiles a Handle keeps
// warm for reuse between writers, rather than letting every writer mint or
// rescan the directory from scratch.
const exclusiveFilePoolSize = 8

// Config configures [New]. Only Dir is required; the remaining fields
// exist for tests to inject a [possumfs.Chaos] decorator or override
// concurrency knobs without touching production defaults.
type Config struct {
	// Dir is the directory holding the manifest and values files. Created
	// if it doesn't already exist.
	Dir string
	// FS overrides the filesystem implementation. Defaults to
	// [possumfs.NewReal]; tests substitute a [possumfs.Chaos] decorator.
	FS possumfs.FS
	// ExclusiveFilePoolSize overrides exclusiveFilePoolSize. Zero means
	// the default.
	ExclusiveFilePoolSize int
}

// Handle is the store's entry point: one per open directory, owning the
// manifest store, the pool of exclusive values files writers append to,
// the per-file_id clone cache readers borrow from, and the background
// reclaimer goroutine.
//
// Safe for concurrent use. Readers and writers run on caller goroutines;
// the manifest [internal/manifest.Store] serializes write transactions
// internally.
type Handle struct {
	ctx context.Context
	dir string
	fs  possumfs.FS

	manifest  *manifest.Store
	files     *exclusiveFiles
	clones    *cloneCache
	reclaimer *reclaimer

	limitsMu sync.RWMutex
	lim      Limits

	closed atomic.Bool
}

// New opens (creating if necessary) a possum store at cfg.Dir.
//
// Reopening a directory that still has a populated manifest and values
// files is always safe: the manifest is authoritative, and any
// exclusive-lock file left over from a crashed writer is simply unlocked
// and reused. Bytes a crashed writer appended past its last commit are not
// truncated on reopen: no key row refers to them, the reused file takes its
// current end as its committed offset, and new values are appended after
// them.
func New(ctx context.Context, cfg Config) (*Handle, error) {
	if ctx == nil {
		return nil, errors.New("possum: nil context")
	}

	if cfg.Dir == "" {
		return nil, errors.New("possum: Dir is required")
	}

	fs := cfg.FS
	if fs == nil {
		fs = possumfs.NewReal()
	}

	if err := fs.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: cfg.Dir, Err: err}
	}

	store, err := manifest.Open(ctx, cfg.Dir)
	if err != nil {
		return nil, &ManifestError{Op: "open", Err: err}
	}

	lim, err := loadLimits(cfg.Dir)
	if err != nil {
		_ = store.Close()

		return nil, err
	}

	poolSize := cfg.ExclusiveFilePoolSize
	if poolSize <= 0 {
		poolSize = exclusiveFilePoolSize
	}

	h := &Handle{
		ctx:      ctx,
		dir:      cfg.Dir,
		fs:       fs,
		manifest: store,
		files:    newExclusiveFiles(fs, cfg.Dir, poolSize),
		clones:   newCloneCache(fs),
		lim:      lim,
	}

	h.reclaimer = newReclaimer(h)
	h.reclaimer.start()

	return h, nil
}

func (h *Handle) limits() Limits {
	h.limitsMu.RLock()
	defer h.limitsMu.RUnlock()

	return h.lim
}

// SetInstanceLimits replaces the limits enforced on future writes and
// persists them to this directory's config marker so they survive a
// reopen.
func (h *Handle) SetInstanceLimits(lim Limits) error {
	if h.closed.Load() {
		return ErrClosed
	}

	if err := saveLimits(h.dir, lim); err != nil {
		return err
	}

	h.limitsMu.Lock()
	h.lim = lim
	h.limitsMu.Unlock()

	return nil
}

// NewWriter begins a new batch of writes against h, visible to readers
// only once [BatchWriter.Commit] succeeds.
func (h *Handle) NewWriter() (*BatchWriter, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	return &BatchWriter{handle: h}, nil
}

// Read begins a new read transaction against h. Keys touched via
// [Reader.Add] accumulate into a read set; [Reader.Begin] materializes a
// [Snapshot] that holds those values stable even as writers continue to
// append and commit.
func (h *Handle) Read() (*Reader, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	tx, err := h.manifest.BeginRead(h.ctx)
	if err != nil {
		return nil, &ManifestError{Op: "begin read", Err: err}
	}

	return &Reader{handle: h, tx: tx, reads: newReadSet()}, nil
}

// ReadSingle is a convenience wrapper reading exactly one key's value in
// full, equivalent to Read, Add, Begin, Value, View in sequence.
func (h *Handle) ReadSingle(key []byte) ([]byte, error) {
	r, err := h.Read()
	if err != nil {
		return nil, err
	}

	v, err := r.Add(key)
	if err != nil {
		_ = r.Rollback()

		return nil, err
	}

	snap, err := r.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = snap.Close() }()

	var out []byte

	err = snap.Value(v).View(func(b []byte) error {
		out = append([]byte(nil), b...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// SingleWriteFrom is a convenience wrapper writing exactly one key in its
// own batch, equivalent to NewWriter, NewValue, CopyFrom, StageWrite,
// Commit in sequence.
func (h *Handle) SingleWriteFrom(key []byte, r interface {
	Read(p []byte) (int, error)
}) (manifest.PostCommit, error) {
	w, err := h.NewWriter()
	if err != nil {
		return manifest.PostCommit{}, err
	}
	defer func() { _ = w.Close() }()

	vb, err := w.NewValue()
	if err != nil {
		return manifest.PostCommit{}, err
	}

	if _, err := vb.CopyFrom(readerFunc(r.Read)); err != nil {
		return manifest.PostCommit{}, err
	}

	if err := w.StageWrite(key, vb); err != nil {
		return manifest.PostCommit{}, err
	}

	return w.Commit()
}

// readerFunc adapts a bare Read method to io.Reader.
type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// SingleDelete removes key, orphaning its extent for reclamation. Returns
// [ErrNoSuchKey] if key has no row.
func (h *Handle) SingleDelete(key []byte) error {
	w, err := h.NewWriter()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	tx, err := h.manifest.BeginWrite(h.ctx)
	if err != nil {
		return &ManifestError{Op: "begin write", Err: err}
	}

	loc, ok, err := tx.DeleteKey(key)
	if err != nil {
		_ = tx.Rollback()

		return &ManifestError{Op: "delete key", Err: err}
	}

	if !ok {
		_ = tx.Rollback()

		return ErrNoSuchKey
	}

	if loc.ValueLength != 0 {
		if err := tx.EnqueueOrphanExtent(manifest.Extent{FileID: loc.FileID, Offset: loc.FileOffset, Length: loc.ValueLength}); err != nil {
			_ = tx.Rollback()

			return &ManifestError{Op: "enqueue orphan extent", Err: err}
		}
	}

	post, err := tx.Commit()
	if err != nil {
		return &ManifestError{Op: "commit", Err: err}
	}

	h.clones.invalidate(fileID(loc.FileID))
	h.reclaimer.enqueue(post.OrphanExtents)

	return nil
}

// ListItems returns every key/location pair whose key has prefix.
func (h *Handle) ListItems(prefix []byte) ([]manifest.Item, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	tx, err := h.manifest.BeginRead(h.ctx)
	if err != nil {
		return nil, &ManifestError{Op: "begin read", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	items, err := tx.ListItems(prefix)
	if err != nil {
		return nil, &ManifestError{Op: "list items", Err: err}
	}

	return items, nil
}

// MovePrefix rewrites every key beginning with oldPrefix to begin with
// newPrefix instead, a zero-copy bulk rename over the manifest alone.
func (h *Handle) MovePrefix(oldPrefix, newPrefix []byte) (int64, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	tx, err := h.manifest.BeginWrite(h.ctx)
	if err != nil {
		return 0, &ManifestError{Op: "begin write", Err: err}
	}

	n, err := tx.MovePrefix(oldPrefix, newPrefix)
	if err != nil {
		_ = tx.Rollback()

		return 0, &ManifestError{Op: "move prefix", Err: err}
	}

	if _, err := tx.Commit(); err != nil {
		return 0, &ManifestError{Op: "commit", Err: err}
	}

	return n, nil
}

// DeletePrefix deletes every key beginning with prefix, enqueueing each
// one's extent for reclamation.
func (h *Handle) DeletePrefix(prefix []byte) (int64, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	tx, err := h.manifest.BeginWrite(h.ctx)
	if err != nil {
		return 0, &ManifestError{Op: "begin write", Err: err}
	}

	n, err := tx.DeletePrefix(prefix)
	if err != nil {
		_ = tx.Rollback()

		return 0, &ManifestError{Op: "delete prefix", Err: err}
	}

	post, err := tx.Commit()
	if err != nil {
		return 0, &ManifestError{Op: "commit", Err: err}
	}

	h.reclaimer.enqueue(post.OrphanExtents)

	return n, nil
}

// RenameItem atomically retargets oldKey's location onto newKey, deleting
// oldKey and orphaning whatever newKey previously pointed at. Returns
// [ErrNoSuchKey] if oldKey has no row.
func (h *Handle) RenameItem(oldKey, newKey []byte) error {
	if h.closed.Load() {
		return ErrClosed
	}

	tx, err := h.manifest.BeginWrite(h.ctx)
	if err != nil {
		return &ManifestError{Op: "begin write", Err: err}
	}

	loc, ok, err := tx.DeleteKey(oldKey)
	if err != nil {
		_ = tx.Rollback()

		return &ManifestError{Op: "delete key", Err: err}
	}

	if !ok {
		_ = tx.Rollback()

		return ErrNoSuchKey
	}

	displaced, displacedOK, err := tx.DeleteKey(newKey)
	if err != nil {
		_ = tx.Rollback()

		return &ManifestError{Op: "delete key", Err: err}
	}

	if displacedOK && displaced.ValueLength != 0 {
		if err := tx.EnqueueOrphanExtent(manifest.Extent{FileID: displaced.FileID, Offset: displaced.FileOffset, Length: displaced.ValueLength}); err != nil {
			_ = tx.Rollback()

			return &ManifestError{Op: "enqueue orphan extent", Err: err}
		}
	}

	if err := tx.UpsertKey(newKey, loc); err != nil {
		_ = tx.Rollback()

		return &ManifestError{Op: "upsert key", Err: err}
	}

	post, err := tx.Commit()
	if err != nil {
		return &ManifestError{Op: "commit", Err: err}
	}

	h.reclaimer.enqueue(post.OrphanExtents)

	return nil
}

// CleanupSnapshots removes any leftover per-snapshot temp directories
// from a previous process that crashed mid-snapshot, identified by the
// snapshotDirNamePrefix classification [WalkDir] also uses.
func (h *Handle) CleanupSnapshots() error {
	if h.closed.Load() {
		return ErrClosed
	}

	entries, err := h.fs.ReadDir(h.dir)
	if err != nil {
		return &IOError{Op: "readdir", Path: h.dir, Err: err}
	}

	var errs []error

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		if !strings.HasPrefix(entry.Name(), snapshotDirNamePrefix) {
			continue
		}

		path := filepath.Join(h.dir, entry.Name())
		if err := h.fs.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

// BlockSize returns the minimum alignment at which this store's directory
// can represent a hole, used by callers sizing writes to avoid
// fragmentation the reclaimer can't punch cleanly.
func (h *Handle) BlockSize() (int64, error) {
	return h.fs.MinHoleSize(h.dir)
}

// DirSupportsFileCloning reports whether this store's directory sits on a
// filesystem that supports block-reflink cloning, the fast path
// [Reader.Begin] and [BatchWriter.CloneFD] both prefer.
func (h *Handle) DirSupportsFileCloning() (bool, error) {
	caps, err := h.fs.Capabilities(h.dir)
	if err != nil {
		return false, err
	}

	return caps.SupportsBlockClone, nil
}

// Close stops the reclaimer, closes every pooled exclusive file and
// cached clone, and closes the manifest. Safe to call more than once.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.reclaimer.stop()
	h.files.closeAll()
	h.clones.closeAll()

	if err := h.manifest.Close(); err != nil {
		return &ManifestError{Op: "close", Err: err}
	}

	return nil
}
