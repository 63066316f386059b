package possum

import (
	"errors"
	"fmt"
	"io"

	"github.com/reflinkdb/possum/internal/manifest"
	"github.com/reflinkdb/possum/internal/possumfs"
)

// pendingWrite records one staged write: a key destined for location.
// Writes staged by StageWrite and by RenameValue are recorded the same way.
type pendingWrite struct {
	key      []byte
	location manifest.Location
}

// BatchWriter accumulates a batch of writes against one [Handle], made
// visible atomically on [BatchWriter.Commit]. Holds at most one
// exclusiveFile, lazily acquired on first [BatchWriter.NewValue].
//
// A BatchWriter must be closed: if Commit is never called, Close (or a
// deferred Close after Commit, which becomes a no-op) rolls every
// exclusiveFile it touched back to its last committed offset, discarding
// any bytes written but never staged, or staged but never committed.
type BatchWriter struct {
	handle    *Handle
	exclusive *exclusiveFile
	pending   []pendingWrite
	committed bool
	closed    bool
}

// NewValue begins writing a new value into this batch, returning a
// [ValueBuilder] positioned at the writer's current values file tail.
func (w *BatchWriter) NewValue() (*ValueBuilder, error) {
	if w.exclusive == nil {
		ef, err := w.handle.files.acquire()
		if err != nil {
			return nil, err
		}

		w.exclusive = ef
	}

	offset, err := w.exclusive.nextWriteOffset()
	if err != nil {
		return nil, err
	}

	return &ValueBuilder{writer: w, fileID: w.exclusive.id, offset: offset}, nil
}

// StageWrite records key as pointing at value's location once the batch
// commits. Not yet visible to readers.
func (w *BatchWriter) StageWrite(key []byte, value *ValueBuilder) error {
	if value.writer != w {
		return errors.New("possum: value was built by a different writer")
	}

	w.pending = append(w.pending, pendingWrite{
		key: append([]byte(nil), key...),
		location: manifest.Location{
			FileID:      uint32(value.fileID),
			FileOffset:  value.offset,
			ValueLength: value.length,
		},
	})

	return nil
}

// CloneFD builds a value whose bytes come from an existing file at
// donorPath rather than from the caller. When [donorOffset, donorOffset+
// length) covers the donor's entire content, it's reflink-cloned into a
// brand new, dedicated values file via [possumfs.FS.CloneFile] — no bytes
// are copied.
// Any narrower range, or a filesystem that returns
// [possumfs.ErrUnsupportedFilesystem], falls back to a streamed copy
// appended to the writer's current exclusive file. The returned
// [ValueBuilder] is not staged; pass it to [BatchWriter.StageWrite].
func (w *BatchWriter) CloneFD(donorPath string, donorOffset, length int64) (*ValueBuilder, error) {
	fs := w.handle.fs

	if donorOffset == 0 {
		if fi, err := fs.Stat(donorPath); err == nil && fi.Size() == length {
			if vb, err := w.cloneWholeFile(donorPath, length); err == nil {
				return vb, nil
			} else if !errors.Is(err, possumfs.ErrUnsupportedFilesystem) {
				return nil, err
			}
		}
	}

	return w.streamedCloneFallback(donorPath, donorOffset, length)
}

func (w *BatchWriter) cloneWholeFile(donorPath string, length int64) (*ValueBuilder, error) {
	id, err := randomFileID()
	if err != nil {
		return nil, err
	}

	dstPath := id.valuesFilePath(w.handle.dir)

	if err := w.handle.fs.CloneFile(donorPath, dstPath); err != nil {
		return nil, err
	}

	return &ValueBuilder{writer: w, fileID: id, offset: 0, length: length, standalone: true}, nil
}

func (w *BatchWriter) streamedCloneFallback(donorPath string, donorOffset, length int64) (*ValueBuilder, error) {
	donor, err := w.handle.fs.Open(donorPath)
	if err != nil {
		return nil, &IOError{Op: "open clone donor", Path: donorPath, Err: err}
	}
	defer func() { _ = donor.Close() }()

	if _, err := donor.Seek(donorOffset, 0); err != nil {
		return nil, &IOError{Op: "seek clone donor", Path: donorPath, Err: err}
	}

	vb, err := w.NewValue()
	if err != nil {
		return nil, err
	}

	if _, err := vb.CopyFrom(io.LimitReader(donor, length)); err != nil {
		return nil, err
	}

	return vb, nil
}

// RenameValue stages a zero-copy rename: commit will point newKey at
// existing, orphaning whatever newKey previously held.
func (w *BatchWriter) RenameValue(existing manifest.Location, newKey []byte) error {
	w.pending = append(w.pending, pendingWrite{
		key:      append([]byte(nil), newKey...),
		location: existing,
	})

	return nil
}

// Commit persists every staged write atomically in one immediate manifest
// transaction: for each staged key, the previous row (if any) is deleted
// and its location enqueued as an orphan extent, then the new row is
// inserted. On success, the exclusive file's committed offset advances to
// its current tail and it's released back to the pool.
func (w *BatchWriter) Commit() (manifest.PostCommit, error) {
	if w.closed {
		return manifest.PostCommit{}, errors.New("possum: writer already closed")
	}

	if len(w.pending) == 0 {
		w.committed = true

		return manifest.PostCommit{}, w.Close()
	}

	if w.handle.limits().MaxValueLengthSum > 0 {
		if err := w.checkValueLengthLimit(); err != nil {
			return manifest.PostCommit{}, err
		}
	}

	tx, err := w.handle.manifest.BeginWrite(w.handle.ctx)
	if err != nil {
		return manifest.PostCommit{}, &ManifestError{Op: "begin write", Err: err}
	}

	alteredFiles := make(map[fileID]struct{})

	for _, pw := range w.pending {
		existing, ok, err := tx.DeleteKey(pw.key)
		if err != nil {
			_ = tx.Rollback()

			return manifest.PostCommit{}, &ManifestError{Op: "delete key", Err: err}
		}

		if ok {
			ext := manifest.Extent{FileID: existing.FileID, Offset: existing.FileOffset, Length: existing.ValueLength}
			if err := tx.EnqueueOrphanExtent(ext); err != nil {
				_ = tx.Rollback()

				return manifest.PostCommit{}, &ManifestError{Op: "enqueue orphan extent", Err: err}
			}

			if existing.ValueLength != 0 {
				alteredFiles[fileID(existing.FileID)] = struct{}{}
			}
		}

		if err := tx.UpsertKey(pw.key, pw.location); err != nil {
			_ = tx.Rollback()

			return manifest.PostCommit{}, &ManifestError{Op: "upsert key", Err: err}
		}

		if pw.location.ValueLength != 0 {
			alteredFiles[fileID(pw.location.FileID)] = struct{}{}
		}
	}

	post, err := tx.Commit()
	if err != nil {
		return manifest.PostCommit{}, &ManifestError{Op: "commit", Err: err}
	}

	w.pending = nil
	w.committed = true

	for id := range alteredFiles {
		w.handle.clones.invalidate(id)
	}

	if w.exclusive != nil {
		if err := w.exclusive.markCommitted(); err != nil {
			return post, &IOError{Op: "mark committed", Path: w.exclusive.id.valuesFileName(), Err: err}
		}
	}

	w.handle.reclaimer.enqueue(post.OrphanExtents)

	return post, w.Close()
}

func (w *BatchWriter) checkValueLengthLimit() error {
	var sum int64

	for _, pw := range w.pending {
		sum += pw.location.ValueLength
	}

	if sum > w.handle.limits().MaxValueLengthSum {
		return fmt.Errorf("%w: staged writes sum to %d bytes, limit is %d", ErrLimitExceeded, sum, w.handle.limits().MaxValueLengthSum)
	}

	return nil
}

// Close releases resources held by w. If Commit was never called, any
// bytes written to the exclusive file since the last commit are rolled
// back by truncation and every staged write is discarded. Safe to call
// after Commit (no-op); safe to call multiple times.
func (w *BatchWriter) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	if w.exclusive == nil {
		return nil
	}

	defer w.handle.files.release(w.exclusive)

	if w.committed {
		return nil
	}

	if err := w.exclusive.revertToOffset(w.exclusive.lastCommittedOffset); err != nil {
		return &IOError{Op: "rollback", Path: w.exclusive.id.valuesFileName(), Err: err}
	}

	w.pending = nil

	return nil
}

// ValueBuilder accumulates bytes for one value before it's staged into a
// [BatchWriter]'s batch.
type ValueBuilder struct {
	writer *BatchWriter
	fileID fileID
	offset int64
	length int64
	// standalone is true for a value produced by CloneFD's whole-file
	// reflink path: its bytes live in their own dedicated values file,
	// not the writer's shared exclusive file, so Write/CopyFrom don't
	// apply to it.
	standalone bool
}

// Write appends p to the value, at the writer's current values file tail.
func (vb *ValueBuilder) Write(p []byte) (int, error) {
	if vb.standalone {
		return 0, errors.New("possum: cannot write into a value produced by CloneFD's whole-file clone")
	}

	n, err := vb.writer.exclusive.file.Write(p)
	vb.length += int64(n)

	if err != nil {
		return n, &IOError{Op: "write", Path: vb.writer.exclusive.id.valuesFileName(), Err: err}
	}

	return n, nil
}

// CopyFrom appends every byte read from r to the value.
func (vb *ValueBuilder) CopyFrom(r io.Reader) (int64, error) {
	if vb.standalone {
		return 0, errors.New("possum: cannot write into a value produced by CloneFD's whole-file clone")
	}

	n, err := io.Copy(vb.writer.exclusive.file, r)
	vb.length += n

	if err != nil {
		return n, &IOError{Op: "copy", Path: vb.writer.exclusive.id.valuesFileName(), Err: err}
	}

	return n, nil
}

// Length returns the number of bytes written to this value so far.
func (vb *ValueBuilder) Length() int64 { return vb.length }

// Location returns the location this value currently occupies, usable
// with [BatchWriter.RenameValue] or for inspection before staging.
func (vb *ValueBuilder) Location() manifest.Location {
	return manifest.Location{FileID: uint32(vb.fileID), FileOffset: vb.offset, ValueLength: vb.length}
}
