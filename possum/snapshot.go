package possum

import (
	"fmt"
	"io"

	"github.com/reflinkdb/possum/internal/manifest"
)

// Snapshot holds every value a [Reader] touched stable against concurrent
// writers, backed by the file clones or segment locks [Reader.Begin]
// acquired. Those clones live in the Handle's shared cache and outlive any
// one Snapshot, so Close only needs to drop this Snapshot's own reference;
// the cache itself releases a clone's file and temp directory once a
// writer invalidates it.
type Snapshot struct {
	handle *Handle
	clones map[fileID]*fileClone
	closed bool
}

// Value returns a [SnapshotValue] for v, usable until s is closed.
func (s *Snapshot) Value(v Value) *SnapshotValue {
	return &SnapshotValue{snapshot: s, location: v.location}
}

// Close releases this Snapshot's reference to its clones. Safe to call
// more than once.
func (s *Snapshot) Close() error {
	s.closed = true

	return nil
}

func (s *Snapshot) clone(id fileID) (*fileClone, error) {
	fc, ok := s.clones[id]
	if !ok {
		return nil, fmt.Errorf("possum: snapshot has no clone for file id %s", id.valuesFileName())
	}

	return fc, nil
}

// SnapshotValue is one value within a [Snapshot], addressable by byte
// range without ever loading it in full unless the caller asks to.
type SnapshotValue struct {
	snapshot *Snapshot
	location manifest.Location
}

// Length returns the value's byte length.
func (sv *SnapshotValue) Length() int64 { return sv.location.ValueLength }

// View reads the value in full and passes it to fn. The slice is only
// valid for the duration of the call.
func (sv *SnapshotValue) View(fn func([]byte) error) error {
	if sv.location.ValueLength == 0 {
		return fn(nil)
	}

	fc, err := sv.snapshot.clone(fileID(sv.location.FileID))
	if err != nil {
		return err
	}

	buf := make([]byte, sv.location.ValueLength)

	if _, err := fc.ReadAt(buf, sv.location.FileOffset); err != nil {
		return &IOError{Op: "read value", Path: fileID(sv.location.FileID).valuesFileName(), Err: err}
	}

	return fn(buf)
}

// ReadAt reads up to len(buf) bytes starting at offset within the value.
// Unlike [io.ReaderAt], a read running past the value's end is clamped and
// returns the shorter count with a nil error; an offset equal to the
// value's length returns (0, nil).
func (sv *SnapshotValue) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 || offset > sv.location.ValueLength {
		return 0, fmt.Errorf("possum: offset %d out of range for value of length %d", offset, sv.location.ValueLength)
	}

	if offset+int64(len(buf)) > sv.location.ValueLength {
		buf = buf[:sv.location.ValueLength-offset]
	}

	if len(buf) == 0 {
		return 0, nil
	}

	fc, err := sv.snapshot.clone(fileID(sv.location.FileID))
	if err != nil {
		return 0, err
	}

	return fc.ReadAt(buf, sv.location.FileOffset+offset)
}

// NewReader returns an [io.Reader] over the value's full contents, backed
// directly by its clone without an intervening copy.
func (sv *SnapshotValue) NewReader() io.Reader {
	return io.NewSectionReader(valueReaderAt{sv}, 0, sv.location.ValueLength)
}

// valueReaderAt adapts SnapshotValue.ReadAt to io.ReaderAt for
// [io.NewSectionReader].
type valueReaderAt struct {
	sv *SnapshotValue
}

func (v valueReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := v.sv.ReadAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}

	return n, err
}
