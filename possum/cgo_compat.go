//go:build possum_cgo

package possum

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"
)

// This file is the Go-side half of the opaque handle API spec.md §6
// requires the store to expose "to non-native callers": every value
// crossing the boundary (Handle, BatchWriter, ValueBuilder, Reader,
// Snapshot) is looked up by an opaque, process-local id rather than a raw
// pointer, the same shape cgo or any other FFI binding needs to hand
// callers a stable, GC-safe token. The actual cgo/C ABI boundary — header
// generation, calling convention, memory ownership across the language
// edge — is out of scope per spec.md §1; nothing below touches "C".
//
// Grounded on original_source/src/c_api/types.rs's PossumBuf/PossumStat/
// PossumItem/PossumError shapes and ext_fns/handle.rs's handle-scoped
// entry points, translated from raw-pointer Box ownership to an
// id-indexed registry, the idiomatic Go equivalent of "hand out a token,
// not a pointer" for values a foreign caller can't be trusted to free
// correctly.

// ErrorCode mirrors original_source's PossumError enum: the flat error
// taxonomy spec.md §6 requires the FFI surface to expose, since a foreign
// caller can't catch a Go error value.
type ErrorCode int

const (
	NoError ErrorCode = iota
	ErrCodeNoSuchKey
	ErrCodeSqliteError
	ErrCodeIoError
	ErrCodeAnyhowError
	ErrCodeUnsupportedFilesystem
)

// errorCode classifies err into the FFI taxonomy, matching spec.md §7's
// error design: NoSuchKey and UnsupportedFilesystem are distinguished
// because callers branch on them, ManifestError collapses to
// SqliteError (the only manifest backend this module ships), everything
// else collapses to IoError or AnyhowError.
func errorCode(err error) ErrorCode {
	switch {
	case err == nil:
		return NoError
	case errors.Is(err, ErrNoSuchKey):
		return ErrCodeNoSuchKey
	case errors.Is(err, ErrUnsupportedFilesystem):
		return ErrCodeUnsupportedFilesystem
	case errorsAsManifest(err):
		return ErrCodeSqliteError
	case errorsAsIO(err):
		return ErrCodeIoError
	default:
		return ErrCodeAnyhowError
	}
}

func errorsAsManifest(err error) bool {
	var target *ManifestError
	return errors.As(err, &target)
}

func errorsAsIO(err error) bool {
	var target *IOError
	return errors.As(err, &target)
}

// Stat mirrors original_source's PossumStat: a value's length and its
// last_used instant, the pair every "stat" style FFI entry point returns.
type Stat struct {
	LastUsed time.Time
	Size     int64
}

// Item mirrors original_source's PossumItem: a key and the Stat of the
// value it points at, the shape possum_list_items hands back as an array.
type Item struct {
	Key  []byte
	Stat Stat
}

// registry is a process-local, mutex-guarded table mapping opaque ids to
// live Go values of type T, the Go-native substitute for "cast this
// pointer back". Zero is never issued as an id so callers can use it as a
// NULL sentinel.
type registry[T any] struct {
	mu   sync.Mutex
	next uint64
	rows map[uint64]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{rows: make(map[uint64]T)}
}

func (r *registry[T]) put(v T) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	r.rows[id] = v

	return id
}

func (r *registry[T]) get(id uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.rows[id]

	return v, ok
}

func (r *registry[T]) remove(id uint64) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.rows[id]
	delete(r.rows, id)

	return v, ok
}

// handles, writers, values, readers and snapshots are the five registries
// backing the FFI surface's opaque ids — one per Go type a foreign caller
// can hold a live reference to at once.
var (
	handles   = newRegistry[*Handle]()
	writers   = newRegistry[*BatchWriter]()
	values    = newRegistry[*ValueBuilder]()
	readers   = newRegistry[*Reader]()
	snapshots = newRegistry[*ffiSnapshot]()
)

// ffiSnapshot wraps a Snapshot so a foreign caller addresses its values by
// the opaque id reader_add minted (see pendingValues) rather than by the
// Go Value struct a native caller could just hold onto.
type ffiSnapshot struct {
	snapshot *Snapshot
}

// ffiNoHandle is the sentinel id possum_new returns on error, the
// id-table equivalent of returning NULL.
const ffiNoHandle uint64 = 0

// NewHandle opens a store at dir and returns an opaque id for it, or
// (ffiNoHandle, code) on error — the Go-side body of possum_new.
func NewHandle(dir string) (uint64, ErrorCode) {
	h, err := New(context.Background(), Config{Dir: dir})
	if err != nil {
		return ffiNoHandle, errorCode(err)
	}

	return handles.put(h), NoError
}

// DropHandle closes and forgets the Handle behind id — the Go-side body
// of possum_drop. Per spec.md §6, callers must have released every
// outstanding reader/writer/snapshot derived from id first.
func DropHandle(id uint64) ErrorCode {
	h, ok := handles.remove(id)
	if !ok {
		return ErrCodeAnyhowError
	}

	return errorCode(h.Close())
}

// sizeErrSentinel is possum_single_write_buf's "a reserved sentinel value
// indicates error" return, the same MAX-value convention
// original_source's ERR_SENTINEL uses.
const sizeErrSentinel = math.MaxUint64

// SingleWriteBuf writes value under key in its own batch and returns the
// number of bytes written, or sizeErrSentinel on error — the Go-side body
// of possum_single_write_buf.
func SingleWriteBuf(id uint64, key, value []byte) uint64 {
	h, ok := handles.get(id)
	if !ok {
		return sizeErrSentinel
	}

	src := bytesReadCloser(value)

	if _, err := h.SingleWriteFrom(key, &src); err != nil {
		return sizeErrSentinel
	}

	return uint64(len(value))
}

// bytesReadCloser adapts a byte slice to the bare Read method
// Handle.SingleWriteFrom accepts.
type bytesReadCloser []byte

func (b *bytesReadCloser) Read(p []byte) (int, error) {
	if len(*b) == 0 {
		return 0, io.EOF
	}

	n := copy(p, *b)
	*b = (*b)[n:]

	return n, nil
}

// SingleReadAt fills buf with bytes read from key's value starting at
// offset — the Go-side body of possum_single_read_at. Returns
// ErrCodeNoSuchKey if key has no row.
func SingleReadAt(id uint64, key, buf []byte, offset int64) (int, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return 0, ErrCodeAnyhowError
	}

	r, err := h.Read()
	if err != nil {
		return 0, errorCode(err)
	}

	v, err := r.Add(key)
	if err != nil {
		_ = r.Rollback()

		return 0, errorCode(err)
	}

	snap, err := r.Begin()
	if err != nil {
		return 0, errorCode(err)
	}
	defer func() { _ = snap.Close() }()

	n, err := snap.Value(v).ReadAt(buf, offset)
	if err != nil {
		return n, errorCode(err)
	}

	return n, NoError
}

// SingleDelete removes key and returns its former Stat — the Go-side body
// of possum_single_delete.
func SingleDelete(id uint64, key []byte) (Stat, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return Stat{}, ErrCodeAnyhowError
	}

	items, err := h.ListItems(key)
	if err != nil {
		return Stat{}, errorCode(err)
	}

	var stat Stat

	for _, it := range items {
		if string(it.Key) == string(key) {
			stat = Stat{LastUsed: time.UnixMilli(it.Location.LastUsed), Size: it.Location.ValueLength}
		}
	}

	if err := h.SingleDelete(key); err != nil {
		return Stat{}, errorCode(err)
	}

	return stat, NoError
}

// ListItems returns every key/Stat pair with the given prefix — the
// Go-side body of possum_list_items.
func ListItems(id uint64, prefix []byte) ([]Item, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return nil, ErrCodeAnyhowError
	}

	rows, err := h.ListItems(prefix)
	if err != nil {
		return nil, errorCode(err)
	}

	out := make([]Item, len(rows))
	for i, row := range rows {
		out[i] = Item{
			Key:  append([]byte(nil), row.Key...),
			Stat: Stat{LastUsed: time.UnixMilli(row.Location.LastUsed), Size: row.Location.ValueLength},
		}
	}

	return out, NoError
}

// NewWriter begins a batch against handle id — the Go-side body of
// possum_new_writer.
func NewWriter(id uint64) (uint64, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return ffiNoHandle, ErrCodeAnyhowError
	}

	w, err := h.NewWriter()
	if err != nil {
		return ffiNoHandle, errorCode(err)
	}

	return writers.put(w), NoError
}

// StartNewValue begins a new value within writer id — the Go-side body of
// possum_new_value or the ext_fns equivalent of "start writing bytes".
func StartNewValue(writerID uint64) (uint64, ErrorCode) {
	w, ok := writers.get(writerID)
	if !ok {
		return ffiNoHandle, ErrCodeAnyhowError
	}

	vb, err := w.NewValue()
	if err != nil {
		return ffiNoHandle, errorCode(err)
	}

	return values.put(vb), NoError
}

// ValueWriterWrite appends p to the value behind valueID.
func ValueWriterWrite(valueID uint64, p []byte) (int, ErrorCode) {
	vb, ok := values.get(valueID)
	if !ok {
		return 0, ErrCodeAnyhowError
	}

	n, err := vb.Write(p)
	if err != nil {
		return n, errorCode(err)
	}

	return n, NoError
}

// WriterStage stages the value behind valueID under key within writer
// writerID — the Go-side body of possum_writer_stage.
func WriterStage(writerID, valueID uint64, key []byte) ErrorCode {
	w, ok := writers.get(writerID)
	if !ok {
		return ErrCodeAnyhowError
	}

	vb, ok := values.remove(valueID)
	if !ok {
		return ErrCodeAnyhowError
	}

	if err := w.StageWrite(key, vb); err != nil {
		return errorCode(err)
	}

	return NoError
}

// WriterCommit commits writer id's staged batch — the Go-side body of
// possum_writer_commit.
func WriterCommit(writerID uint64) ErrorCode {
	w, ok := writers.remove(writerID)
	if !ok {
		return ErrCodeAnyhowError
	}

	_, err := w.Commit()

	return errorCode(err)
}

// ReaderNew begins a read transaction against handle id — the Go-side
// body of possum_reader_new.
func ReaderNew(id uint64) (uint64, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return ffiNoHandle, ErrCodeAnyhowError
	}

	r, err := h.Read()
	if err != nil {
		return ffiNoHandle, errorCode(err)
	}

	return readers.put(r), NoError
}

// ReaderAdd touches key within reader readerID and returns an opaque
// value id usable with ValueReadAt/ValueStat once ReaderBegin has run —
// the Go-side body of possum_reader_add.
func ReaderAdd(readerID uint64, key []byte) (uint64, ErrorCode) {
	r, ok := readers.get(readerID)
	if !ok {
		return ffiNoHandle, ErrCodeAnyhowError
	}

	v, err := r.Add(key)
	if err != nil {
		return ffiNoHandle, errorCode(err)
	}

	// The value id stays valid after ReaderBegin and is passed unchanged,
	// together with the snapshot id, to ValueReadAt.
	return pendingValues.put(pendingValue{readerID: readerID, value: v}), NoError
}

type pendingValue struct {
	readerID uint64
	value    Value
}

var pendingValues = newRegistry[pendingValue]()

// ReaderBegin materializes reader readerID's Snapshot and returns its
// opaque id — the Go-side body of possum_reader_end (the Rust API's own
// name for "finish adding, get a usable handle"). Value ids returned by
// ReaderAdd are not remapped; they are used as they are.
func ReaderBegin(readerID uint64) (uint64, ErrorCode) {
	r, ok := readers.remove(readerID)
	if !ok {
		return ffiNoHandle, ErrCodeAnyhowError
	}

	snap, err := r.Begin()
	if err != nil {
		return ffiNoHandle, errorCode(err)
	}

	fs := &ffiSnapshot{snapshot: snap}

	return snapshots.put(fs), NoError
}

// ReaderEnd discards reader readerID without materializing a Snapshot —
// the Go-side body of possum_reader_end's early-abort path.
func ReaderEnd(readerID uint64) ErrorCode {
	r, ok := readers.remove(readerID)
	if !ok {
		return ErrCodeAnyhowError
	}

	return errorCode(r.Rollback())
}

// ValueReadAt reads from snapshotID's value (the id ReaderAdd returned)
// into buf starting at offset — the Go-side body of possum_value_read_at.
func ValueReadAt(snapshotID, valueID uint64, buf []byte, offset int64) (int, ErrorCode) {
	fs, ok := snapshots.get(snapshotID)
	if !ok {
		return 0, ErrCodeAnyhowError
	}

	pv, ok := pendingValues.get(valueID)
	if !ok {
		return 0, ErrCodeAnyhowError
	}

	n, err := fs.snapshot.Value(pv.value).ReadAt(buf, offset)
	if err != nil {
		return n, errorCode(err)
	}

	return n, NoError
}

// ValueStat returns the Stat for value valueID (the id ReaderAdd returned),
// as recorded when it was added — the Go-side
// body of possum_value_stat.
func ValueStat(valueID uint64) (Stat, ErrorCode) {
	pv, ok := pendingValues.get(valueID)
	if !ok {
		return Stat{}, ErrCodeAnyhowError
	}

	return Stat{LastUsed: pv.value.LastUsed(), Size: pv.value.Length()}, NoError
}

// SetInstanceLimits applies lim to handle id — the Go-side body of
// possum_set_instance_limits.
func SetInstanceLimits(id uint64, lim Limits) ErrorCode {
	h, ok := handles.get(id)
	if !ok {
		return ErrCodeAnyhowError
	}

	return errorCode(h.SetInstanceLimits(lim))
}

// CleanupSnapshots removes leftover per-snapshot temp directories on
// handle id — the Go-side body of possum_cleanup_snapshots.
func CleanupSnapshots(id uint64) ErrorCode {
	h, ok := handles.get(id)
	if !ok {
		return ErrCodeAnyhowError
	}

	return errorCode(h.CleanupSnapshots())
}

// MovePrefix rewrites every key under oldPrefix to begin with newPrefix
// instead — the Go-side body of possum_move_prefix.
func MovePrefix(id uint64, oldPrefix, newPrefix []byte) (int64, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return 0, ErrCodeAnyhowError
	}

	n, err := h.MovePrefix(oldPrefix, newPrefix)

	return n, errorCode(err)
}

// DeletePrefix deletes every key under prefix — the Go-side body of
// possum_delete_prefix.
func DeletePrefix(id uint64, prefix []byte) (int64, ErrorCode) {
	h, ok := handles.get(id)
	if !ok {
		return 0, ErrCodeAnyhowError
	}

	n, err := h.DeletePrefix(prefix)

	return n, errorCode(err)
}
