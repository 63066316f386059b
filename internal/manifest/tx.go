package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReadTx is a snapshot-isolated read transaction opened via
// [Store.BeginRead]. Call Commit when done; Commit must happen after any
// file clones or segment locks derived from the locations it returned have
// been taken, so that a concurrent writer cannot retire an extent between
// the touch and the lock.
type ReadTx struct {
	tx  *sql.Tx
	ctx context.Context //nolint:containedctx // bound to the transaction's lifetime, not request-scoped
}

// TouchForRead atomically bumps last_used for key and returns its current
// location. The second return value is false if key has no row.
func (r *ReadTx) TouchForRead(key []byte) (Location, bool, error) {
	now := nowMillis()

	row := r.tx.QueryRowContext(r.ctx, touchForReadSQL, now, key)

	var loc Location

	err := row.Scan(&loc.FileID, &loc.FileOffset, &loc.ValueLength, &loc.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, false, nil
	}

	if err != nil {
		return Location{}, false, fmt.Errorf("manifest: touch for read: %w", err)
	}

	return loc, true, nil
}

// ListItems returns every key with the given prefix and its location,
// without touching last_used.
func (r *ReadTx) ListItems(prefix []byte) ([]Item, error) {
	lo, hi, unbounded := prefixRange(prefix)

	var (
		rows *sql.Rows
		err  error
	)

	if unbounded {
		rows, err = r.tx.QueryContext(r.ctx, "SELECT key, file_id, file_offset, value_length, last_used FROM keys WHERE key >= ? ORDER BY key", lo)
	} else {
		rows, err = r.tx.QueryContext(r.ctx, listItemsSQL, lo, hi)
	}

	if err != nil {
		return nil, fmt.Errorf("manifest: list items: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var items []Item

	for rows.Next() {
		var item Item

		if err := rows.Scan(&item.Key, &item.Location.FileID, &item.Location.FileOffset, &item.Location.ValueLength, &item.Location.LastUsed); err != nil {
			return nil, fmt.Errorf("manifest: scanning item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: list items: %w", err)
	}

	return items, nil
}

// Commit closes the read transaction.
func (r *ReadTx) Commit() error {
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("manifest: commit read tx: %w", err)
	}

	return nil
}

// Rollback discards the read transaction. Safe to call after Commit
// (no-op, per database/sql.Tx semantics).
func (r *ReadTx) Rollback() error {
	if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("manifest: rollback read tx: %w", err)
	}

	return nil
}

// WriteTx is a serialized immediate write transaction opened via
// [Store.BeginWrite]. Exactly one WriteTx may be open at a time per Store.
type WriteTx struct {
	store    *Store
	conn     *sql.Conn
	ctx      context.Context //nolint:containedctx // bound to the transaction's lifetime, not request-scoped
	orphans  []OrphanExtent
	released bool
}

// DeleteKey removes key's row, if any, and returns its former location.
// Callers enqueue the returned location as an orphan extent themselves (via
// EnqueueOrphanExtent) so that rename_value can redirect a location instead
// of orphaning it.
func (w *WriteTx) DeleteKey(key []byte) (Location, bool, error) {
	row := w.conn.QueryRowContext(w.ctx, deleteKeySQL, key)

	var loc Location

	err := row.Scan(&loc.FileID, &loc.FileOffset, &loc.ValueLength)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, false, nil
	}

	if err != nil {
		return Location{}, false, fmt.Errorf("manifest: delete key: %w", err)
	}

	return loc, true, nil
}

// UpsertKey inserts or replaces key's row, pointing it at loc with
// last_used set to the commit time.
func (w *WriteTx) UpsertKey(key []byte, loc Location) error {
	now := nowMillis()

	_, err := w.conn.ExecContext(w.ctx, upsertKeySQL, key, loc.FileID, loc.FileOffset, loc.ValueLength, now)
	if err != nil {
		return fmt.Errorf("manifest: upsert key: %w", err)
	}

	return nil
}

// EnqueueOrphanExtent records ext as no longer referenced by any key. It is
// persisted in the same transaction as the rows that stopped referencing
// it, and also returned from Commit's PostCommit for the reclaimer to act
// on without a separate query.
func (w *WriteTx) EnqueueOrphanExtent(ext Extent) error {
	if ext.Length == 0 {
		return nil
	}

	now := nowMillis()

	res, err := w.conn.ExecContext(w.ctx, enqueueOrphanExtentSQL, ext.FileID, ext.Offset, ext.Length, now)
	if err != nil {
		return fmt.Errorf("manifest: enqueue orphan extent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("manifest: enqueue orphan extent: last insert id: %w", err)
	}

	w.orphans = append(w.orphans, OrphanExtent{ID: id, Extent: ext})

	return nil
}

// MovePrefix rewrites every key starting with from to start with to
// instead, preserving the remainder of the key. Returns the number of rows
// affected.
func (w *WriteTx) MovePrefix(from, to []byte) (int64, error) {
	lo, hi, unbounded := prefixRange(from)

	var (
		res sql.Result
		err error
	)

	if unbounded {
		res, err = w.conn.ExecContext(w.ctx, "UPDATE keys SET key = CAST(? || substr(key, ? + 1) AS BLOB) WHERE key >= ?", to, len(from), lo)
	} else {
		res, err = w.conn.ExecContext(w.ctx, movePrefixSQL, to, len(from), lo, hi)
	}

	if err != nil {
		return 0, fmt.Errorf("manifest: move prefix: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("manifest: move prefix: rows affected: %w", err)
	}

	return n, nil
}

// DeletePrefix deletes every key starting with prefix and enqueues each of
// their locations as an orphan extent. Returns the number of rows deleted.
func (w *WriteTx) DeletePrefix(prefix []byte) (int64, error) {
	lo, hi, unbounded := prefixRange(prefix)

	var (
		rows *sql.Rows
		err  error
	)

	if unbounded {
		rows, err = w.conn.QueryContext(w.ctx, "SELECT key, file_id, file_offset, value_length FROM keys WHERE key >= ?", lo)
	} else {
		rows, err = w.conn.QueryContext(w.ctx, deletePrefixSelectSQL, lo, hi)
	}

	if err != nil {
		return 0, fmt.Errorf("manifest: delete prefix: selecting rows: %w", err)
	}

	var doomed []Extent

	for rows.Next() {
		var (
			key []byte
			loc Location
		)

		if err := rows.Scan(&key, &loc.FileID, &loc.FileOffset, &loc.ValueLength); err != nil {
			_ = rows.Close()

			return 0, fmt.Errorf("manifest: delete prefix: scanning row: %w", err)
		}

		doomed = append(doomed, Extent{FileID: loc.FileID, Offset: loc.FileOffset, Length: loc.ValueLength})
	}

	if err := rows.Err(); err != nil {
		_ = rows.Close()

		return 0, fmt.Errorf("manifest: delete prefix: %w", err)
	}

	_ = rows.Close()

	var res sql.Result

	if unbounded {
		res, err = w.conn.ExecContext(w.ctx, "DELETE FROM keys WHERE key >= ?", lo)
	} else {
		res, err = w.conn.ExecContext(w.ctx, deletePrefixSQL, lo, hi)
	}

	if err != nil {
		return 0, fmt.Errorf("manifest: delete prefix: deleting rows: %w", err)
	}

	for _, ext := range doomed {
		if err := w.EnqueueOrphanExtent(ext); err != nil {
			return 0, err
		}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("manifest: delete prefix: rows affected: %w", err)
	}

	return n, nil
}

// QueryLastEndOffset returns the largest file_offset+value_length among
// live rows in fileID that start at or before offset, used by the
// reclaimer to avoid expanding a punch into a live row it would otherwise
// overlap. Returns found=false if there is no such row.
func (w *WriteTx) QueryLastEndOffset(fileID uint32, offset int64) (end int64, found bool, err error) {
	row := w.conn.QueryRowContext(w.ctx, queryLastEndOffsetSQL, fileID, offset)

	if err := row.Scan(&end); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("manifest: query last end offset: %w", err)
	}

	return end, true, nil
}

// Commit persists every operation staged on w atomically and releases the
// Store's write lock. The returned PostCommit carries every extent that
// Commit's transaction orphaned, for the caller to hand to the reclaimer
// without a follow-up query.
func (w *WriteTx) Commit() (PostCommit, error) {
	defer w.release()

	if w.released {
		return PostCommit{}, ErrTxClosed
	}

	commitTime := time.Now()

	if _, err := w.conn.ExecContext(w.ctx, "COMMIT"); err != nil {
		return PostCommit{}, fmt.Errorf("manifest: commit write tx: %w", err)
	}

	return PostCommit{OrphanExtents: w.orphans, CommitTime: commitTime}, nil
}

// Rollback discards every operation staged on w and releases the Store's
// write lock. Safe to call after Commit (no-op).
func (w *WriteTx) Rollback() error {
	if w.released {
		return nil
	}

	defer w.release()

	if _, err := w.conn.ExecContext(w.ctx, "ROLLBACK"); err != nil {
		return fmt.Errorf("manifest: rollback write tx: %w", err)
	}

	return nil
}

func (w *WriteTx) release() {
	if w.released {
		return
	}

	w.released = true

	_ = w.conn.Close()
	w.store.mu.Unlock()
}

// nowMillis is the manifest's last_used clock: Unix milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// prefixRange computes the half-open key range [lo, hi) covering every key
// with the given prefix. SQLite compares BLOB columns byte-by-byte, so hi
// is prefix with its last byte incremented (carrying through trailing
// 0xff bytes); unbounded is true when prefix is all 0xff (or empty),
// meaning there is no finite upper bound and callers must query with only
// a lower bound.
func prefixRange(prefix []byte) (lo, hi []byte, unbounded bool) {
	lo = prefix

	hi = make([]byte, len(prefix))
	copy(hi, prefix)

	for i := len(hi) - 1; i >= 0; i-- {
		if hi[i] < 0xff {
			hi[i]++

			return lo, hi[:i+1], false
		}
	}

	return lo, nil, true
}
