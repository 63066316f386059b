// Package manifest implements the transactional relational store mapping
// keys to the location of their values: a SQLite database opened in WAL
// mode, exposing a read-transaction flavor (snapshot-isolated,
// touch-on-read) and a write-transaction flavor (serialized, immediate).
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// fileName is the manifest database's fixed name within a store directory.
const fileName = "manifest.db"

// sqliteBusyTimeoutMs bounds how long SQLite itself waits for a locked
// database before returning SQLITE_BUSY, on top of this package's own
// Store.mu serialization of write transactions.
const sqliteBusyTimeoutMs = 5000

// Store owns the manifest database for one possum directory.
//
// The database handle is limited to a single connection, so every
// transaction, read ([Store.BeginRead]) or write ([Store.BeginWrite]),
// holds that connection until it ends and the next one waits for it.
// Write transactions are additionally serialized in-process by mu: acquire the
// in-process mutex before any lower-level lock, so goroutines block early
// rather than all piling up on SQLITE_BUSY retries.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	closed atomic.Bool
}

// Open creates or opens the manifest database in dir, applying the schema
// and the WAL/synchronous=off pragmas.
func Open(ctx context.Context, dir string) (*Store, error) {
	path := filepath.Join(dir, fileName)

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=OFF&_busy_timeout=%d&_foreign_keys=off", path, sqliteBusyTimeoutMs)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest: opening sqlite: %w", err)
	}

	// A single connection keeps WAL-mode semantics and the in-process mutex
	// aligned: no two goroutines can hold distinct *sql.Conns against the
	// same write lock state.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		closeErr := db.Close()

		return nil, errors.Join(fmt.Errorf("manifest: ping: %w", err), closeErr)
	}

	if err := applySchema(ctx, db); err != nil {
		closeErr := db.Close()

		return nil, errors.Join(err, closeErr)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying SQLite connection. Safe to call on a nil
// Store; idempotent.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("manifest: closing: %w", err)
	}

	return nil
}

// BeginRead opens a snapshot-isolated read transaction. It takes the
// Store's single connection, so it waits while any other transaction is
// open, and no other transaction can begin until it ends.
func (s *Store) BeginRead(ctx context.Context) (*ReadTx, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("manifest: begin read: %w", err)
	}

	return &ReadTx{tx: tx, ctx: ctx}, nil
}

// BeginWrite acquires the Store's write serialization lock and opens an
// immediate write transaction. Callers must call Commit or Rollback to
// release the lock; holding a WriteTx across a blocking operation stalls
// every other writer in the process.
func (s *Store) BeginWrite(ctx context.Context) (*WriteTx, error) {
	s.mu.Lock()

	if s.closed.Load() {
		s.mu.Unlock()

		return nil, ErrClosed
	}

	// database/sql has no BEGIN IMMEDIATE option on *sql.Tx, so the write
	// transaction is driven over a single checked-out *sql.Conn instead:
	// that pins it to one physical connection for its whole lifetime,
	// which a plain db.ExecContext("BEGIN IMMEDIATE") would not guarantee
	// (the pool could hand the next statement to a different connection
	// and silently run it outside the transaction).
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.mu.Unlock()

		return nil, fmt.Errorf("manifest: acquiring connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		s.mu.Unlock()

		return nil, fmt.Errorf("manifest: begin immediate: %w", err)
	}

	return &WriteTx{store: s, conn: conn, ctx: ctx}, nil
}

// PendingOrphanExtents returns up to limit orphan_extents rows nobody has
// marked reclaimed yet, oldest first — used by the reclaimer at startup to
// resume work a previous process's crash or shutdown left unfinished.
func (s *Store) PendingOrphanExtents(ctx context.Context, limit int) ([]OrphanExtent, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, pendingOrphanExtentsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("manifest: pending orphan extents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OrphanExtent

	for rows.Next() {
		var ext OrphanExtent

		if err := rows.Scan(&ext.ID, &ext.FileID, &ext.Offset, &ext.Length); err != nil {
			return nil, fmt.Errorf("manifest: scanning orphan extent: %w", err)
		}

		out = append(out, ext)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: pending orphan extents: %w", err)
	}

	return out, nil
}

// MarkReclaimed records that the orphan_extents row id has had its space
// freed (or, when hole-punching is disabled, that it's being treated as
// permanently unreclaimable) so the reclaimer never revisits it.
func (s *Store) MarkReclaimed(ctx context.Context, id int64) error {
	if s.closed.Load() {
		return ErrClosed
	}

	if _, err := s.db.ExecContext(ctx, markReclaimedSQL, nowMillis(), id); err != nil {
		return fmt.Errorf("manifest: mark reclaimed: %w", err)
	}

	return nil
}
