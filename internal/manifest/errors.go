package manifest

import "errors"

// ErrClosed indicates an operation was attempted on a closed Store.
var ErrClosed = errors.New("manifest closed")

// ErrNoSuchKey indicates the requested key has no row in the manifest.
var ErrNoSuchKey = errors.New("no such key")

// ErrTxClosed indicates Commit or Rollback was called twice, or an
// operation was attempted on a transaction that already committed or
// rolled back.
var ErrTxClosed = errors.New("transaction closed")
