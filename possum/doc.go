// Package possum implements a key/value store of arbitrarily large byte
// values, backed by a SQLite manifest mapping keys to byte ranges within a
// small set of append-only values files on disk. Snapshots taken during a
// read are held stable against concurrent writers either by a zero-copy
// block-reflink clone of the files they touch, or, on filesystems without
// reflink support, by byte-range locks over the live files; deleted and
// overwritten byte ranges are reclaimed by punching holes in the
// background once they're no longer referenced.
package possum
