package manifest

import "time"

// Location pins a key's value to a byte range within a values file.
type Location struct {
	FileID      uint32
	FileOffset  int64
	ValueLength int64
	// LastUsed is the row's last_used column in Unix milliseconds, as of
	// whatever query produced this Location. Zero for Locations that
	// never read it back (e.g. DeleteKey's returned former location).
	LastUsed int64
}

// Extent is a byte range within a values file, independent of any key that
// may reference it — the shape orphaned ranges and read-locked ranges both
// take.
type Extent struct {
	FileID uint32
	Offset int64
	Length int64
}

// Item is a single row surfaced by ListItems: a key and the location it
// currently points at.
type Item struct {
	Key      []byte
	Location Location
}

// OrphanExtent is a row from the orphan_extents table: an Extent plus the
// row id the reclaimer needs to mark it reclaimed once it's punched.
type OrphanExtent struct {
	ID int64
	Extent
}

// PostCommit is returned by WriteTx.Commit: the extents that became
// unreferenced by the transaction, and the wall-clock time the commit was
// recorded at (used both by the reclaimer and to report observed
// last_used values back to callers).
type PostCommit struct {
	OrphanExtents []OrphanExtent
	CommitTime    time.Time
}
