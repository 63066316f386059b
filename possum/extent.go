package possum

import "sort"

// readExtent is a byte range within one values file, recorded by a
// [Reader] as it touches keys so that [Reader.Begin] knows exactly which
// ranges of which files a Snapshot needs to keep stable.
type readExtent struct {
	offset int64
	length int64
}

// end returns the first byte past this extent.
func (e readExtent) end() int64 { return e.offset + e.length }

// readSet accumulates the extents a Reader has touched, keyed by the
// values file they fall in. Extents are appended as they are touched;
// [readSet.extents] sorts and merges them per file_id on demand so that
// Snapshot construction takes the fewest possible segment locks.
type readSet struct {
	byFile map[fileID][]readExtent
}

func newReadSet() *readSet {
	return &readSet{byFile: make(map[fileID][]readExtent)}
}

func (rs *readSet) add(id fileID, offset, length int64) {
	if length == 0 {
		return
	}

	rs.byFile[id] = append(rs.byFile[id], readExtent{offset: offset, length: length})
}

// fileIDs returns every file_id this set has recorded an extent for, in no
// particular order.
func (rs *readSet) fileIDs() []fileID {
	ids := make([]fileID, 0, len(rs.byFile))
	for id := range rs.byFile {
		ids = append(ids, id)
	}

	return ids
}

// extents returns id's recorded extents, merged: sorted by offset, with
// any overlapping or adjacent ranges combined into one.
func (rs *readSet) extents(id fileID) []readExtent {
	raw := rs.byFile[id]
	if len(raw) == 0 {
		return nil
	}

	sorted := make([]readExtent, len(raw))
	copy(sorted, raw)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	merged := make([]readExtent, 0, len(sorted))
	cur := sorted[0]

	for _, next := range sorted[1:] {
		if next.offset <= cur.end() {
			if next.end() > cur.end() {
				cur.length = next.end() - cur.offset
			}

			continue
		}

		merged = append(merged, cur)
		cur = next
	}

	merged = append(merged, cur)

	return merged
}

// missingExtents returns every extent in requested that isn't fully
// covered by some single extent in locked, so a cache entry reused for a
// new Reader only needs additional locks for what it doesn't already
// cover.
func missingExtents(requested, locked []readExtent) []readExtent {
	var missing []readExtent

	for _, want := range requested {
		if !coveredByAny(want, locked) {
			missing = append(missing, want)
		}
	}

	return missing
}

func coveredByAny(target readExtent, covering []readExtent) bool {
	for _, c := range covering {
		if target.offset >= c.offset && target.end() <= c.end() {
			return true
		}
	}

	return false
}

// maxEnd returns the furthest byte any extent for id reaches, used to
// decide whether a cached FileClone is still long enough to reuse.
func (rs *readSet) maxEnd(id fileID) int64 {
	var max int64

	for _, e := range rs.byFile[id] {
		if e.end() > max {
			max = e.end()
		}
	}

	return max
}
