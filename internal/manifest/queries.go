package manifest

// touchForReadSQL atomically bumps last_used and returns the current
// location in a single statement, so a read-only Add still takes a write
// lock on the row, the read amplification accepted as the cost of correct
// LRU tracking.
const touchForReadSQL = `
UPDATE keys SET last_used = ?
WHERE key = ?
RETURNING file_id, file_offset, value_length, last_used
`

const listItemsSQL = `
SELECT key, file_id, file_offset, value_length, last_used
FROM keys
WHERE key >= ? AND key < ?
ORDER BY key
`

const deleteKeySQL = `
DELETE FROM keys WHERE key = ?
RETURNING file_id, file_offset, value_length
`

const upsertKeySQL = `
INSERT INTO keys (key, file_id, file_offset, value_length, last_used)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	file_id = excluded.file_id,
	file_offset = excluded.file_offset,
	value_length = excluded.value_length,
	last_used = excluded.last_used
`

const enqueueOrphanExtentSQL = `
INSERT INTO orphan_extents (file_id, offset, length, created_at)
VALUES (?, ?, ?, ?)
`

const movePrefixSQL = `
UPDATE keys
SET key = CAST(? || substr(key, ? + 1) AS BLOB)
WHERE key >= ? AND key < ?
`

const deletePrefixSelectSQL = `
SELECT key, file_id, file_offset, value_length
FROM keys
WHERE key >= ? AND key < ?
`

const deletePrefixSQL = `
DELETE FROM keys WHERE key >= ? AND key < ?
`

// queryLastEndOffsetSQL finds the largest end-offset of a live row in
// file_id that starts at or before target — used by the reclaimer to avoid
// punching into a live key row when expanding an orphan extent's start to a
// block boundary.
const queryLastEndOffsetSQL = `
SELECT file_offset + value_length
FROM keys
WHERE file_id = ? AND file_offset <= ?
ORDER BY file_offset DESC
LIMIT 1
`

const pendingOrphanExtentsSQL = `
SELECT id, file_id, offset, length
FROM orphan_extents
WHERE reclaimed_at IS NULL
ORDER BY id
LIMIT ?
`

const markReclaimedSQL = `
UPDATE orphan_extents SET reclaimed_at = ? WHERE id = ?
`
