package manifest

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaSQL creates the two tables the manifest needs: keys maps a key to
// the location of its value, orphan_extents queues ranges that became
// unreferenced by a commit until the reclaimer punches them.
//
// reclaimed_at lets the reclaimer resume after a restart by selecting rows
// where it's still NULL, rather than re-deriving the queue from commit
// history.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS keys (
	key          BLOB PRIMARY KEY,
	file_id      INTEGER NOT NULL,
	file_offset  INTEGER NOT NULL,
	value_length INTEGER NOT NULL,
	last_used    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orphan_extents (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id      INTEGER NOT NULL,
	offset       INTEGER NOT NULL,
	length       INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	reclaimed_at INTEGER
);

CREATE INDEX IF NOT EXISTS orphan_extents_pending
	ON orphan_extents (file_id)
	WHERE reclaimed_at IS NULL;
`

func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	return nil
}
