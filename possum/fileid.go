package possum

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// valuesFileNamePrefix names every values file on disk, the same prefix
// [walkDir] uses to classify directory entries.
const valuesFileNamePrefix = "values-"

// snapshotDirNamePrefix names every per-snapshot temp directory holding
// file clones.
const snapshotDirNamePrefix = "snapshot-"

// manifestFileName is the manifest database's name within a possum
// directory — kept in sync with internal/manifest's own fileName constant
// since walkDir needs to recognize it without importing manifest for just
// a string.
const manifestFileName = "manifest.db"

// fileID identifies a values file. A 32-bit unsigned integer, encoded as
// 8 lowercase hex digits in its on-disk file name — sqlite only stores
// signed 8-byte integers, so this stays comfortably inside that range
// without needing sign juggling.
type fileID uint32

// valuesFileName returns this id's file name within a possum directory.
func (id fileID) valuesFileName() string {
	return fmt.Sprintf("%s%08x", valuesFileNamePrefix, uint32(id))
}

// valuesFilePath returns this id's absolute path within dir.
func (id fileID) valuesFilePath(dir string) string {
	return filepath.Join(dir, id.valuesFileName())
}

// parseFileID parses a values file's name back into its fileID, returning
// false if name doesn't have the expected prefix/shape.
func parseFileID(name string) (fileID, bool) {
	hex, ok := strings.CutPrefix(name, valuesFileNamePrefix)
	if !ok {
		return 0, false
	}

	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}

	return fileID(n), true
}

// randomFileID mints a new random identifier for a values file. Collisions
// are handled by the caller retrying with a fresh id (see
// exclusiveFiles.mint).
func randomFileID() (fileID, error) {
	var buf [4]byte

	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("possum: generating file id: %w", err)
	}

	return fileID(binary.BigEndian.Uint32(buf[:])), nil
}
