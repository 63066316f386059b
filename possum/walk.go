package possum

import (
	"path/filepath"
	"strings"

	"github.com/reflinkdb/possum/internal/possumfs"
)

// EntryType classifies one entry returned by [Handle.WalkDir].
type EntryType int

const (
	// Unknown is any entry that doesn't match one of the other types —
	// an operator-created file, a leftover from a different tool, etc.
	Unknown EntryType = iota
	// ManifestFile is the SQLite manifest database.
	ManifestFile
	// ValuesFile is a top-level values file, holding live and/or
	// not-yet-reclaimed value bytes.
	ValuesFile
	// SnapshotDir is a per-snapshot temp directory holding file clones;
	// its own contents are walked and appended as SnapshotValue entries.
	SnapshotDir
	// SnapshotValue is a values file clone living inside a SnapshotDir.
	SnapshotValue
)

// String implements [fmt.Stringer].
func (t EntryType) String() string {
	switch t {
	case ManifestFile:
		return "ManifestFile"
	case ValuesFile:
		return "ValuesFile"
	case SnapshotDir:
		return "SnapshotDir"
	case SnapshotValue:
		return "SnapshotValue"
	default:
		return "Unknown"
	}
}

// Entry is one classified directory entry from [Handle.WalkDir].
type Entry struct {
	Path string
	Type EntryType
}

// FileID returns the entry's file_id and true, for ValuesFile and
// SnapshotValue entries; zero and false otherwise.
func (e Entry) FileID() (fileID, bool) {
	switch e.Type {
	case ValuesFile, SnapshotValue:
		return parseFileID(filepath.Base(e.Path))
	default:
		return 0, false
	}
}

// WalkDir classifies every entry in h's directory, recursing one level
// into any SnapshotDir to classify its contents as SnapshotValue or
// Unknown.
func (h *Handle) WalkDir() ([]Entry, error) {
	if h.closed.Load() {
		return nil, ErrClosed
	}

	return walkDir(h.fs, h.dir)
}

func walkDir(fs possumfs.FS, dir string) ([]Entry, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "readdir", Path: dir, Err: err}
	}

	var out []Entry

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)

		switch {
		case !e.IsDir() && strings.HasPrefix(name, manifestFileName):
			out = append(out, Entry{Path: path, Type: ManifestFile})
		case !e.IsDir() && strings.HasPrefix(name, valuesFileNamePrefix):
			out = append(out, Entry{Path: path, Type: ValuesFile})
		case e.IsDir() && strings.HasPrefix(name, snapshotDirNamePrefix):
			nested, err := walkSnapshotDir(fs, path)
			if err != nil {
				return nil, err
			}

			out = append(out, Entry{Path: path, Type: SnapshotDir})
			out = append(out, nested...)
		default:
			out = append(out, Entry{Path: path, Type: Unknown})
		}
	}

	return out, nil
}

func walkSnapshotDir(fs possumfs.FS, dir string) ([]Entry, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "readdir", Path: dir, Err: err}
	}

	var out []Entry

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)

		if !e.IsDir() && strings.HasPrefix(name, valuesFileNamePrefix) {
			out = append(out, Entry{Path: path, Type: SnapshotValue})
		} else {
			out = append(out, Entry{Path: path, Type: Unknown})
		}
	}

	return out, nil
}
