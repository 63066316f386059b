package possum

import (
	"errors"
	"fmt"
	"os"

	"github.com/reflinkdb/possum/internal/possumfs"
)

// maxMintAttempts bounds how many random ids exclusiveFiles.mint tries
// before giving up on a directory collision that should essentially
// never happen.
const maxMintAttempts = 10000

// exclusiveFile is a values file a writer holds for exclusive appends: an
// open fd, locked across its full range (or whole-file, on hosts without
// segment locks), plus the offset writes were last committed up to so a
// rollback knows where to truncate back to.
type exclusiveFile struct {
	fs                  possumfs.FS
	file                possumfs.File
	id                  fileID
	lastCommittedOffset int64
	segmentLockedWhole  bool
}

// nextWriteOffset is where the next staged write should begin: the
// file's current end.
func (ef *exclusiveFile) nextWriteOffset() (int64, error) {
	return ef.file.Seek(0, 2) // io.SeekEnd
}

// revertToOffset truncates ef back to offset, undoing any writes staged
// after the last commit. offset must be >= lastCommittedOffset.
func (ef *exclusiveFile) revertToOffset(offset int64) error {
	if offset < ef.lastCommittedOffset {
		return fmt.Errorf("possum: revert offset %d precedes last committed offset %d", offset, ef.lastCommittedOffset)
	}

	if err := ef.file.Truncate(offset); err != nil {
		return err
	}

	_, err := ef.file.Seek(offset, 0)

	return err
}

// markCommitted records the file's current tail as the new
// lastCommittedOffset, after a successful manifest commit.
func (ef *exclusiveFile) markCommitted() error {
	off, err := ef.file.Seek(0, 1) // io.SeekCurrent
	if err != nil {
		return err
	}

	ef.lastCommittedOffset = off

	return nil
}

func (ef *exclusiveFile) unlockAndClose(fs possumfs.FS) error {
	var errs []error

	if !ef.segmentLockedWhole {
		if err := fs.UnlockSegment(ef.file, 0, 0); err != nil {
			errs = append(errs, err)
		}
	}

	if err := ef.file.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// exclusiveFiles is the Handle's pool of exclusiveFile handles available
// for reuse between writers, plus the logic to acquire one when the pool
// is empty: scan the directory for an unused values file, and failing
// that, mint a new one.
//
// Preference order: (1) pool, (2) existing unused file on disk, (3) mint
// with a random id.
type exclusiveFiles struct {
	fs   possumfs.FS
	dir  string
	pool chan *exclusiveFile
}

func newExclusiveFiles(fs possumfs.FS, dir string, poolSize int) *exclusiveFiles {
	return &exclusiveFiles{fs: fs, dir: dir, pool: make(chan *exclusiveFile, poolSize)}
}

// acquire returns an exclusiveFile for a writer to use, per the three-step
// preference order.
func (p *exclusiveFiles) acquire() (*exclusiveFile, error) {
	select {
	case ef := <-p.pool:
		return ef, nil
	default:
	}

	if ef, err := p.openExisting(); err != nil {
		return nil, err
	} else if ef != nil {
		return ef, nil
	}

	return p.mint()
}

// release returns ef to the pool for reuse, or closes it if the pool is
// already full.
func (p *exclusiveFiles) release(ef *exclusiveFile) {
	select {
	case p.pool <- ef:
	default:
		_ = ef.unlockAndClose(p.fs)
	}
}

// closeAll drains and closes every pooled exclusiveFile. Called from
// Handle.Close.
func (p *exclusiveFiles) closeAll() {
	for {
		select {
		case ef := <-p.pool:
			_ = ef.unlockAndClose(p.fs)
		default:
			return
		}
	}
}

// openExisting scans dir for a values file nobody currently has
// exclusively locked, and claims it. Returns (nil, nil) if none is found.
func (p *exclusiveFiles) openExisting() (*exclusiveFile, error) {
	entries, err := p.fs.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("possum: scanning %s for an existing values file: %w", p.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id, ok := parseFileID(entry.Name())
		if !ok {
			continue
		}

		ef, err := p.tryClaim(id)
		if err != nil {
			continue
		}

		if ef != nil {
			return ef, nil
		}
	}

	return nil, nil
}

// tryClaim attempts to open and exclusively lock the values file for id.
// Returns (nil, nil) if the lock is already held by someone else.
func (p *exclusiveFiles) tryClaim(id fileID) (*exclusiveFile, error) {
	f, err := p.fs.OpenFile(id.valuesFilePath(p.dir), os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	ef, err := p.lockAndWrap(f, id)
	if err != nil {
		_ = f.Close()

		return nil, err
	}

	return ef, nil
}

// mint creates a brand-new values file with a random id, retrying on id
// collision.
func (p *exclusiveFiles) mint() (*exclusiveFile, error) {
	var lastErr error

	for range maxMintAttempts {
		id, err := randomFileID()
		if err != nil {
			return nil, err
		}

		f, err := p.fs.OpenFile(id.valuesFilePath(p.dir), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				lastErr = err

				continue
			}

			return nil, fmt.Errorf("possum: creating values file: %w", err)
		}

		ef, err := p.lockAndWrap(f, id)
		if err != nil {
			_ = f.Close()

			return nil, err
		}

		return ef, nil
	}

	return nil, fmt.Errorf("possum: gave up minting a values file after %d attempts: %w", maxMintAttempts, lastErr)
}

// lockAndWrap takes a non-blocking exclusive lock over f and wraps it as
// an exclusiveFile. Returns (nil, nil) if the lock would block.
func (p *exclusiveFiles) lockAndWrap(f possumfs.File, id fileID) (*exclusiveFile, error) {
	caps, err := p.fs.Capabilities(p.dir)
	if err != nil {
		return nil, err
	}

	ok, err := p.fs.LockSegment(f, possumfs.LockExclusive, 0, 0)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, nil
	}

	end, err := f.Seek(0, 2) // io.SeekEnd
	if err != nil {
		_ = p.fs.UnlockSegment(f, 0, 0)

		return nil, err
	}

	return &exclusiveFile{
		fs:                  p.fs,
		file:                f,
		id:                  id,
		lastCommittedOffset: end,
		segmentLockedWhole:  caps.WholeFileOnlyLocking,
	}, nil
}
