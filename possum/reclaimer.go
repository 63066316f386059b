package possum

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/reflinkdb/possum/internal/manifest"
	"github.com/reflinkdb/possum/internal/possumfs"
)

// reclaimerQueueSize bounds how many orphan extents the reclaimer's
// channel buffers before a committing writer blocks handing more off to
// it. Generous enough that ordinary commit bursts never stall.
const reclaimerQueueSize = 1024

// reclaimRetryDelay is how long the reclaimer waits before re-enqueuing
// an extent whose exclusive segment lock was held by someone else (most
// often a writer's whole-file lease) rather than abandoning it.
const reclaimRetryDelay = 50 * time.Millisecond

// reclaimer drains post-commit orphan extents on its own goroutine,
// punching holes in the values files they came from once their range is
// aligned to the filesystem's minimum hole size.
type reclaimer struct {
	handle *Handle

	queue chan manifest.OrphanExtent
	done  chan struct{}
	wg    sync.WaitGroup
}

func newReclaimer(h *Handle) *reclaimer {
	return &reclaimer{
		handle: h,
		queue:  make(chan manifest.OrphanExtent, reclaimerQueueSize),
		done:   make(chan struct{}),
	}
}

func (r *reclaimer) start() {
	r.wg.Add(1)

	go r.run()
}

func (r *reclaimer) stop() {
	close(r.done)
	r.wg.Wait()
}

// enqueue hands batch to the reclaimer. An unreclaimed extent only wastes
// disk space, never correctness, so this blocks rather than drops when
// the queue is full — losing an entry would leave it unreclaimable until
// the next process restart's catch-up scan.
func (r *reclaimer) enqueue(batch []manifest.OrphanExtent) {
	for _, ext := range batch {
		select {
		case r.queue <- ext:
		case <-r.done:
			return
		}
	}
}

func (r *reclaimer) run() {
	defer r.wg.Done()

	r.catchUpPending()

	for {
		select {
		case ext := <-r.queue:
			r.reclaim(ext)
		case <-r.done:
			return
		}
	}
}

// catchUpPending reclaims extents a previous process enqueued but never
// finished punching, found via the manifest's own bookkeeping rather than
// a directory scan.
func (r *reclaimer) catchUpPending() {
	pending, err := r.handle.manifest.PendingOrphanExtents(r.handle.ctx, 4096)
	if err != nil {
		return
	}

	for _, ext := range pending {
		r.reclaim(ext)
	}
}

func (r *reclaimer) reclaim(ext manifest.OrphanExtent) {
	if r.handle.limits().DisableHolePunching {
		_ = r.handle.manifest.MarkReclaimed(r.handle.ctx, ext.ID)

		return
	}

	offset, length, err := r.align(ext)
	if err != nil || length <= 0 {
		return
	}

	id := fileID(ext.FileID)

	f, err := r.handle.fs.OpenFile(id.valuesFilePath(r.handle.dir), os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = r.handle.manifest.MarkReclaimed(r.handle.ctx, ext.ID)
		}

		return
	}
	defer func() { _ = f.Close() }()

	// Excludes a second reclaimer (in this process or another) from
	// punching the same range concurrently; see the Open Question
	// decision on cross-process punch coordination.
	locked, err := r.handle.fs.LockSegment(f, possumfs.LockExclusive, offset, length)
	if err != nil {
		return
	}

	if !locked {
		r.retry(ext)

		return
	}
	defer func() { _ = r.handle.fs.UnlockSegment(f, offset, length) }()

	if err := r.handle.fs.PunchHole(f, offset, length); err != nil {
		if errors.Is(err, possumfs.ErrUnsupportedFilesystem) {
			_ = r.handle.manifest.MarkReclaimed(r.handle.ctx, ext.ID)
		}

		return
	}

	r.handle.clones.invalidate(id)

	_ = r.handle.manifest.MarkReclaimed(r.handle.ctx, ext.ID)
}

// retry re-enqueues ext after reclaimRetryDelay instead of dropping it,
// since an orphan whose lock attempt lost to a concurrent writer or
// reader only wastes disk space until the next attempt succeeds — it
// must never be abandoned for the lifetime of this process the way a
// bare drop-on-contention would.
func (r *reclaimer) retry(ext manifest.OrphanExtent) {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		select {
		case <-time.After(reclaimRetryDelay):
		case <-r.done:
			return
		}

		select {
		case r.queue <- ext:
		case <-r.done:
		}
	}()
}

// align rounds ext to block boundaries. When its start is unaligned, the
// start moves to the first block boundary at or after the end of the last
// live row starting at or before it in the same file (queried fresh; 0
// when there is none), which can lie before or after the original start.
// Unless the extent reaches the file's current size, its end is then
// rounded down to a block boundary. Mirrors punch_value's two
// adjustments.
func (r *reclaimer) align(ext manifest.OrphanExtent) (offset, length int64, err error) {
	blockSize, err := r.handle.fs.MinHoleSize(r.handle.dir)
	if err != nil {
		return 0, 0, err
	}

	if blockSize <= 0 {
		blockSize = 1
	}

	offset, length = ext.Offset, ext.Length

	if offset%blockSize != 0 {
		tx, err := r.handle.manifest.BeginWrite(r.handle.ctx)
		if err != nil {
			return 0, 0, err
		}

		lastEnd, found, err := tx.QueryLastEndOffset(ext.FileID, offset)

		_ = tx.Rollback()

		if err != nil {
			return 0, 0, err
		}

		if !found {
			lastEnd = 0
		}

		newOffset := ceilMultiple(lastEnd, blockSize)
		length += offset - newOffset
		offset = newOffset
	}

	id := fileID(ext.FileID)

	fi, err := r.handle.fs.Stat(id.valuesFilePath(r.handle.dir))
	if err != nil {
		return 0, 0, err
	}

	fileEnd := fi.Size()
	endOffset := offset + length

	if endOffset < fileEnd {
		length -= endOffset % blockSize
	}

	return offset, length, nil
}

func ceilMultiple(n, m int64) int64 {
	if m <= 0 {
		return n
	}

	rem := n % m
	if rem == 0 {
		return n
	}

	return n - rem + m
}
