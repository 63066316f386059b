package possumfs

import "errors"

// ErrUnsupportedFilesystem is returned by [FS.CloneFile] and [FS.PunchHole]
// when the underlying filesystem doesn't support the requested operation.
// Callers fall back: CloneFile callers use segment locking instead of a
// clone; the possum reclaimer marks the one extent it failed to punch as
// reclaimed, without logging and without skipping the file's other
// extents.
var ErrUnsupportedFilesystem = errors.New("unsupported filesystem")

// ErrWouldBlock names the "conflicting lock already held" condition.
// [FS.LockSegment] does not return it: contention is reported as
// (false, nil).
var ErrWouldBlock = errors.New("lock would block")
