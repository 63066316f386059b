package possumfs

// Chaos wraps an [FS], forcing selected operations to fail regardless of
// what the underlying filesystem actually supports. Used by tests that
// exercise the "filesystem doesn't support cloning/punching" fallback paths
// without needing a real filesystem that lacks those features.
type Chaos struct {
	FS

	// FailClone, when set, is returned by every CloneFile call instead of
	// delegating to FS.
	FailClone error
	// FailPunchHole, when set, is returned by every PunchHole call instead
	// of delegating to FS.
	FailPunchHole error
}

func (c *Chaos) CloneFile(src, dst string) error {
	if c.FailClone != nil {
		return c.FailClone
	}

	return c.FS.CloneFile(src, dst)
}

func (c *Chaos) PunchHole(f File, offset, length int64) error {
	if c.FailPunchHole != nil {
		return c.FailPunchHole
	}

	return c.FS.PunchHole(f, offset, length)
}

var _ FS = (*Chaos)(nil)
