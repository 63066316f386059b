package possum

// Limits holds the instance-wide constraints a [Handle] enforces on
// writes, settable at any time via [Handle.SetInstanceLimits].
type Limits struct {
	// MaxValueLengthSum caps the sum of value lengths staged in a single
	// [BatchWriter.Commit]. Zero means unlimited.
	MaxValueLengthSum int64 `json:"max_value_length_sum,omitempty"`
	// DisableHolePunching stops the reclaimer from calling
	// [possumfs.FS.PunchHole], leaving orphaned extents marked reclaimed
	// in the manifest without freeing their disk space. Useful on
	// filesystems where punching is unsupported or undesirable.
	DisableHolePunching bool `json:"disable_hole_punching,omitempty"`
}
