package possumfs

// SetSparse is a no-op everywhere this store runs: Linux and Darwin files
// are sparse by default, with no explicit opt-in required before punching
// holes (unlike NTFS, which needs FSCTL_SET_SPARSE first).
func (r *Real) SetSparse(f File) error {
	return nil
}
