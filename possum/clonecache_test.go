package possum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum/internal/possumfs"
)

func Test_CloneCache_Get_Reuses_Entry_Long_Enough_For_MinEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "values-00000001")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	fsys := possumfs.NewReal()
	c := newCloneCache(fsys)

	acquireCalls := 0
	acquire := func() (*fileClone, error) {
		acquireCalls++

		f, err := fsys.Open(path)
		require.NoError(t, err)

		return &fileClone{file: f, length: 10}, nil
	}

	noLock := func(fc *fileClone, missing []readExtent) error { return nil }

	first, err := c.get(1, nil, 5, acquire, noLock)
	require.NoError(t, err)

	second, err := c.get(1, nil, 8, acquire, noLock)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, acquireCalls)
}

func Test_CloneCache_Get_Locks_Extents_A_Prior_Reader_Never_Touched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "values-00000001")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	fsys := possumfs.NewReal()
	c := newCloneCache(fsys)

	f, err := fsys.Open(path)
	require.NoError(t, err)

	_, err = c.get(1, []readExtent{{offset: 0, length: 5}}, 5, func() (*fileClone, error) {
		return &fileClone{file: f, length: 10, lockedExtents: []readExtent{{offset: 0, length: 5}}}, nil
	}, func(fc *fileClone, missing []readExtent) error {
		t.Fatal("must not need to lock an extent already covered")
		return nil
	})
	require.NoError(t, err)

	var locked []readExtent

	second, err := c.get(1, []readExtent{{offset: 5, length: 5}}, 10, func() (*fileClone, error) {
		t.Fatal("must reuse the cached entry instead of acquiring a new one")
		return nil, nil
	}, func(fc *fileClone, missing []readExtent) error {
		locked = append(locked, missing...)
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []readExtent{{offset: 5, length: 5}}, locked,
		"reusing the entry for a previously-unlocked extent must lock exactly that extent")
	require.Contains(t, second.lockedExtents, readExtent{offset: 5, length: 5})
}

func Test_CloneCache_Invalidate_Closes_And_Removes_TempDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tempDir := filepath.Join(dir, "snapshot-deadbeef")
	require.NoError(t, os.MkdirAll(tempDir, 0o700))

	path := filepath.Join(tempDir, "values-00000001")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	fsys := possumfs.NewReal()
	c := newCloneCache(fsys)

	f, err := fsys.Open(path)
	require.NoError(t, err)

	noLock := func(fc *fileClone, missing []readExtent) error { return nil }

	_, err = c.get(1, nil, 0, func() (*fileClone, error) {
		return &fileClone{file: f, length: 1, cloned: true, tempDir: tempDir}, nil
	}, noLock)
	require.NoError(t, err)

	c.invalidate(1)

	_, err = os.Stat(tempDir)
	require.True(t, os.IsNotExist(err))
}

func Test_CloneCache_CloseAll_Drains_Every_Entry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fsys := possumfs.NewReal()
	c := newCloneCache(fsys)

	for i := range 3 {
		id := fileID(i + 1)
		path := filepath.Join(dir, id.valuesFileName())
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

		f, err := fsys.Open(path)
		require.NoError(t, err)

		_, err = c.get(id, nil, 0, func() (*fileClone, error) {
			return &fileClone{file: f, length: 1}, nil
		}, func(fc *fileClone, missing []readExtent) error { return nil })
		require.NoError(t, err)
	}

	c.closeAll()
	require.Empty(t, c.entries)
}
