package possum_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum"
)

func Test_Handle_WalkDir_Classifies_Manifest_And_Values_Files(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("v"))
	require.NoError(t, err)

	entries, err := h.WalkDir()
	require.NoError(t, err)

	var sawManifest, sawValues bool

	for _, e := range entries {
		switch e.Type {
		case possum.ManifestFile:
			sawManifest = true
		case possum.ValuesFile:
			sawValues = true

			_, ok := e.FileID()
			require.True(t, ok)
		}
	}

	require.True(t, sawManifest)
	require.True(t, sawValues)
}

func Test_Handle_CleanupSnapshots_Removes_Leftover_Snapshot_Dirs(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("v"))
	require.NoError(t, err)

	r, err := h.Read()
	require.NoError(t, err)

	v, err := r.Add([]byte("k"))
	require.NoError(t, err)

	snap, err := r.Begin()
	require.NoError(t, err)
	_ = v

	require.NoError(t, snap.Close())
	require.NoError(t, h.CleanupSnapshots())

	entries, err := h.WalkDir()
	require.NoError(t, err)

	for _, e := range entries {
		require.NotEqual(t, possum.SnapshotDir, e.Type)
	}
}
