package possum_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum"
)

func Test_Reclaimer_Eventually_Reclaims_Orphaned_Extent(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("to be replaced"))
	require.NoError(t, err)

	_, err = h.SingleWriteFrom([]byte("k"), bytesReader("replacement"))
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "replacement", string(got))

	require.Eventually(t, func() bool {
		size, err := h.BlockSize()

		return err == nil && size > 0
	}, time.Second, 10*time.Millisecond)
}

func Test_Handle_SetInstanceLimits_DisableHolePunching_Persists_Across_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	h, err := possum.New(context.Background(), possum.Config{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, h.SetInstanceLimits(possum.Limits{DisableHolePunching: true}))
	require.NoError(t, h.Close())

	h2, err := possum.New(context.Background(), possum.Config{Dir: dir})
	require.NoError(t, err)

	t.Cleanup(func() { _ = h2.Close() })

	data, err := os.ReadFile(filepath.Join(dir, "possum.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"disable_hole_punching": true`)

	_, err = h2.SingleWriteFrom([]byte("k"), bytesReader("v"))
	require.NoError(t, err)

	_, err = h2.SingleWriteFrom([]byte("k"), bytesReader("v2"))
	require.NoError(t, err)
}
