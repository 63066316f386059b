package possum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_LoadLimits_Missing_File_Returns_Zero_Value(t *testing.T) {
	t.Parallel()

	lim, err := loadLimits(t.TempDir())
	require.NoError(t, err)
	require.Zero(t, lim)
}

func Test_SaveLimits_Then_LoadLimits_Roundtrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	want := Limits{MaxValueLengthSum: 1024, DisableHolePunching: true}
	require.NoError(t, saveLimits(dir, want))

	got, err := loadLimits(dir)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func Test_LoadLimits_Tolerates_Hujson_Comments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := []byte("{\n  // operator note: cap staged bytes per commit\n  \"max_value_length_sum\": 10, /* bytes */\n}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), data, 0o600))

	got, err := loadLimits(dir)
	require.NoError(t, err)
	require.EqualValues(t, 10, got.MaxValueLengthSum)
}
