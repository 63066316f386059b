package possum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_FileID_ValuesFileName_Roundtrips_Through_ParseFileID(t *testing.T) {
	t.Parallel()

	id, err := randomFileID()
	require.NoError(t, err)

	got, ok := parseFileID(id.valuesFileName())
	require.True(t, ok)
	require.Equal(t, id, got)
}

func Test_ParseFileID_Rejects_Wrong_Prefix(t *testing.T) {
	t.Parallel()

	_, ok := parseFileID("manifest.db")
	require.False(t, ok)
}

func Test_ParseFileID_Rejects_Non_Hex_Suffix(t *testing.T) {
	t.Parallel()

	_, ok := parseFileID(valuesFileNamePrefix + "not-hex!!")
	require.False(t, ok)
}

func Test_RandomFileID_Produces_Distinct_Values(t *testing.T) {
	t.Parallel()

	a, err := randomFileID()
	require.NoError(t, err)

	b, err := randomFileID()
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}
