package possum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ReadSet_Extents_Merges_Overlapping_And_Adjacent_Ranges(t *testing.T) {
	t.Parallel()

	rs := newReadSet()
	rs.add(1, 0, 10)
	rs.add(1, 10, 5) // adjacent
	rs.add(1, 30, 5) // disjoint
	rs.add(1, 5, 10) // overlapping

	merged := rs.extents(1)
	require.Equal(t, []readExtent{
		{offset: 0, length: 15},
		{offset: 30, length: 5},
	}, merged)
}

func Test_ReadSet_Extents_Ignores_Zero_Length(t *testing.T) {
	t.Parallel()

	rs := newReadSet()
	rs.add(1, 0, 0)

	require.Empty(t, rs.extents(1))
	require.Empty(t, rs.fileIDs())
}

func Test_ReadSet_MaxEnd_Returns_Furthest_Byte(t *testing.T) {
	t.Parallel()

	rs := newReadSet()
	rs.add(1, 0, 10)
	rs.add(1, 100, 5)

	require.EqualValues(t, 105, rs.maxEnd(1))
}

func Test_ReadSet_FileIDs_Covers_Every_Touched_File(t *testing.T) {
	t.Parallel()

	rs := newReadSet()
	rs.add(1, 0, 1)
	rs.add(2, 0, 1)

	ids := rs.fileIDs()
	require.ElementsMatch(t, []fileID{1, 2}, ids)
}
