package possum_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum"
)

func Test_Reader_Add_Then_Begin_Snapshot_Value_View_Roundtrips(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("snapshot me"))
	require.NoError(t, err)

	r, err := h.Read()
	require.NoError(t, err)

	v, err := r.Add([]byte("k"))
	require.NoError(t, err)
	require.EqualValues(t, len("snapshot me"), v.Length())

	snap, err := r.Begin()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	var got []byte

	err = snap.Value(v).View(func(b []byte) error {
		got = append(got, b...)

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "snapshot me", string(got))
}

func Test_Reader_Add_Missing_Key_Returns_ErrNoSuchKey(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	r, err := h.Read()
	require.NoError(t, err)

	_, err = r.Add([]byte("missing"))
	require.ErrorIs(t, err, possum.ErrNoSuchKey)

	require.NoError(t, r.Rollback())
}

func Test_Reader_Snapshot_Stable_Against_Concurrent_Overwrite(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("original"))
	require.NoError(t, err)

	r, err := h.Read()
	require.NoError(t, err)

	v, err := r.Add([]byte("k"))
	require.NoError(t, err)

	snap, err := r.Begin()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	// Overwrite the key after the snapshot is taken; the value reachable
	// through the old snapshot handle must still read the original bytes.
	_, err = h.SingleWriteFrom([]byte("k"), bytesReader("replaced, and longer than before"))
	require.NoError(t, err)

	var got []byte

	err = snap.Value(v).View(func(b []byte) error {
		got = append(got, b...)

		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "original", string(got))

	fresh, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "replaced, and longer than before", string(fresh))
}

func Test_SnapshotValue_ReadAt_Reads_Byte_Range(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("0123456789"))
	require.NoError(t, err)

	r, err := h.Read()
	require.NoError(t, err)

	v, err := r.Add([]byte("k"))
	require.NoError(t, err)

	snap, err := r.Begin()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	buf := make([]byte, 4)
	n, err := snap.Value(v).ReadAt(buf, 3)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "3456", string(buf))
}

func Test_SnapshotValue_NewReader_Reads_Full_Contents(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("a streamed value"))
	require.NoError(t, err)

	r, err := h.Read()
	require.NoError(t, err)

	v, err := r.Add([]byte("k"))
	require.NoError(t, err)

	snap, err := r.Begin()
	require.NoError(t, err)
	defer func() { _ = snap.Close() }()

	buf := make([]byte, 64)
	n, err := snap.Value(v).NewReader().Read(buf)
	require.NoError(t, err)
	require.Equal(t, "a streamed value", string(buf[:n]))
}

func Test_Reader_Begin_With_No_Adds_Produces_Empty_Snapshot(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	r, err := h.Read()
	require.NoError(t, err)

	snap, err := r.Begin()
	require.NoError(t, err)
	require.NoError(t, snap.Close())
}

func Test_Reader_ListItems_Does_Not_Touch_Read_Set(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("a/1"), bytesReader("x"))
	require.NoError(t, err)

	r, err := h.Read()
	require.NoError(t, err)

	items, err := r.ListItems([]byte("a/"))
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, r.Rollback())
}

func Test_Handle_ReadSingle_Zero_Length_Value(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	w, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w.NewValue()
	require.NoError(t, err)

	require.NoError(t, w.StageWrite([]byte("empty"), vb))
	_, err = w.Commit()
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("empty"))
	require.NoError(t, err)
	require.Empty(t, got)
}
