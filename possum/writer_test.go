package possum_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum"
)

func Test_BatchWriter_StageWrite_Then_Commit_Is_Visible_To_Readers(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	w, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w.NewValue()
	require.NoError(t, err)

	n, err := vb.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.NoError(t, w.StageWrite([]byte("k"), vb))

	_, err = w.Commit()
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func Test_BatchWriter_Close_Without_Commit_Discards_Writes(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	w, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w.NewValue()
	require.NoError(t, err)

	_, err = vb.Write([]byte("discarded"))
	require.NoError(t, err)

	require.NoError(t, w.StageWrite([]byte("k"), vb))
	require.NoError(t, w.Close())

	_, err = h.ReadSingle([]byte("k"))
	require.ErrorIs(t, err, possum.ErrNoSuchKey)
}

func Test_BatchWriter_Multiple_StageWrite_Commit_Atomically(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	w, err := h.NewWriter()
	require.NoError(t, err)

	for _, kv := range []struct{ k, v string }{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		vb, err := w.NewValue()
		require.NoError(t, err)

		_, err = vb.Write([]byte(kv.v))
		require.NoError(t, err)

		require.NoError(t, w.StageWrite([]byte(kv.k), vb))
	}

	_, err = w.Commit()
	require.NoError(t, err)

	items, err := h.ListItems(nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
}

func Test_BatchWriter_RenameValue_Points_NewKey_At_Existing_Location(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	w, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w.NewValue()
	require.NoError(t, err)

	_, err = vb.Write([]byte("shared"))
	require.NoError(t, err)

	loc := vb.Location()
	require.NoError(t, w.StageWrite([]byte("a"), vb))
	require.NoError(t, w.RenameValue(loc, []byte("b")))

	_, err = w.Commit()
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "shared", string(got))
}

func Test_BatchWriter_CloneFD_WholeFile_Or_Streamed_Fallback_Roundtrips(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	dir := t.TempDir()

	donorPath := filepath.Join(dir, "donor")
	require.NoError(t, os.WriteFile(donorPath, []byte("cloned content"), 0o600))

	w, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w.CloneFD(donorPath, 0, int64(len("cloned content")))
	require.NoError(t, err)
	require.Equal(t, int64(len("cloned content")), vb.Length())

	require.NoError(t, w.StageWrite([]byte("k"), vb))
	_, err = w.Commit()
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "cloned content", string(got))
}

func Test_BatchWriter_CloneFD_Partial_Range_Uses_Streamed_Copy(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	dir := t.TempDir()

	donorPath := filepath.Join(dir, "donor")
	require.NoError(t, os.WriteFile(donorPath, []byte("0123456789"), 0o600))

	w, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w.CloneFD(donorPath, 2, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, vb.Length())

	require.NoError(t, w.StageWrite([]byte("k"), vb))
	_, err = w.Commit()
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "23456", string(got))
}

func Test_BatchWriter_StageWrite_From_Different_Writer_Errors(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	w1, err := h.NewWriter()
	require.NoError(t, err)

	w2, err := h.NewWriter()
	require.NoError(t, err)

	vb, err := w1.NewValue()
	require.NoError(t, err)

	require.Error(t, w2.StageWrite([]byte("k"), vb))
}

func Test_Handle_SingleWriteFrom_Uses_CopyFrom_Path(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytes.NewReader([]byte("via copy")))
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "via copy", string(got))
}

func Test_BatchWriter_Commit_Orphans_Previous_Value_On_Overwrite(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytes.NewReader([]byte("first")))
	require.NoError(t, err)

	post, err := h.SingleWriteFrom([]byte("k"), bytes.NewReader([]byte("second value, longer")))
	require.NoError(t, err)
	require.Len(t, post.OrphanExtents, 1)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "second value, longer", string(got))
}
