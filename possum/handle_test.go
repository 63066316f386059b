package possum_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflinkdb/possum"
)

func openTestHandle(t *testing.T) *possum.Handle {
	t.Helper()

	h, err := possum.New(context.Background(), possum.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	t.Cleanup(func() { _ = h.Close() })

	return h
}

func Test_Handle_SingleWriteFrom_Then_ReadSingle_Roundtrips(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("hello world"))
	require.NoError(t, err)

	got, err := h.ReadSingle([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func Test_Handle_ReadSingle_Reports_Missing_Key(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.ReadSingle([]byte("missing"))
	require.ErrorIs(t, err, possum.ErrNoSuchKey)
}

func Test_Handle_SingleDelete_Removes_Key(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("value"))
	require.NoError(t, err)

	require.NoError(t, h.SingleDelete([]byte("k")))

	_, err = h.ReadSingle([]byte("k"))
	require.ErrorIs(t, err, possum.ErrNoSuchKey)
}

func Test_Handle_SingleDelete_Missing_Key_Returns_ErrNoSuchKey(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	require.ErrorIs(t, h.SingleDelete([]byte("missing")), possum.ErrNoSuchKey)
}

func Test_Handle_ListItems_Returns_Matching_Prefix(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("a/1"), bytesReader("x"))
	require.NoError(t, err)
	_, err = h.SingleWriteFrom([]byte("a/2"), bytesReader("y"))
	require.NoError(t, err)
	_, err = h.SingleWriteFrom([]byte("b/1"), bytesReader("z"))
	require.NoError(t, err)

	items, err := h.ListItems([]byte("a/"))
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func Test_Handle_MovePrefix_Rewrites_Keys(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("src/a"), bytesReader("x"))
	require.NoError(t, err)

	n, err := h.MovePrefix([]byte("src/"), []byte("dst/"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	items, err := h.ListItems([]byte("dst/"))
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func Test_Handle_DeletePrefix_Removes_Matching_Keys(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("p/1"), bytesReader("x"))
	require.NoError(t, err)
	_, err = h.SingleWriteFrom([]byte("p/2"), bytesReader("y"))
	require.NoError(t, err)

	n, err := h.DeletePrefix([]byte("p/"))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	items, err := h.ListItems([]byte("p/"))
	require.NoError(t, err)
	require.Empty(t, items)
}

func Test_Handle_RenameItem_Moves_Value_To_New_Key(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	_, err := h.SingleWriteFrom([]byte("old"), bytesReader("payload"))
	require.NoError(t, err)

	require.NoError(t, h.RenameItem([]byte("old"), []byte("new")))

	_, err = h.ReadSingle([]byte("old"))
	require.ErrorIs(t, err, possum.ErrNoSuchKey)

	got, err := h.ReadSingle([]byte("new"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func Test_Handle_RenameItem_Missing_OldKey_Returns_ErrNoSuchKey(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	require.ErrorIs(t, h.RenameItem([]byte("missing"), []byte("new")), possum.ErrNoSuchKey)
}

func Test_Handle_SetInstanceLimits_Rejects_Oversized_Write(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	require.NoError(t, h.SetInstanceLimits(possum.Limits{MaxValueLengthSum: 4}))

	_, err := h.SingleWriteFrom([]byte("k"), bytesReader("too long"))
	require.ErrorIs(t, err, possum.ErrLimitExceeded)
}

func Test_Handle_BlockSize_Returns_Positive_Value(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)

	size, err := h.BlockSize()
	require.NoError(t, err)
	require.Positive(t, size)
}

func Test_Handle_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	h := openTestHandle(t)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}

func Test_Handle_Operations_After_Close_Return_ErrClosed(t *testing.T) {
	t.Parallel()

	h, err := possum.New(context.Background(), possum.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.NewWriter()
	require.ErrorIs(t, err, possum.ErrClosed)

	_, err = h.Read()
	require.ErrorIs(t, err, possum.ErrClosed)
}

// bytesReader adapts a string to the bare io.Reader shape
// SingleWriteFrom accepts.
type bytesReaderT struct {
	s   string
	pos int
}

func bytesReader(s string) *bytesReaderT { return &bytesReaderT{s: s} }

func (r *bytesReaderT) Read(p []byte) (int, error) {
	if r.pos >= len(r.s) {
		return 0, io.EOF
	}

	n := copy(p, r.s[r.pos:])
	r.pos += n

	return n, nil
}
