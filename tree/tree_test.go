package tree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ninepfs/ninesrv/wire"
)

func TestCreateWriteReadRemove(t *testing.T) {
	tr := New("glenda")
	root := tr.Root()

	child, err := root.Create("glenda", "file1", 0644, uint8(wire.OWRITE))
	require.NoError(t, err)

	n, err := child.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = child.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	walked, err := root.Walk("file1")
	require.NoError(t, err)
	require.Equal(t, child.Qid(), walked.Qid())

	require.NoError(t, child.Remove("glenda"))
	_, err = root.Walk("file1")
	require.Error(t, err)
}

func TestHasPermOwnerVsOther(t *testing.T) {
	tr := New("glenda")
	root := tr.Root()
	child, err := root.Create("glenda", "private", 0600, uint8(wire.OWRITE))
	require.NoError(t, err)

	require.True(t, child.HasPerm("glenda", wire.AREAD|wire.AWRITE))
	require.False(t, child.HasPerm("anyone", wire.AREAD))
}

func TestDirReaderListsChildren(t *testing.T) {
	tr := New("glenda")
	root := tr.Root()
	_, err := root.Create("glenda", "a", 0644, uint8(wire.OWRITE))
	require.NoError(t, err)
	_, err = root.Create("glenda", "b", 0644, uint8(wire.OWRITE))
	require.NoError(t, err)

	rdir, err := root.OpenDir()
	require.NoError(t, err)

	data, err := rdir.ReadDir(0, 4096)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestIncVersionBumpsQid(t *testing.T) {
	tr := New("glenda")
	root := tr.Root()
	child, err := root.Create("glenda", "file1", 0644, uint8(wire.OWRITE))
	require.NoError(t, err)

	before := child.Qid().Vers
	child.IncVersion()
	require.Equal(t, before+1, child.Qid().Vers)
}
