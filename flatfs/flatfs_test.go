package flatfs

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/jrnl"
	"github.com/mit-pdos/go-ptree/ptree"
)

func mkFS(t *testing.T) *FS {
	d := disk.NewMemDisk(3000)
	opts := jrnl.Options{LogSectors: 128, MaxTrees: 8, Workers: 4}
	_, err := jrnl.Format(d, opts)
	require.NoError(t, err)
	l, err := jrnl.Open(d, opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Shutdown() })
	return New(l)
}

func bytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

func TestPartialBlockRoundTrip(t *testing.T) {
	fs := mkFS(t)
	tid := fs.Begin()
	inum, err := fs.CreateFile(tid)
	require.NoError(t, err)
	require.NoError(t, fs.Commit(tid))

	bs := common.BlockSize
	cases := []struct {
		off uint64
		n   int
	}{
		{0, 10},
		{100, 50},
		{bs - 5, 10},         // straddles a block boundary
		{3*bs + 7, int(2*bs)}, // spans three blocks
		{9 * bs, int(bs)},    // exactly one block, in the indirect range
	}
	for _, c := range cases {
		data := bytes(c.n)
		tid := fs.Begin()
		n, err := fs.Write(tid, inum, c.off, data)
		require.NoError(t, err)
		assert.Equal(t, c.n, n)
		require.NoError(t, fs.Commit(tid))

		tid = fs.Begin()
		got := make([]byte, c.n)
		n, err = fs.Read(tid, inum, c.off, got)
		require.NoError(t, err)
		assert.Equal(t, c.n, n)
		assert.Equal(t, data, got, "offset %d", c.off)
		require.NoError(t, fs.Abort(tid))
	}
}

func TestWritePreservesNeighbors(t *testing.T) {
	fs := mkFS(t)
	tid := fs.Begin()
	inum, err := fs.CreateFile(tid)
	require.NoError(t, err)

	full := bytes(int(common.BlockSize))
	_, err = fs.Write(tid, inum, 0, full)
	require.NoError(t, err)
	_, err = fs.Write(tid, inum, 10, []byte{1, 2, 3})
	require.NoError(t, err)

	got := make([]byte, common.BlockSize)
	_, err = fs.Read(tid, inum, 0, got)
	require.NoError(t, err)
	copy(full[10:], []byte{1, 2, 3})
	assert.Equal(t, full, got)
	require.NoError(t, fs.Commit(tid))
}

func TestHolesAndSize(t *testing.T) {
	fs := mkFS(t)
	tid := fs.Begin()
	inum, err := fs.CreateFile(tid)
	require.NoError(t, err)

	sz, err := fs.Size(tid, inum)
	require.NoError(t, err)
	assert.Zero(t, sz)

	_, err = fs.Write(tid, inum, 5*common.BlockSize+1, []byte{9})
	require.NoError(t, err)
	sz, err = fs.Size(tid, inum)
	require.NoError(t, err)
	assert.Equal(t, 6*common.BlockSize, sz)

	hole := make([]byte, 100)
	hole[0] = 1
	n, err := fs.Read(tid, inum, 2*common.BlockSize, hole)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, make([]byte, 100), hole)
	require.NoError(t, fs.Commit(tid))
}

func TestMaxFileSize(t *testing.T) {
	fs := mkFS(t)
	tid := fs.Begin()
	defer fs.Abort(tid)
	inum, err := fs.CreateFile(tid)
	require.NoError(t, err)

	n, err := fs.Write(tid, inum, MaxFileSize-4, []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 4, n, "writes are clamped at the maximum size")

	got := make([]byte, 10)
	n, err = fs.Read(tid, inum, MaxFileSize-4, got)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, got[:4])

	_, err = fs.Read(tid, inum, MaxFileSize+1, got)
	assert.ErrorIs(t, err, io.EOF)
	_, err = fs.Write(tid, inum, MaxFileSize+1, got)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDeleteAndParams(t *testing.T) {
	fs := mkFS(t)
	free, err := fs.QueryParam(ptree.FreeTrees)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), free)

	tid := fs.Begin()
	inum, err := fs.CreateFile(tid)
	require.NoError(t, err)
	meta := bytes(int(ptree.MetadataSize))
	require.NoError(t, fs.WriteMetadata(tid, inum, meta))
	require.NoError(t, fs.Commit(tid))

	tid = fs.Begin()
	got := make([]byte, ptree.MetadataSize)
	require.NoError(t, fs.ReadMetadata(tid, inum, got))
	assert.Equal(t, meta, got)
	ok, err := fs.DeleteFile(tid, inum)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, fs.Commit(tid))

	free, err = fs.QueryParam(ptree.FreeTrees)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), free)
}
