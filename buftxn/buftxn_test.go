package buftxn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/jrnl"
)

func mkLog(t *testing.T) *jrnl.Log {
	d := disk.NewMemDisk(500)
	opts := jrnl.Options{LogSectors: 32, MaxTrees: 16, Workers: 2}
	_, err := jrnl.Format(d, opts)
	require.NoError(t, err)
	l, err := jrnl.Open(d, opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Shutdown() })
	return l
}

func TestBufsFlushOnCommit(t *testing.T) {
	l := mkLog(t)
	sec := l.Layout().DataStart

	btxn := Begin(l)
	b, err := btxn.ReadBuf(sec)
	require.NoError(t, err)
	b.BnumPut(0, 42)
	b.BitPut(100, true)
	assert.Equal(t, uint64(1), btxn.NDirty())
	require.NoError(t, btxn.Commit())

	btxn = Begin(l)
	b, err = btxn.ReadBuf(sec)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), b.BnumGet(0))
	assert.True(t, b.BitIsSet(100))
	assert.Zero(t, btxn.NDirty())
	require.NoError(t, btxn.Abort())
}

func TestSectorsRoundTrip(t *testing.T) {
	l := mkLog(t)
	sec := l.Layout().DataStart
	src := make([]byte, 2*common.SectorSize)
	for i := range src {
		src[i] = byte(i % 251)
	}

	btxn := Begin(l)
	btxn.WriteSectors(sec, 2, src)
	require.NoError(t, btxn.Flush())

	// a second BufTxn in the same transaction sees the flushed writes
	other := Attach(l, btxn.Id)
	dst := make([]byte, 2*common.SectorSize)
	require.NoError(t, other.ReadSectors(sec, 2, dst))
	assert.Equal(t, src, dst)
	require.NoError(t, btxn.Abort())
}

func TestReadOutOfRange(t *testing.T) {
	l := mkLog(t)
	btxn := Begin(l)
	_, err := btxn.ReadBuf(common.HeaderSector)
	assert.ErrorIs(t, err, common.ErrOutOfRange)
	require.NoError(t, btxn.Abort())
}
