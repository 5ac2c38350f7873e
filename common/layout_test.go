package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutRegionsAreContiguous(t *testing.T) {
	assert := assert.New(t)
	l, err := MkLayout(20000, 64, 40)
	assert.NoError(err)

	assert.Equal(Secnum(65), l.LogEnd())
	assert.Equal(l.LogEnd(), l.BlockBitmapStart)
	assert.Equal(l.BlockBitmapStart+l.BlockBitmapSectors, l.TreeBitmapStart)
	assert.Equal(l.TreeBitmapStart+l.TreeBitmapSectors, l.TreeArrayStart)
	assert.Equal(l.TreeArrayStart+l.TreeArraySectors, l.DataStart)
	assert.Equal(uint64(3), l.TreeArraySectors, "16 records per sector")
	assert.LessOrEqual(uint64(l.BlockSector(l.NumBlocks)), l.NumSectors)
}

func TestLayoutBlockNumbering(t *testing.T) {
	assert := assert.New(t)
	l, err := MkLayout(4096, 16, 16)
	assert.NoError(err)

	for _, n := range []uint64{0, 1, l.NumBlocks - 1} {
		s := l.BlockSector(n)
		back, ok := l.BlockNum(s)
		assert.True(ok)
		assert.Equal(n, back)
	}
	_, ok := l.BlockNum(l.BlockSector(1) + 1)
	assert.False(ok, "second sector of a block is not a block start")
	_, ok = l.BlockNum(l.TreeArrayStart)
	assert.False(ok)
}

func TestLayoutDataRegion(t *testing.T) {
	assert := assert.New(t)
	l, err := MkLayout(4096, 16, 16)
	assert.NoError(err)

	assert.False(l.InDataRegion(HeaderSector))
	assert.False(l.InDataRegion(l.LogEnd() - 1))
	assert.True(l.InDataRegion(l.LogEnd()))
	assert.True(l.InDataRegion(4095))
	assert.False(l.InDataRegion(4096))
	assert.Equal(LogStart+3, l.LogSector(16+3), "log positions wrap")
}

func TestLayoutTooSmall(t *testing.T) {
	_, err := MkLayout(20, 16, 16)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	_, err = MkLayout(4096, 2, 16)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
