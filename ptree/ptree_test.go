package ptree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/jrnl"
)

type StoreSuite struct {
	suite.Suite
	d    disk.Disk
	opts jrnl.Options
	log  *jrnl.Log
	s    *Store
}

func (suite *StoreSuite) SetupTest() {
	suite.mkStore(3000, 128)
}

func (suite *StoreSuite) mkStore(sectors uint64, logSectors uint64) {
	if suite.log != nil {
		suite.log.Shutdown()
	}
	suite.d = disk.NewMemDisk(sectors)
	suite.opts = jrnl.Options{LogSectors: logSectors, MaxTrees: 16, Workers: 4}
	_, err := jrnl.Format(suite.d, suite.opts)
	suite.Require().NoError(err)
	suite.reopen()
}

func (suite *StoreSuite) reopen() {
	log, err := jrnl.Open(suite.d, suite.opts)
	suite.Require().NoError(err)
	suite.log = log
	suite.s = MkStore(log)
}

func (suite *StoreSuite) TearDownTest() {
	suite.log.Shutdown()
	suite.log = nil
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

// do runs f in its own transaction and commits it.
func (suite *StoreSuite) do(f func(tid jrnl.TransId)) {
	tid := suite.log.Begin()
	f(tid)
	suite.Require().NoError(suite.log.Commit(tid))
}

func (suite *StoreSuite) create() TreeId {
	var id TreeId
	suite.do(func(tid jrnl.TransId) {
		var err error
		id, err = suite.s.CreateTree(tid)
		suite.Require().NoError(err)
	})
	return id
}

func randBlock() []byte {
	b := make([]byte, common.BlockSize)
	rand.Read(b)
	return b
}

func (suite *StoreSuite) write(id TreeId, blockId uint64, b []byte) {
	suite.do(func(tid jrnl.TransId) {
		suite.Require().NoError(suite.s.WriteBlock(tid, id, blockId, b))
	})
}

func (suite *StoreSuite) read(id TreeId, blockId uint64) []byte {
	b := make([]byte, common.BlockSize)
	suite.do(func(tid jrnl.TransId) {
		suite.Require().NoError(suite.s.ReadBlock(tid, id, blockId, b))
	})
	return b
}

func (suite *StoreSuite) param(p Param) uint64 {
	v, err := suite.s.QueryParam(p)
	suite.Require().NoError(err)
	return v
}

func (suite *StoreSuite) highest(id TreeId) int64 {
	var h int64
	suite.do(func(tid jrnl.TransId) {
		var err error
		h, err = suite.s.HighestAllocatedBlockId(tid, id)
		suite.Require().NoError(err)
	})
	return h
}

var blockIds = []uint64{
	0,
	common.NDIRECT - 1,
	common.NDIRECT,
	common.NDIRECT + common.PtrsPerBlock - 1,
	common.NDIRECT + common.PtrsPerBlock,
	common.NDIRECT + common.PtrsPerBlock + 5*common.PtrsPerBlock + 7,
	common.MaxBlockId - 1,
}

func (suite *StoreSuite) TestBlockRoundTrip() {
	id := suite.create()
	suite.Equal(int64(-1), suite.highest(id))

	written := make(map[uint64][]byte)
	for _, bid := range blockIds {
		b := randBlock()
		suite.write(id, bid, b)
		written[bid] = b
		suite.Equal(int64(bid), suite.highest(id))
	}
	for bid, b := range written {
		suite.Equal(b, suite.read(id, bid), "block %d", bid)
	}

	suite.Require().NoError(suite.log.Shutdown())
	suite.reopen()
	for bid, b := range written {
		suite.Equal(b, suite.read(id, bid), "block %d after reopen", bid)
	}
}

func (suite *StoreSuite) TestOverwriteBlock() {
	id := suite.create()
	suite.write(id, 3, randBlock())
	free := suite.param(FreeBlocks)
	b := randBlock()
	suite.write(id, 3, b)
	suite.Equal(b, suite.read(id, 3))
	suite.Equal(free, suite.param(FreeBlocks), "overwrite allocates nothing")
}

func (suite *StoreSuite) TestUnallocatedReadsZero() {
	id := suite.create()
	suite.write(id, common.NDIRECT+common.PtrsPerBlock, randBlock())
	for _, bid := range []uint64{0, common.NDIRECT + 3, common.NDIRECT + common.PtrsPerBlock + 1,
		common.MaxBlockId - 1} {
		b := make([]byte, common.BlockSize)
		b[0] = 0xff
		suite.do(func(tid jrnl.TransId) {
			suite.Require().NoError(suite.s.ReadBlock(tid, id, bid, b))
		})
		suite.Equal(make([]byte, common.BlockSize), b, "block %d", bid)
	}
}

func (suite *StoreSuite) TestLargeBufferUsesPrefix() {
	id := suite.create()
	big := make([]byte, common.BlockSize+100)
	rand.Read(big)
	suite.write(id, 1, big)
	suite.Equal(big[:common.BlockSize], suite.read(id, 1))
}

func (suite *StoreSuite) TestDeleteReleasesSpace() {
	total := suite.param(TotalBlocks)
	suite.Equal(total, suite.param(FreeBlocks))
	trees := suite.param(FreeTrees)

	id := suite.create()
	suite.Equal(trees-1, suite.param(FreeTrees))
	for _, bid := range blockIds {
		suite.write(id, bid, randBlock())
	}
	// 7 data blocks, 1 indirect block, 1 double-indirect block and 3
	// indirect blocks below it
	suite.Equal(total-12, suite.param(FreeBlocks))

	suite.do(func(tid jrnl.TransId) {
		ok, err := suite.s.DeleteTree(tid, id)
		suite.Require().NoError(err)
		suite.True(ok)
	})
	suite.Equal(total, suite.param(FreeBlocks))
	suite.Equal(trees, suite.param(FreeTrees))

	suite.do(func(tid jrnl.TransId) {
		ok, err := suite.s.DeleteTree(tid, id)
		suite.Require().NoError(err)
		suite.False(ok, "already deleted")
	})
}

func (suite *StoreSuite) TestDeletedTreeIsGone() {
	id := suite.create()
	suite.write(id, 0, randBlock())
	suite.do(func(tid jrnl.TransId) {
		_, err := suite.s.DeleteTree(tid, id)
		suite.Require().NoError(err)
	})

	tid := suite.log.Begin()
	err := suite.s.ReadBlock(tid, id, 0, make([]byte, common.BlockSize))
	suite.ErrorIs(err, ErrNoSuchTree)
	suite.ErrorIs(err, common.ErrInvalidArgument)
	_, err = suite.s.HighestAllocatedBlockId(tid, id)
	suite.ErrorIs(err, ErrNoSuchTree)
	suite.NoError(suite.log.Abort(tid))

	// every slot, including the one just freed, starts out empty
	var id2 TreeId
	for i := 0; i < 16; i++ {
		id2 = suite.create()
		suite.Equal(int64(-1), suite.highest(id2))
	}
	suite.Equal(make([]byte, common.BlockSize), suite.read(id2, 0))
}

func (suite *StoreSuite) TestMetadata() {
	id := suite.create()
	meta := make([]byte, MetadataSize)
	suite.do(func(tid jrnl.TransId) {
		suite.Require().NoError(suite.s.ReadMetadata(tid, id, meta))
	})
	suite.Equal(make([]byte, MetadataSize), meta)

	rand.Read(meta)
	suite.do(func(tid jrnl.TransId) {
		suite.Require().NoError(suite.s.WriteMetadata(tid, id, meta))
	})
	suite.write(id, common.NDIRECT, randBlock())

	got := make([]byte, MetadataSize)
	suite.do(func(tid jrnl.TransId) {
		suite.Require().NoError(suite.s.ReadMetadata(tid, id, got))
		suite.ErrorIs(suite.s.ReadMetadata(tid, id, make([]byte, 10)), common.ErrInvalidArgument)
	})
	suite.Equal(meta, got, "block writes leave metadata alone")
}

func (suite *StoreSuite) TestInvalidArguments() {
	id := suite.create()
	tid := suite.log.Begin()
	defer suite.log.Abort(tid)
	buf := make([]byte, common.BlockSize)

	suite.ErrorIs(suite.s.WriteBlock(tid, id, common.MaxBlockId, buf), common.ErrInvalidArgument)
	suite.ErrorIs(suite.s.ReadBlock(tid, id, common.MaxBlockId, buf), common.ErrInvalidArgument)
	suite.ErrorIs(suite.s.WriteBlock(tid, id, 0, buf[:100]), common.ErrInvalidArgument)
	suite.ErrorIs(suite.s.ReadBlock(tid, id, 0, buf[:100]), common.ErrInvalidArgument)
	suite.ErrorIs(suite.s.ReadBlock(tid, TreeId(16), 0, buf), common.ErrOutOfRange)
	_, err := suite.s.DeleteTree(tid, TreeId(16))
	suite.ErrorIs(err, common.ErrOutOfRange)
	suite.ErrorIs(suite.s.WriteBlock(tid, id+1, 0, buf), ErrNoSuchTree)
	suite.ErrorIs(suite.s.WriteBlock(tid+1000, id, 0, buf), common.ErrInvalidArgument)
}

func (suite *StoreSuite) TestAbortLeavesNoTrace() {
	free := suite.param(FreeBlocks)
	tid := suite.log.Begin()
	id, err := suite.s.CreateTree(tid)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.s.WriteBlock(tid, id, 0, randBlock()))
	suite.Require().NoError(suite.log.Abort(tid))

	suite.Equal(free, suite.param(FreeBlocks))
	suite.Equal(uint64(16), suite.param(FreeTrees))
}

func (suite *StoreSuite) TestTreeExhaustion() {
	for i := 0; i < 16; i++ {
		suite.create()
	}
	suite.Zero(suite.param(FreeTrees))
	tid := suite.log.Begin()
	_, err := suite.s.CreateTree(tid)
	suite.ErrorIs(err, common.ErrResourceExhausted)
	suite.NoError(suite.log.Abort(tid))
}

func (suite *StoreSuite) TestBlockExhaustion() {
	suite.mkStore(200, 32)
	total := suite.param(TotalBlocks)
	id := suite.create()
	for i := uint64(0); i < common.NDIRECT; i++ {
		suite.write(id, i, randBlock())
	}
	// the indirect block takes one more
	n := total - common.NDIRECT - 1
	for i := uint64(0); i < n; i++ {
		suite.write(id, common.NDIRECT+i, randBlock())
	}
	suite.Zero(suite.param(FreeBlocks))

	tid := suite.log.Begin()
	err := suite.s.WriteBlock(tid, id, common.NDIRECT+n, randBlock())
	suite.ErrorIs(err, common.ErrResourceExhausted)
	suite.NoError(suite.log.Abort(tid))

	suite.do(func(tid jrnl.TransId) {
		ok, err := suite.s.DeleteTree(tid, id)
		suite.Require().NoError(err)
		suite.True(ok)
	})
	suite.Equal(total, suite.param(FreeBlocks))
}

func (suite *StoreSuite) TestQueryParam() {
	suite.Equal(common.BlockSize, suite.param(BlockSize))
	suite.Equal(common.MaxBlockId, suite.param(MaxBlockId))
	suite.Equal(uint64(16), suite.param(MaxTrees))
	suite.Equal(suite.s.layout.NumBlocks, suite.param(TotalBlocks))
	_, err := suite.s.QueryParam(Param(99))
	suite.ErrorIs(err, common.ErrInvalidArgument)
	suite.Zero(suite.log.Stats().Active, "query transactions are aborted")
}
