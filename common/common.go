package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	// SectorSize is the device's atomicity granularity.
	SectorSize uint64 = disk.BlockSize
	NBITSECTOR uint64 = SectorSize * 8

	SectorsPerBlock uint64 = 2
	BlockSize       uint64 = SectorSize * SectorsPerBlock

	PTRSZ            uint64 = 8 // on-disk pointer size
	PtrsPerSector    uint64 = SectorSize / PTRSZ
	PtrsPerBlock     uint64 = BlockSize / PTRSZ
	NDIRECT          uint64 = 8
	NINDIRECT        uint64 = 1
	NDOUBLEINDIRECT  uint64 = 1
	METADATASZ       uint64 = 64 // per metadata field; a record carries two
	TNODESZ          uint64 = 256
	TNODESPERSECTOR  uint64 = SectorSize / TNODESZ
	DefaultLogSize   uint64 = 1024
	DefaultMaxTrees  uint64 = 512
	HeaderSector     Secnum = 0
	LogStart         Secnum = 1
	NULLPTR          Secnum = 0
	NULLTRANS        uint64 = 0
)

// Secnum is a physical sector number on the device.
type Secnum = uint64

// TreeNum identifies a tree slot in the tree record array.
type TreeNum uint64

// MaxBlockId is the number of addressable block ids in one tree:
// direct + indirect*fanout + double-indirect*fanout^2.
const MaxBlockId uint64 = NDIRECT + NINDIRECT*PtrsPerBlock +
	NDOUBLEINDIRECT*PtrsPerBlock*PtrsPerBlock
