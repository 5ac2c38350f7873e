package disk

import (
	"errors"

	"github.com/mit-pdos/go-ptree/common"
)

// Block is one sector's worth of bytes
type Block = []byte

const BlockSize uint64 = common.SectorSize

var ErrOutOfBounds = errors.New("sector out of bounds")

// Disk provides synchronous access to a sector-addressed device.
//
// Implementations report failures as errors rather than panicking, so that the
// layers above can surface them as i/o failures.
type Disk interface {
	// ReadTo reads the sector at a into b
	//
	// Expects a < Size() and len(b) == BlockSize.
	ReadTo(a uint64, b Block) error

	// Write updates a sector by address
	//
	// Expects a < Size() and len(v) == BlockSize.
	Write(a uint64, v Block) error

	// Size reports how big the disk is, in sectors
	Size() uint64

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// Read allocates a sector buffer and reads a into it.
func Read(d Disk, a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := d.ReadTo(a, buf)
	return buf, err
}
