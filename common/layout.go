package common

import (
	"fmt"
)

// Layout is the fixed on-disk arrangement of a device:
//
//	[ header | redo log | block bitmap | tree bitmap | tree records | data blocks ]
//	  0        1..L
//
// Every region is a whole number of sectors. Data block n occupies sectors
// DataStart + n*SectorsPerBlock onwards.
type Layout struct {
	NumSectors uint64
	LogSectors uint64
	MaxTrees   uint64

	BlockBitmapStart   Secnum
	BlockBitmapSectors uint64
	TreeBitmapStart    Secnum
	TreeBitmapSectors  uint64
	TreeArrayStart     Secnum
	TreeArraySectors   uint64
	DataStart          Secnum
	NumBlocks          uint64
}

func roundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

// MkLayout computes the layout for a device of numSectors sectors.
func MkLayout(numSectors uint64, logSectors uint64, maxTrees uint64) (Layout, error) {
	if logSectors < 3 {
		return Layout{}, fmt.Errorf("%w: log needs at least 3 sectors, got %d",
			ErrInvalidArgument, logSectors)
	}
	if maxTrees == 0 {
		return Layout{}, fmt.Errorf("%w: max trees must be positive", ErrInvalidArgument)
	}
	l := Layout{
		NumSectors: numSectors,
		LogSectors: logSectors,
		MaxTrees:   maxTrees,
	}
	l.TreeBitmapSectors = roundUp(maxTrees, NBITSECTOR)
	l.TreeArraySectors = roundUp(maxTrees, TNODESPERSECTOR)

	fixed := uint64(LogStart) + logSectors + l.TreeBitmapSectors + l.TreeArraySectors
	if numSectors <= fixed+1+SectorsPerBlock {
		return Layout{}, fmt.Errorf("%w: %d sectors cannot hold a %d-sector log and %d trees",
			ErrInvalidArgument, numSectors, logSectors, maxTrees)
	}
	avail := numSectors - fixed
	// each bitmap sector accounts for itself plus the blocks it covers
	l.BlockBitmapSectors = roundUp(avail, NBITSECTOR*SectorsPerBlock+1)
	l.NumBlocks = (avail - l.BlockBitmapSectors) / SectorsPerBlock
	if l.NumBlocks > l.BlockBitmapSectors*NBITSECTOR {
		l.NumBlocks = l.BlockBitmapSectors * NBITSECTOR
	}

	l.BlockBitmapStart = LogStart + logSectors
	l.TreeBitmapStart = l.BlockBitmapStart + l.BlockBitmapSectors
	l.TreeArrayStart = l.TreeBitmapStart + l.TreeBitmapSectors
	l.DataStart = l.TreeArrayStart + l.TreeArraySectors
	return l, nil
}

// LogEnd is the first sector past the redo log; the data region (everything
// a transaction may address) starts here.
func (l Layout) LogEnd() Secnum {
	return LogStart + l.LogSectors
}

// LogSector maps a logical log position onto its physical sector.
func (l Layout) LogSector(pos uint64) Secnum {
	return LogStart + pos%l.LogSectors
}

// MetaEnd is the first sector past the tree record array.
func (l Layout) MetaEnd() Secnum {
	return l.DataStart
}

func (l Layout) InDataRegion(s Secnum) bool {
	return s >= l.LogEnd() && s < l.NumSectors
}

// BlockSector is the first sector of data block n.
func (l Layout) BlockSector(n uint64) Secnum {
	return l.DataStart + n*SectorsPerBlock
}

// BlockNum inverts BlockSector.
func (l Layout) BlockNum(s Secnum) (uint64, bool) {
	if s < l.DataStart {
		return 0, false
	}
	off := s - l.DataStart
	if off%SectorsPerBlock != 0 || off/SectorsPerBlock >= l.NumBlocks {
		return 0, false
	}
	return off / SectorsPerBlock, true
}

// TreeSlot returns the sector holding tree t's record and the byte offset of
// the record within it.
func (l Layout) TreeSlot(t TreeNum) (Secnum, uint64) {
	n := uint64(t)
	return l.TreeArrayStart + n/TNODESPERSECTOR, (n % TNODESPERSECTOR) * TNODESZ
}

func (l Layout) String() string {
	return fmt.Sprintf("sectors=%d log=[%d,%d) blockmap=%d+%d treemap=%d+%d trees=%d+%d data=%d blocks=%d",
		l.NumSectors, LogStart, l.LogEnd(),
		l.BlockBitmapStart, l.BlockBitmapSectors,
		l.TreeBitmapStart, l.TreeBitmapSectors,
		l.TreeArrayStart, l.TreeArraySectors,
		l.DataStart, l.NumBlocks)
}
