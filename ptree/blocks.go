package ptree

import (
	"fmt"

	"github.com/mit-pdos/go-ptree/buftxn"
	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/util"
)

var zeroSector = make([]byte, common.SectorSize)

// ptrLoc is the sector and byte offset of entry idx of the pointer block
// starting at sector blk.
func ptrLoc(blk common.Secnum, idx uint64) (common.Secnum, uint64) {
	return blk + idx/common.PtrsPerSector, (idx % common.PtrsPerSector) * common.PTRSZ
}

func getPtr(btxn *buftxn.BufTxn, blk common.Secnum, idx uint64) (common.Secnum, error) {
	sec, off := ptrLoc(blk, idx)
	b, err := btxn.ReadBuf(sec)
	if err != nil {
		return 0, err
	}
	return b.BnumGet(off), nil
}

func putPtr(btxn *buftxn.BufTxn, blk common.Secnum, idx uint64, v common.Secnum) error {
	sec, off := ptrLoc(blk, idx)
	b, err := btxn.ReadBuf(sec)
	if err != nil {
		return err
	}
	b.BnumPut(off, v)
	return nil
}

// allocBlock takes a free data block and zeroes it.
func (s *Store) allocBlock(btxn *buftxn.BufTxn) (common.Secnum, error) {
	n, err := s.blocks.AllocNum(btxn)
	if err != nil {
		return 0, err
	}
	sec := s.layout.BlockSector(n)
	for i := uint64(0); i < common.SectorsPerBlock; i++ {
		btxn.OverWrite(sec+i, zeroSector)
	}
	util.DPrintf(10, "allocBlock: block %d at sector %d\n", n, sec)
	return sec, nil
}

func (s *Store) freeBlock(btxn *buftxn.BufTxn, ptr common.Secnum) error {
	n, ok := s.layout.BlockNum(ptr)
	if !ok {
		return fmt.Errorf("%w: %d", ErrCorrupt, ptr)
	}
	_, err := s.blocks.FreeNum(btxn, n)
	return err
}

// path splits a block id into the pointer-block indices that lead to it.
// level 0 is direct (idx[0] is the slot in the record), level 1 indirect,
// level 2 double-indirect.
func path(blockId uint64) (level int, idx [2]uint64) {
	if blockId < common.NDIRECT {
		return 0, [2]uint64{blockId, 0}
	}
	b := blockId - common.NDIRECT
	if b < common.PtrsPerBlock {
		return 1, [2]uint64{b, 0}
	}
	b -= common.PtrsPerBlock
	return 2, [2]uint64{b / common.PtrsPerBlock, b % common.PtrsPerBlock}
}

// lookup returns the pointer for blockId, or NULLPTR if it or a pointer
// block on the way is missing.
func (s *Store) lookup(btxn *buftxn.BufTxn, n *TNode, blockId uint64) (common.Secnum, error) {
	level, idx := path(blockId)
	switch level {
	case 0:
		return n.Direct[idx[0]], nil
	case 1:
		if n.Indirect == common.NULLPTR {
			return common.NULLPTR, nil
		}
		return getPtr(btxn, n.Indirect, idx[0])
	default:
		if n.DoubleIndirect == common.NULLPTR {
			return common.NULLPTR, nil
		}
		ind, err := getPtr(btxn, n.DoubleIndirect, idx[0])
		if err != nil || ind == common.NULLPTR {
			return common.NULLPTR, err
		}
		return getPtr(btxn, ind, idx[1])
	}
}

// ensurePtr returns entry idx of pointer block blk, allocating a block for it
// if it is empty.
func (s *Store) ensurePtr(btxn *buftxn.BufTxn, blk common.Secnum, idx uint64) (common.Secnum, error) {
	p, err := getPtr(btxn, blk, idx)
	if err != nil || p != common.NULLPTR {
		return p, err
	}
	p, err = s.allocBlock(btxn)
	if err != nil {
		return 0, err
	}
	return p, putPtr(btxn, blk, idx, p)
}

// ensureRoot is ensurePtr for a pointer held in the tree record.
func (s *Store) ensureRoot(btxn *buftxn.BufTxn, p *common.Secnum) (bool, error) {
	if *p != common.NULLPTR {
		return false, nil
	}
	sec, err := s.allocBlock(btxn)
	if err != nil {
		return false, err
	}
	*p = sec
	return true, nil
}

// lookupAlloc is lookup that allocates missing blocks. It reports whether the
// record n was modified.
func (s *Store) lookupAlloc(btxn *buftxn.BufTxn, n *TNode, blockId uint64) (common.Secnum, bool, error) {
	level, idx := path(blockId)
	switch level {
	case 0:
		dirty, err := s.ensureRoot(btxn, &n.Direct[idx[0]])
		return n.Direct[idx[0]], dirty, err
	case 1:
		dirty, err := s.ensureRoot(btxn, &n.Indirect)
		if err != nil {
			return 0, false, err
		}
		p, err := s.ensurePtr(btxn, n.Indirect, idx[0])
		return p, dirty, err
	default:
		dirty, err := s.ensureRoot(btxn, &n.DoubleIndirect)
		if err != nil {
			return 0, false, err
		}
		ind, err := s.ensurePtr(btxn, n.DoubleIndirect, idx[0])
		if err != nil {
			return 0, false, err
		}
		p, err := s.ensurePtr(btxn, ind, idx[1])
		return p, dirty, err
	}
}

// highestIn returns the largest index of a non-null entry in pointer block
// blk, or -1.
func highestIn(btxn *buftxn.BufTxn, blk common.Secnum) (int64, error) {
	for i := int64(common.PtrsPerBlock) - 1; i >= 0; i-- {
		p, err := getPtr(btxn, blk, uint64(i))
		if err != nil {
			return 0, err
		}
		if p != common.NULLPTR {
			return i, nil
		}
	}
	return -1, nil
}

func (s *Store) highest(btxn *buftxn.BufTxn, n *TNode) (int64, error) {
	if n.DoubleIndirect != common.NULLPTR {
		for i := int64(common.PtrsPerBlock) - 1; i >= 0; i-- {
			ind, err := getPtr(btxn, n.DoubleIndirect, uint64(i))
			if err != nil {
				return 0, err
			}
			if ind == common.NULLPTR {
				continue
			}
			j, err := highestIn(btxn, ind)
			if err != nil {
				return 0, err
			}
			if j >= 0 {
				return int64(common.NDIRECT+common.PtrsPerBlock) + i*int64(common.PtrsPerBlock) + j, nil
			}
		}
	}
	if n.Indirect != common.NULLPTR {
		j, err := highestIn(btxn, n.Indirect)
		if err != nil {
			return 0, err
		}
		if j >= 0 {
			return int64(common.NDIRECT) + j, nil
		}
	}
	for i := int64(common.NDIRECT) - 1; i >= 0; i-- {
		if n.Direct[i] != common.NULLPTR {
			return i, nil
		}
	}
	return -1, nil
}

// freeIndirect frees every block named in pointer block blk, and then blk
// itself.
func (s *Store) freeIndirect(btxn *buftxn.BufTxn, blk common.Secnum) error {
	for i := uint64(0); i < common.PtrsPerBlock; i++ {
		p, err := getPtr(btxn, blk, i)
		if err != nil {
			return err
		}
		if p == common.NULLPTR {
			continue
		}
		if err := s.freeBlock(btxn, p); err != nil {
			return err
		}
	}
	return s.freeBlock(btxn, blk)
}

func (s *Store) freeTree(btxn *buftxn.BufTxn, n *TNode) error {
	for _, p := range n.Direct {
		if p != common.NULLPTR {
			if err := s.freeBlock(btxn, p); err != nil {
				return err
			}
		}
	}
	if n.Indirect != common.NULLPTR {
		if err := s.freeIndirect(btxn, n.Indirect); err != nil {
			return err
		}
	}
	if n.DoubleIndirect != common.NULLPTR {
		for i := uint64(0); i < common.PtrsPerBlock; i++ {
			ind, err := getPtr(btxn, n.DoubleIndirect, i)
			if err != nil {
				return err
			}
			if ind == common.NULLPTR {
				continue
			}
			if err := s.freeIndirect(btxn, ind); err != nil {
				return err
			}
		}
		if err := s.freeBlock(btxn, n.DoubleIndirect); err != nil {
			return err
		}
	}
	return nil
}
