// Package ptree stores trees of fixed-size blocks on a logged disk.
//
// Each tree is named by a small integer and has a record holding metadata and
// block pointers: NDIRECT direct pointers, one indirect pointer (to a block of
// PtrsPerBlock pointers) and one double-indirect pointer. Blocks are
// allocated on first write; reading a block that was never written yields
// zeros. Every operation runs inside a caller-supplied transaction of the
// logged disk and becomes visible when that transaction commits.
package ptree

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/go-ptree/alloc"
	"github.com/mit-pdos/go-ptree/buftxn"
	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/jrnl"
	"github.com/mit-pdos/go-ptree/util"
)

type TreeId = common.TreeNum

var (
	ErrNoSuchTree = fmt.Errorf("%w: no such tree", common.ErrInvalidArgument)
	// ErrCorrupt means a block pointer does not name a data block.
	ErrCorrupt = fmt.Errorf("%w: corrupt block pointer", common.ErrIOFailure)
)

type Store struct {
	log    *jrnl.Log
	layout common.Layout
	trees  *alloc.Alloc
	blocks *alloc.Alloc
}

func MkStore(log *jrnl.Log) *Store {
	l := log.Layout()
	return &Store{
		log:    log,
		layout: l,
		trees:  alloc.MkAlloc(l.TreeBitmapStart, l.MaxTrees),
		blocks: alloc.MkAlloc(l.BlockBitmapStart, l.NumBlocks),
	}
}

func (s *Store) Log() *jrnl.Log {
	return s.log
}

// op runs f against a fresh buffer cache for transaction tid, and hands the
// modified sectors to the transaction only if f succeeds.
func (s *Store) op(tid jrnl.TransId, f func(btxn *buftxn.BufTxn) error) error {
	btxn := buftxn.Attach(s.log, tid)
	if err := f(btxn); err != nil {
		return err
	}
	return btxn.Flush()
}

func (s *Store) checkTree(btxn *buftxn.BufTxn, id TreeId) error {
	if uint64(id) >= s.layout.MaxTrees {
		return fmt.Errorf("%w: tree %d, max %d", common.ErrOutOfRange, id, s.layout.MaxTrees)
	}
	ok, err := s.trees.IsSet(btxn, uint64(id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchTree, id)
	}
	return nil
}

func (s *Store) readTNode(btxn *buftxn.BufTxn, id TreeId) (*TNode, error) {
	if err := s.checkTree(btxn, id); err != nil {
		return nil, err
	}
	sec, off := s.layout.TreeSlot(id)
	b, err := btxn.ReadBuf(sec)
	if err != nil {
		return nil, err
	}
	return DecodeTNode(b.Data[off : off+common.TNODESZ]), nil
}

func (s *Store) writeTNode(btxn *buftxn.BufTxn, id TreeId, n *TNode) error {
	sec, off := s.layout.TreeSlot(id)
	b, err := btxn.ReadBuf(sec)
	if err != nil {
		return err
	}
	copy(b.Data[off:off+common.TNODESZ], n.Encode())
	b.SetDirty()
	return nil
}

// CreateTree allocates a tree with no blocks and zeroed metadata.
func (s *Store) CreateTree(tid jrnl.TransId) (TreeId, error) {
	var id TreeId
	err := s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.trees.AllocNum(btxn)
		if err != nil {
			return err
		}
		id = TreeId(n)
		return s.writeTNode(btxn, id, new(TNode))
	})
	if err != nil {
		return 0, err
	}
	util.DPrintf(3, "CreateTree: %d in txn %d\n", id, tid)
	return id, nil
}

// DeleteTree frees every block of tree id, including pointer blocks, and
// the tree id itself. It returns false if the tree did not exist.
func (s *Store) DeleteTree(tid jrnl.TransId, id TreeId) (bool, error) {
	if uint64(id) >= s.layout.MaxTrees {
		return false, fmt.Errorf("%w: tree %d, max %d", common.ErrOutOfRange, id, s.layout.MaxTrees)
	}
	var existed bool
	err := s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.readTNode(btxn, id)
		if errors.Is(err, ErrNoSuchTree) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		if err := s.freeTree(btxn, n); err != nil {
			return err
		}
		if err := s.writeTNode(btxn, id, new(TNode)); err != nil {
			return err
		}
		_, err = s.trees.FreeNum(btxn, uint64(id))
		return err
	})
	if err != nil {
		return false, err
	}
	util.DPrintf(3, "DeleteTree: %d in txn %d (existed %v)\n", id, tid, existed)
	return existed, nil
}

func (s *Store) checkBlockArgs(blockId uint64, buf []byte) error {
	if blockId >= common.MaxBlockId {
		return fmt.Errorf("%w: block id %d, max %d", common.ErrInvalidArgument, blockId, common.MaxBlockId)
	}
	if uint64(len(buf)) < common.BlockSize {
		return fmt.Errorf("%w: buffer of %d bytes, need %d", common.ErrInvalidArgument, len(buf), common.BlockSize)
	}
	return nil
}

// ReadBlock fills buf with block blockId of tree id, or with zeros if that
// block was never written.
func (s *Store) ReadBlock(tid jrnl.TransId, id TreeId, blockId uint64, buf []byte) error {
	if err := s.checkBlockArgs(blockId, buf); err != nil {
		return err
	}
	return s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.readTNode(btxn, id)
		if err != nil {
			return err
		}
		ptr, err := s.lookup(btxn, n, blockId)
		if err != nil {
			return err
		}
		if ptr == common.NULLPTR {
			for i := uint64(0); i < common.BlockSize; i++ {
				buf[i] = 0
			}
			return nil
		}
		return btxn.ReadSectors(ptr, common.SectorsPerBlock, buf)
	})
}

// WriteBlock sets block blockId of tree id to the first BlockSize bytes of
// buf, allocating the block and any pointer blocks on the way.
func (s *Store) WriteBlock(tid jrnl.TransId, id TreeId, blockId uint64, buf []byte) error {
	if err := s.checkBlockArgs(blockId, buf); err != nil {
		return err
	}
	return s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.readTNode(btxn, id)
		if err != nil {
			return err
		}
		ptr, dirty, err := s.lookupAlloc(btxn, n, blockId)
		if err != nil {
			return err
		}
		if dirty {
			if err := s.writeTNode(btxn, id, n); err != nil {
				return err
			}
		}
		btxn.WriteSectors(ptr, common.SectorsPerBlock, buf)
		return nil
	})
}

func (s *Store) checkMetaArgs(buf []byte) error {
	if uint64(len(buf)) < MetadataSize {
		return fmt.Errorf("%w: metadata buffer of %d bytes, need %d",
			common.ErrInvalidArgument, len(buf), MetadataSize)
	}
	return nil
}

// ReadMetadata copies the tree's MetadataSize bytes of metadata into buf.
func (s *Store) ReadMetadata(tid jrnl.TransId, id TreeId, buf []byte) error {
	if err := s.checkMetaArgs(buf); err != nil {
		return err
	}
	return s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.readTNode(btxn, id)
		if err != nil {
			return err
		}
		copy(buf, n.Meta[:])
		return nil
	})
}

// WriteMetadata sets the tree's metadata from the first MetadataSize bytes of
// buf.
func (s *Store) WriteMetadata(tid jrnl.TransId, id TreeId, buf []byte) error {
	if err := s.checkMetaArgs(buf); err != nil {
		return err
	}
	return s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.readTNode(btxn, id)
		if err != nil {
			return err
		}
		copy(n.Meta[:], buf)
		return s.writeTNode(btxn, id, n)
	})
}

// HighestAllocatedBlockId returns the largest block id of tree id that has a
// block, or -1 if it has none.
func (s *Store) HighestAllocatedBlockId(tid jrnl.TransId, id TreeId) (int64, error) {
	var highest int64 = -1
	err := s.op(tid, func(btxn *buftxn.BufTxn) error {
		n, err := s.readTNode(btxn, id)
		if err != nil {
			return err
		}
		highest, err = s.highest(btxn, n)
		return err
	})
	return highest, err
}
