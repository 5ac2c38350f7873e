package ptree

import (
	"fmt"

	"github.com/mit-pdos/go-ptree/buftxn"
	"github.com/mit-pdos/go-ptree/common"
)

type Param int

const (
	FreeBlocks Param = iota
	FreeTrees
	MaxTrees
	TotalBlocks
	BlockSize
	MaxBlockId
)

var paramNames = map[Param]string{
	FreeBlocks:  "free-blocks",
	FreeTrees:   "free-trees",
	MaxTrees:    "max-trees",
	TotalBlocks: "total-blocks",
	BlockSize:   "block-size",
	MaxBlockId:  "max-block-id",
}

func (p Param) String() string {
	if name, ok := paramNames[p]; ok {
		return name
	}
	return fmt.Sprintf("param(%d)", int(p))
}

// Params lists every parameter QueryParam understands.
func Params() []Param {
	return []Param{FreeBlocks, FreeTrees, MaxTrees, TotalBlocks, BlockSize, MaxBlockId}
}

// QueryParam reports a store-wide parameter. Free counts are read in a
// private transaction that is aborted afterwards.
func (s *Store) QueryParam(p Param) (uint64, error) {
	switch p {
	case MaxTrees:
		return s.layout.MaxTrees, nil
	case TotalBlocks:
		return s.layout.NumBlocks, nil
	case BlockSize:
		return common.BlockSize, nil
	case MaxBlockId:
		return common.MaxBlockId, nil
	case FreeBlocks, FreeTrees:
	default:
		return 0, fmt.Errorf("%w: unknown parameter %v", common.ErrInvalidArgument, p)
	}

	btxn := buftxn.Begin(s.log)
	defer btxn.Abort()
	if p == FreeBlocks {
		return s.blocks.NumFree(btxn)
	}
	return s.trees.NumFree(btxn)
}
