package ptree

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-ptree/common"
)

// MetadataSize is the size of the metadata area of a tree.
const MetadataSize = 2 * common.METADATASZ

const nptrs = common.NDIRECT + common.NINDIRECT + common.NDOUBLEINDIRECT

// TNode is a tree's root record.
//
// A pointer is the first sector of a data block; 0 means no block.
type TNode struct {
	Meta           [MetadataSize]byte
	Direct         [common.NDIRECT]common.Secnum
	Indirect       common.Secnum
	DoubleIndirect common.Secnum
}

func (n *TNode) Encode() []byte {
	b := make([]byte, common.TNODESZ)
	copy(b, n.Meta[:])
	enc := marshal.NewEnc(nptrs * common.PTRSZ)
	enc.PutInts(n.Direct[:])
	enc.PutInt(n.Indirect)
	enc.PutInt(n.DoubleIndirect)
	copy(b[MetadataSize:], enc.Finish())
	return b
}

func DecodeTNode(b []byte) *TNode {
	n := new(TNode)
	copy(n.Meta[:], b[:MetadataSize])
	dec := marshal.NewDec(b[MetadataSize : MetadataSize+nptrs*common.PTRSZ])
	copy(n.Direct[:], dec.GetInts(common.NDIRECT))
	n.Indirect = dec.GetInt()
	n.DoubleIndirect = dec.GetInt()
	return n
}

// IsEmpty reports whether the tree has no blocks.
func (n *TNode) IsEmpty() bool {
	for _, p := range n.Direct {
		if p != common.NULLPTR {
			return false
		}
	}
	return n.Indirect == common.NULLPTR && n.DoubleIndirect == common.NULLPTR
}

func (n *TNode) String() string {
	return fmt.Sprintf("direct=%v indirect=%d double=%d", n.Direct, n.Indirect, n.DoubleIndirect)
}
