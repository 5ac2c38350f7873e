package buf

import (
	"sort"

	"github.com/mit-pdos/go-ptree/common"
)

//
// A map from sectors to bufs.
//

type BufMap struct {
	bufs map[common.Secnum]*Buf
}

func MkBufMap() *BufMap {
	return &BufMap{
		bufs: make(map[common.Secnum]*Buf),
	}
}

func (bmap *BufMap) Insert(buf *Buf) {
	bmap.bufs[buf.Sector] = buf
}

func (bmap *BufMap) Lookup(sec common.Secnum) *Buf {
	return bmap.bufs[sec]
}

func (bmap *BufMap) Del(sec common.Secnum) {
	delete(bmap.bufs, sec)
}

func (bmap *BufMap) Ndirty() uint64 {
	n := uint64(0)
	for _, b := range bmap.bufs {
		if b.dirty {
			n += 1
		}
	}
	return n
}

// DirtyBufs lists dirty bufs in sector order.
func (bmap *BufMap) DirtyBufs() []*Buf {
	var bufs []*Buf
	for _, b := range bmap.bufs {
		if b.dirty {
			bufs = append(bufs, b)
		}
	}
	sort.Slice(bufs, func(i, j int) bool { return bufs[i].Sector < bufs[j].Sector })
	return bufs
}
