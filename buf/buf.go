// buf holds the sectors a transaction has loaded, and decodes the pointers
// and bits stored in them
package buf

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-ptree/common"
)

// A Buf is a transaction's copy of one sector
type Buf struct {
	Sector common.Secnum
	Data   []byte
	dirty  bool // has this sector been written to?
}

func MkBuf(sec common.Secnum, data []byte) *Buf {
	return &Buf{
		Sector: sec,
		Data:   data,
		dirty:  false,
	}
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

func (buf *Buf) ClearDirty() {
	buf.dirty = false
}

func (buf *Buf) BnumGet(off uint64) common.Secnum {
	dec := marshal.NewDec(buf.Data[off : off+common.PTRSZ])
	return dec.GetInt()
}

func (buf *Buf) BnumPut(off uint64, v common.Secnum) {
	enc := marshal.NewEnc(common.PTRSZ)
	enc.PutInt(v)
	copy(buf.Data[off:off+common.PTRSZ], enc.Finish())
	buf.SetDirty()
}

// BitIsSet reports bit off (a bit offset within the sector).
func (buf *Buf) BitIsSet(off uint64) bool {
	return buf.Data[off/8]&(1<<(off%8)) != 0
}

// Install 1 bit into dst, at offset bit. return new dst.
func installOneBit(set bool, dst byte, bit uint64) byte {
	if set {
		return dst | (1 << bit)
	}
	return dst & ^(1 << bit)
}

func (buf *Buf) BitPut(off uint64, set bool) {
	buf.Data[off/8] = installOneBit(set, buf.Data[off/8], off%8)
	buf.SetDirty()
}

// Words decodes the sector as little-endian 64-bit words.
func (buf *Buf) Words() []uint64 {
	dec := marshal.NewDec(buf.Data)
	return dec.GetInts(uint64(len(buf.Data)) / 8)
}

// Copy replaces the sector's contents.
func (buf *Buf) Copy(src []byte) {
	copy(buf.Data, src)
	buf.SetDirty()
}
