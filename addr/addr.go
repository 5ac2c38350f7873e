package addr

import (
	"github.com/mit-pdos/go-ptree/common"
)

// Addr identifies a bit on the device.
//
// Sector is the sector containing the bit, and Off is the bit's offset within
// that sector.
type Addr struct {
	Sector common.Secnum
	Off    uint64 // offset in bits
}

func (a Addr) Flatid() uint64 {
	return a.Sector*common.NBITSECTOR + a.Off
}

func MkAddr(sec common.Secnum, off uint64) Addr {
	return Addr{Sector: sec, Off: off}
}

// MkBitAddr locates bit n of a bitmap that starts at sector start.
func MkBitAddr(start common.Secnum, n uint64) Addr {
	bit := n % common.NBITSECTOR
	i := n / common.NBITSECTOR
	return MkAddr(start+i, bit)
}
