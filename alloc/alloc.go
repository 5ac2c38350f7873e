package alloc

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/mit-pdos/go-ptree/addr"
	"github.com/mit-pdos/go-ptree/buftxn"
	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/util"
)

// Alloc hands out numbers [0, nbits) using an on-disk bitmap that starts at
// sector start. Bit n set means number n is in use. All bitmap access goes
// through the caller's transaction.
//
// The only in-memory state is a search hint; two concurrent transactions may
// pick the same free number, and the later commit wins.
type Alloc struct {
	lock    *sync.Mutex // protects next
	start   common.Secnum
	sectors uint64
	nbits   uint64
	next    uint64 // first number to try
}

func MkAlloc(start common.Secnum, nbits uint64) *Alloc {
	return &Alloc{
		lock:    new(sync.Mutex),
		start:   start,
		sectors: util.RoundUp(nbits, common.NBITSECTOR),
		nbits:   nbits,
		next:    0,
	}
}

func (a *Alloc) Len() uint64 {
	return a.nbits
}

func (a *Alloc) getNext() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.next
}

func (a *Alloc) setNext(n uint64) {
	a.lock.Lock()
	if n >= a.nbits {
		n = 0
	}
	a.next = n
	a.lock.Unlock()
}

func (a *Alloc) checkNum(n uint64) error {
	if n >= a.nbits {
		return fmt.Errorf("%w: %d is beyond the allocator's %d entries",
			common.ErrOutOfRange, n, a.nbits)
	}
	return nil
}

// AllocNum marks a free number used and returns it.
func (a *Alloc) AllocNum(btxn *buftxn.BufTxn) (uint64, error) {
	if a.nbits == 0 {
		return 0, fmt.Errorf("%w: empty allocator", common.ErrResourceExhausted)
	}
	hint := a.getNext()
	first := hint / common.NBITSECTOR
	// one extra pass over the first sector covers the bits before the hint
	for k := uint64(0); k <= a.sectors; k++ {
		i := (first + k) % a.sectors
		from := uint64(0)
		if k == 0 {
			from = hint % common.NBITSECTOR
		}
		b, err := btxn.ReadBuf(a.start + i)
		if err != nil {
			return 0, err
		}
		bit, ok := bitset.From(b.Words()).NextClear(uint(from))
		if !ok {
			continue
		}
		n := i*common.NBITSECTOR + uint64(bit)
		if n >= a.nbits {
			continue
		}
		util.DPrintf(10, "AllocNum: %d (hint %d)\n", n, hint)
		b.BitPut(uint64(bit), true)
		a.setNext(n + 1)
		return n, nil
	}
	return 0, fmt.Errorf("%w: all %d entries in use", common.ErrResourceExhausted, a.nbits)
}

// FreeNum clears number n and reports whether it was in use.
func (a *Alloc) FreeNum(btxn *buftxn.BufTxn, n uint64) (bool, error) {
	if err := a.checkNum(n); err != nil {
		return false, err
	}
	ad := addr.MkBitAddr(a.start, n)
	b, err := btxn.ReadBuf(ad.Sector)
	if err != nil {
		return false, err
	}
	was := b.BitIsSet(ad.Off)
	if was {
		b.BitPut(ad.Off, false)
	}
	return was, nil
}

func (a *Alloc) IsSet(btxn *buftxn.BufTxn, n uint64) (bool, error) {
	if err := a.checkNum(n); err != nil {
		return false, err
	}
	ad := addr.MkBitAddr(a.start, n)
	b, err := btxn.ReadBuf(ad.Sector)
	if err != nil {
		return false, err
	}
	return b.BitIsSet(ad.Off), nil
}

// NumFree counts unused numbers.
func (a *Alloc) NumFree(btxn *buftxn.BufTxn) (uint64, error) {
	var used uint64
	for i := uint64(0); i < a.sectors; i++ {
		b, err := btxn.ReadBuf(a.start + i)
		if err != nil {
			return 0, err
		}
		bs := bitset.From(b.Words())
		if (i+1)*common.NBITSECTOR > a.nbits {
			// ignore bits past the end
			for j := a.nbits - i*common.NBITSECTOR; j < common.NBITSECTOR; j++ {
				bs.Clear(uint(j))
			}
		}
		used += uint64(bs.Count())
	}
	return a.nbits - used, nil
}
