package buftxn

import (
	"github.com/mit-pdos/go-ptree/buf"
	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/jrnl"
	"github.com/mit-pdos/go-ptree/util"
)

//
// Sector-buffer layer used by the tree store. A BufTxn caches the sectors an
// operation has read and modified within one logged-disk transaction; Flush
// hands the modified ones to the log.
//

type BufTxn struct {
	log  *jrnl.Log
	bufs *buf.BufMap // map of bufs read/written by this operation
	Id   jrnl.TransId
}

// Begin starts a new transaction on log.
func Begin(log *jrnl.Log) *BufTxn {
	return Attach(log, log.Begin())
}

// Attach works within an existing transaction.
func Attach(log *jrnl.Log, tid jrnl.TransId) *BufTxn {
	trans := &BufTxn{
		log:  log,
		bufs: buf.MkBufMap(),
		Id:   tid,
	}
	util.DPrintf(5, "Attach: %v\n", tid)
	return trans
}

// ReadBuf returns the operation's copy of sec, loading it on first use.
func (buftxn *BufTxn) ReadBuf(sec common.Secnum) (*buf.Buf, error) {
	b := buftxn.bufs.Lookup(sec)
	if b == nil {
		data := make([]byte, common.SectorSize)
		if _, err := buftxn.log.Read(buftxn.Id, sec, data); err != nil {
			return nil, err
		}
		b = buf.MkBuf(sec, data)
		buftxn.bufs.Insert(b)
	}
	return b, nil
}

// OverWrite replaces sec without reading it.
func (buftxn *BufTxn) OverWrite(sec common.Secnum, data []byte) {
	b := buftxn.bufs.Lookup(sec)
	if b == nil {
		b = buf.MkBuf(sec, util.CloneByteSlice(data))
		buftxn.bufs.Insert(b)
	} else {
		if len(data) != len(b.Data) {
			panic("overwrite")
		}
		copy(b.Data, data)
	}
	b.SetDirty()
}

// ReadSectors copies n consecutive sectors starting at sec into dst.
func (buftxn *BufTxn) ReadSectors(sec common.Secnum, n uint64, dst []byte) error {
	for i := uint64(0); i < n; i++ {
		b, err := buftxn.ReadBuf(sec + i)
		if err != nil {
			return err
		}
		copy(dst[i*common.SectorSize:(i+1)*common.SectorSize], b.Data)
	}
	return nil
}

// WriteSectors overwrites n consecutive sectors starting at sec from src.
func (buftxn *BufTxn) WriteSectors(sec common.Secnum, n uint64, src []byte) {
	for i := uint64(0); i < n; i++ {
		buftxn.OverWrite(sec+i, src[i*common.SectorSize:(i+1)*common.SectorSize])
	}
}

func (buftxn *BufTxn) NDirty() uint64 {
	return buftxn.bufs.Ndirty()
}

// Flush writes the dirty bufs into the transaction. The transaction is not
// committed.
func (buftxn *BufTxn) Flush() error {
	for _, b := range buftxn.bufs.DirtyBufs() {
		if err := buftxn.log.Write(buftxn.Id, b.Sector, b.Data); err != nil {
			return err
		}
		b.ClearDirty()
	}
	return nil
}

// Commit flushes and commits the transaction.
func (buftxn *BufTxn) Commit() error {
	if err := buftxn.Flush(); err != nil {
		return err
	}
	util.DPrintf(5, "Commit %d\n", buftxn.Id)
	return buftxn.log.Commit(buftxn.Id)
}

func (buftxn *BufTxn) Abort() error {
	return buftxn.log.Abort(buftxn.Id)
}
