package wal

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/txn"
)

// RecordSectors is the log space a transaction with n writes needs.
func RecordSectors(n uint64) uint64 {
	return n + 2
}

func checksum(hdr []byte, data [][]byte) uint64 {
	h := xxhash.New()
	h.Write(hdr)
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum64()
}

func encodeCommit(pos LogPosition, tid txn.TransId, sum uint64) []byte {
	enc := marshal.NewEnc(common.SectorSize)
	enc.PutInt(COMMITMAGIC)
	enc.PutInt(pos)
	enc.PutInt(tid)
	enc.PutInt(sum)
	return enc.Finish()
}

// encodeRecord lays out t as a record starting at pos: header, data sectors,
// commit sector.
func encodeRecord(pos LogPosition, t *txn.Txn) [][]byte {
	n := t.NumWrites()
	enc := marshal.NewEnc(common.SectorSize)
	enc.PutInt(RECMAGIC)
	enc.PutInt(pos)
	enc.PutInt(n)
	enc.PutInt(t.Id)
	enc.PutInts(t.Sectors())
	hdr := enc.Finish()

	secs := make([][]byte, 0, RecordSectors(n))
	secs = append(secs, hdr)
	t.Updates(func(_ common.Secnum, buf []byte) {
		secs = append(secs, buf)
	})
	secs = append(secs, encodeCommit(pos, t.Id, checksum(hdr, secs[1:])))
	return secs
}

type recordHeader struct {
	pos   LogPosition
	tid   txn.TransId
	addrs []common.Secnum
}

func decodeRecordHeader(pos LogPosition, b []byte) (recordHeader, error) {
	dec := marshal.NewDec(b)
	if dec.GetInt() != RECMAGIC {
		return recordHeader{}, fmt.Errorf("%w: no record header at %d", ErrBadRecord, pos)
	}
	h := recordHeader{pos: dec.GetInt()}
	if h.pos != pos {
		return recordHeader{}, fmt.Errorf("%w: stale record header at %d (written for %d)",
			ErrBadRecord, pos, h.pos)
	}
	n := dec.GetInt()
	if n > MaxWrites {
		return recordHeader{}, fmt.Errorf("%w: record at %d claims %d writes", ErrBadRecord, pos, n)
	}
	h.tid = dec.GetInt()
	h.addrs = dec.GetInts(n)
	return h, nil
}

func checkCommit(h recordHeader, hdr []byte, data [][]byte, b []byte) error {
	dec := marshal.NewDec(b)
	if dec.GetInt() != COMMITMAGIC {
		return fmt.Errorf("%w: record at %d has no commit sector", ErrBadRecord, h.pos)
	}
	if dec.GetInt() != h.pos || dec.GetInt() != h.tid {
		return fmt.Errorf("%w: commit sector of record at %d does not match its header",
			ErrBadRecord, h.pos)
	}
	if dec.GetInt() != checksum(hdr, data) {
		return fmt.Errorf("%w: checksum mismatch in record at %d", ErrBadRecord, h.pos)
	}
	return nil
}
