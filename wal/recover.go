package wal

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/txn"
	"github.com/mit-pdos/go-ptree/util"
)

// Recovery summarizes a recovery scan.
type Recovery struct {
	Start   LogPosition // checkpoint the scan began at
	End     LogPosition // end of the last valid record
	Records int
	Sectors uint64
	// MaxTid is the largest transaction id found, 0 if none.
	MaxTid txn.TransId
	// Discarded is set when the scan stopped before the persisted head.
	Discarded bool
}

func readLog(io *obj.IO, l common.Layout, pos LogPosition) ([]byte, error) {
	b := make([]byte, common.SectorSize)
	err := io.ReadSector(l.LogSector(pos), b)
	return b, err
}

// readRecord reads and validates the record at pos, which must end by head.
func readRecord(io *obj.IO, l common.Layout, pos LogPosition, head LogPosition) (*txn.Txn, error) {
	if head-pos < RecordSectors(0) {
		return nil, ErrBadRecord
	}
	hdr, err := readLog(io, l, pos)
	if err != nil {
		return nil, err
	}
	rh, err := decodeRecordHeader(pos, hdr)
	if err != nil {
		return nil, err
	}
	n := uint64(len(rh.addrs))
	if RecordSectors(n) > head-pos {
		return nil, ErrBadRecord
	}

	t := txn.MkTxn(rh.tid)
	data := make([][]byte, 0, n)
	for i, a := range rh.addrs {
		if !l.InDataRegion(a) {
			return nil, ErrBadRecord
		}
		b, err := readLog(io, l, pos+1+uint64(i))
		if err != nil {
			return nil, err
		}
		data = append(data, b)
		t.Write(a, b)
	}
	commit, err := readLog(io, l, pos+1+n)
	if err != nil {
		return nil, err
	}
	if err := checkCommit(rh, hdr, data, commit); err != nil {
		return nil, err
	}
	if err := t.MarkCommitted(pos, pos+RecordSectors(n)); err != nil {
		return nil, err
	}
	return t, nil
}

// recoverLog scans [checkpoint, head) and returns every valid record in log
// order. The scan stops at the first invalid record; the rest of the log is
// treated as never committed. A device error aborts recovery.
func recoverLog(io *obj.IO, l common.Layout, h Header, logger *zap.Logger) ([]*txn.Txn, Recovery, error) {
	rec := Recovery{Start: h.Checkpoint, End: h.Checkpoint}
	var txns []*txn.Txn
	for rec.End < h.Head {
		t, err := readRecord(io, l, rec.End, h.Head)
		if err != nil {
			if !errors.Is(err, ErrBadRecord) {
				logger.Error("recovery read failed",
					zap.Uint64("pos", rec.End), zap.Error(err))
				if !errors.Is(err, common.ErrIOFailure) {
					err = fmt.Errorf("%w: %w", common.ErrIOFailure, err)
				}
				return nil, rec, fmt.Errorf("recovery at log position %d: %w", rec.End, err)
			}
			util.DPrintf(1, "recover: stop at %d: %v\n", rec.End, err)
			rec.Discarded = true
			break
		}
		txns = append(txns, t)
		rec.Records++
		rec.Sectors += t.NumWrites()
		if t.Id > rec.MaxTid {
			rec.MaxTid = t.Id
		}
		rec.End = t.LogEnd
	}
	logger.Info("log recovered",
		zap.Uint64("checkpoint", h.Checkpoint),
		zap.Uint64("head", h.Head),
		zap.Uint64("end", rec.End),
		zap.Int("records", rec.Records),
		zap.Uint64("sectors", rec.Sectors),
		zap.Bool("discarded", rec.Discarded))
	return txns, rec, nil
}
