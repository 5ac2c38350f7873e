package wal

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-ptree/common"
)

type LogPosition = uint64

// Header is the contents of the log header sector.
type Header struct {
	NumSectors uint64
	LogSectors uint64
	MaxTrees   uint64
	Head       LogPosition
	Tail       LogPosition
	Checkpoint LogPosition
}

func (h Header) encode() []byte {
	enc := marshal.NewEnc(common.SectorSize)
	enc.PutInt(HDRMAGIC)
	enc.PutInt(h.NumSectors)
	enc.PutInt(h.LogSectors)
	enc.PutInt(h.MaxTrees)
	enc.PutInt(h.Head)
	enc.PutInt(h.Tail)
	enc.PutInt(h.Checkpoint)
	return enc.Finish()
}

func decodeHeader(b []byte) (Header, error) {
	dec := marshal.NewDec(b)
	if dec.GetInt() != HDRMAGIC {
		return Header{}, ErrNotFormatted
	}
	h := Header{
		NumSectors: dec.GetInt(),
		LogSectors: dec.GetInt(),
		MaxTrees:   dec.GetInt(),
		Head:       dec.GetInt(),
		Tail:       dec.GetInt(),
		Checkpoint: dec.GetInt(),
	}
	if h.Checkpoint > h.Head || h.Head-h.Checkpoint > h.LogSectors {
		return Header{}, fmt.Errorf("%w: checkpoint %d head %d log size %d",
			ErrNotFormatted, h.Checkpoint, h.Head, h.LogSectors)
	}
	return h, nil
}

// Layout reconstructs the device layout recorded in the header.
func (h Header) Layout() (common.Layout, error) {
	return common.MkLayout(h.NumSectors, h.LogSectors, h.MaxTrees)
}

func (h Header) String() string {
	return fmt.Sprintf("sectors=%d log=%d trees=%d head=%d tail=%d checkpoint=%d",
		h.NumSectors, h.LogSectors, h.MaxTrees, h.Head, h.Tail, h.Checkpoint)
}
