package jrnl

import (
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/util"
	"github.com/mit-pdos/go-ptree/wal"
)

// sectors zeroed per request batch during Format
const formatBatch uint64 = 64

// Format lays out an empty logged disk on d: it zeroes the log and metadata
// regions and writes a fresh log header. Data blocks are left as they are.
// The disk stays open.
func Format(d disk.Disk, opts Options) (common.Layout, error) {
	opts = opts.withDefaults()
	layout, err := common.MkLayout(d.Size(), opts.LogSectors, opts.MaxTrees)
	if err != nil {
		return common.Layout{}, err
	}
	io, err := obj.MkIO(d, opts.Workers)
	if err != nil {
		return common.Layout{}, err
	}
	defer io.Close()

	zero := make([]byte, common.SectorSize)
	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for start := common.LogStart; start < layout.MetaEnd(); start += formatBatch {
		end := util.Min(start+formatBatch, layout.MetaEnd())
		upds := make([]obj.Update, 0, end-start)
		for s := start; s < end; s++ {
			upds = append(upds, obj.MkUpdate(s, zero))
		}
		g.Go(func() error {
			return io.WriteSectors(upds)
		})
	}
	if err := g.Wait(); err != nil {
		return common.Layout{}, err
	}
	if err := wal.Format(io, layout); err != nil {
		return common.Layout{}, err
	}
	opts.Logger.Info("formatted", zap.Stringer("layout", layout))
	return layout, nil
}
