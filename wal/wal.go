package wal

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/metrics"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/txn"
	"github.com/mit-pdos/go-ptree/util"
)

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type Walog struct {
	io      *obj.IO
	layout  common.Layout
	st      *LogStatus
	queue   *Queue
	inst    *Installer
	logger  *zap.Logger
	metrics *metrics.Metrics

	// held from reservation to enqueue, so queue order is log order
	commitMu *sync.Mutex
}

// Format writes an empty log header for layout l.
func Format(io *obj.IO, l common.Layout) error {
	return writeHeader(io, Header{
		NumSectors: l.NumSectors,
		LogSectors: l.LogSectors,
		MaxTrees:   l.MaxTrees,
	})
}

// Open recovers the log on io. Recovered transactions are queued for
// write-back, which does not begin until Start is called. Recovery itself
// writes nothing to the device.
func Open(io *obj.IO, opts Options) (*Walog, Recovery, error) {
	logger := opts.logger()
	h, err := ReadHeader(io)
	if err != nil {
		return nil, Recovery{}, err
	}
	if h.NumSectors != io.NumSectors() {
		return nil, Recovery{}, fmt.Errorf("%w: formatted for %d sectors, device has %d",
			common.ErrInvalidArgument, h.NumSectors, io.NumSectors())
	}
	layout, err := h.Layout()
	if err != nil {
		return nil, Recovery{}, err
	}

	txns, rec, err := recoverLog(io, layout, h, logger)
	if err != nil {
		return nil, Recovery{}, err
	}
	h.Head = rec.End
	st := mkLogStatus(io, h)
	q := MkQueue()
	for _, t := range txns {
		q.Enqueue(t)
	}
	opts.Metrics.Recovered(len(txns))
	opts.Metrics.Log(st.Positions().Occupied(), q.Len())

	l := &Walog{
		io:       io,
		layout:   layout,
		st:       st,
		queue:    q,
		inst:     mkInstaller(io, st, q, logger, opts.Metrics),
		logger:   logger,
		metrics:  opts.Metrics,
		commitMu: new(sync.Mutex),
	}
	return l, rec, nil
}

func (l *Walog) Start() {
	l.inst.Start()
}

func (l *Walog) Layout() common.Layout {
	return l.layout
}

func (l *Walog) Positions() Positions {
	return l.st.Positions()
}

func (l *Walog) QueueLen() int {
	return l.queue.Len()
}

// Append makes t durable in the log and queues it for write-back. On error t
// is left uncommitted and none of its log space stays reserved.
func (l *Walog) Append(t *txn.Txn) error {
	n := t.NumWrites()
	if n > MaxWrites {
		return fmt.Errorf("%w: %d writes exceed the record limit of %d",
			common.ErrInvalidArgument, n, MaxWrites)
	}
	if n == 0 {
		util.DPrintf(5, "commit read-only trans %d\n", t.Id)
		return t.MarkCommitted(0, 0)
	}
	sz := RecordSectors(n)

	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	start, err := l.st.Reserve(context.Background(), sz)
	if err != nil {
		return err
	}
	end := start + sz
	recs := encodeRecord(start, t)
	upds := make([]obj.Update, len(recs))
	for i, b := range recs {
		upds[i] = obj.MkUpdate(l.layout.LogSector(start+uint64(i)), b)
	}
	util.DPrintf(3, "Append: txn %d at [%d,%d)\n", t.Id, start, end)

	if err := l.io.WriteSectors(upds); err != nil {
		l.st.Unreserve(start)
		return err
	}
	l.st.Commit(end)
	if err := l.st.PersistHeader(); err != nil {
		// the header may or may not have reached the device; stop accepting
		// commits rather than reuse these positions
		l.st.Uncommit(start)
		l.st.Fail(err)
		l.logger.Error("log header write failed", zap.Error(err))
		return err
	}
	if err := t.MarkCommitted(start, end); err != nil {
		panic(err)
	}
	l.queue.Enqueue(t)
	l.metrics.Commit(int(n))
	l.metrics.Log(l.st.Positions().Occupied(), l.queue.Len())
	return nil
}

// ReadCommitted copies the latest committed contents of sec into buf. It
// reports whether they came from the write-back queue rather than the device.
func (l *Walog) ReadCommitted(sec common.Secnum, buf []byte) (bool, error) {
	if l.queue.Lookup(sec, buf) {
		return true, nil
	}
	return false, l.io.ReadSector(sec, buf[:common.SectorSize])
}

func (l *Walog) Watch(tid txn.TransId) <-chan error {
	return l.inst.Watch(tid)
}

// Flush waits until every committed transaction has been written back.
func (l *Walog) Flush(ctx context.Context) error {
	return l.inst.WaitIdle(ctx)
}

// Err reports why write-back stopped, if it did.
func (l *Walog) Err() error {
	return l.inst.Err()
}

// Shutdown stops write-back without draining the queue.
func (l *Walog) Shutdown() {
	l.inst.Shutdown()
}
