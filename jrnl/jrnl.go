// Package jrnl is the logged disk: a sector device on which groups of writes
// become durable atomically.
//
// The caller begins a transaction, reads and writes sectors within it, and
// finally commits or aborts it. Writes are buffered in the transaction and are
// invisible to every other transaction until commit. Commit returns once the
// transaction's redo record is durable in the log; a background goroutine
// later writes the sectors to their home locations. After a crash, Open
// replays every committed transaction whose write-back may not have finished.
//
// Only sectors in the data region (everything after the log) may be
// addressed. There is no locking between transactions: two transactions that
// write the same sector both commit, and the later commit wins.
package jrnl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/metrics"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/txn"
	"github.com/mit-pdos/go-ptree/util"
	"github.com/mit-pdos/go-ptree/wal"
)

type TransId = txn.TransId

// MaxWrites is the most sectors one transaction may write.
const MaxWrites = wal.MaxWrites

// ErrAborted is delivered to watchers of a transaction that did not commit.
var ErrAborted = errors.New("transaction did not commit")

// Source says where a read found its data.
type Source int

const (
	FromTransaction Source = iota
	FromQueue
	FromDevice
)

func (s Source) String() string {
	switch s {
	case FromTransaction:
		return "transaction"
	case FromQueue:
		return "write-back queue"
	default:
		return "device"
	}
}

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// LogSectors and MaxTrees are only used by Format.
	LogSectors uint64
	MaxTrees   uint64
	// Workers is the number of device worker goroutines.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LogSectors == 0 {
		o.LogSectors = common.DefaultLogSize
	}
	if o.MaxTrees == 0 {
		o.MaxTrees = common.DefaultMaxTrees
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	return o
}

type Log struct {
	d       disk.Disk
	io      *obj.IO
	wal     *wal.Walog
	ids     *txn.IdGen
	active  *txn.Table
	logger  *zap.Logger
	metrics *metrics.Metrics
	rec     wal.Recovery
	closed  atomic.Bool
}

// Open recovers the logged disk on d and starts write-back.
func Open(d disk.Disk, opts Options) (*Log, error) {
	l, err := open(d, opts)
	if err != nil {
		return nil, err
	}
	l.wal.Start()
	return l, nil
}

// open recovers without starting write-back.
func open(d disk.Disk, opts Options) (*Log, error) {
	opts = opts.withDefaults()
	io, err := obj.MkIO(d, opts.Workers)
	if err != nil {
		return nil, err
	}
	w, rec, err := wal.Open(io, wal.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	if err != nil {
		io.Close()
		return nil, err
	}
	ids := txn.MkIdGen()
	ids.Bump(rec.MaxTid)
	l := &Log{
		d:       d,
		io:      io,
		wal:     w,
		ids:     ids,
		active:  txn.MkTable(),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		rec:     rec,
	}
	util.DPrintf(1, "Open: %v, recovered %d records\n", w.Layout(), rec.Records)
	return l, nil
}

func (l *Log) Layout() common.Layout {
	return l.wal.Layout()
}

// Recovery describes what Open replayed.
func (l *Log) Recovery() wal.Recovery {
	return l.rec
}

// Begin starts a transaction.
func (l *Log) Begin() TransId {
	t := txn.MkTxn(l.ids.Next())
	l.active.Insert(t)
	util.DPrintf(3, "Begin: %d\n", t.Id)
	return t.Id
}

func (l *Log) checkSector(sec common.Secnum) error {
	if !l.wal.Layout().InDataRegion(sec) {
		return fmt.Errorf("%w: sector %d is outside the data region", common.ErrOutOfRange, sec)
	}
	return nil
}

// Write buffers a copy of buf as the new contents of sec in transaction tid.
func (l *Log) Write(tid TransId, sec common.Secnum, buf []byte) error {
	t, err := l.active.Get(tid)
	if err != nil {
		return err
	}
	if uint64(len(buf)) != common.SectorSize {
		return fmt.Errorf("%w: write of %d bytes", common.ErrInvalidArgument, len(buf))
	}
	if err := l.checkSector(sec); err != nil {
		return err
	}
	t.Write(sec, buf)
	return nil
}

// Read fills buf with sec as seen by transaction tid: its own write if any,
// otherwise the latest committed contents.
func (l *Log) Read(tid TransId, sec common.Secnum, buf []byte) (Source, error) {
	t, err := l.active.Get(tid)
	if err != nil {
		return 0, err
	}
	if uint64(len(buf)) < common.SectorSize {
		return 0, fmt.Errorf("%w: read into %d bytes", common.ErrInvalidArgument, len(buf))
	}
	if err := l.checkSector(sec); err != nil {
		return 0, err
	}
	if b, ok := t.Lookup(sec); ok {
		copy(buf, b)
		return FromTransaction, nil
	}
	fromQueue, err := l.wal.ReadCommitted(sec, buf)
	if err != nil {
		return 0, err
	}
	if fromQueue {
		return FromQueue, nil
	}
	return FromDevice, nil
}

// Commit makes tid's writes durable and visible. When Commit fails with an
// i/o error the transaction is gone and none of its writes happened; when it
// fails because the transaction is too large, it stays active.
func (l *Log) Commit(tid TransId) error {
	t, err := l.active.Get(tid)
	if err != nil {
		return err
	}
	if t.NumWrites() > MaxWrites {
		return fmt.Errorf("%w: transaction %d writes %d sectors, at most %d allowed",
			common.ErrInvalidArgument, tid, t.NumWrites(), MaxWrites)
	}
	if _, err := l.active.Remove(tid); err != nil {
		return err
	}
	if l.closed.Load() {
		err = fmt.Errorf("%w: %v", common.ErrIOFailure, wal.ErrClosed)
	} else {
		err = l.wal.Append(t)
	}
	if err != nil {
		t.MarkAborted()
		l.wal.Resolve(tid, fmt.Errorf("%w: %v", ErrAborted, err))
		l.metrics.CommitFailed()
		l.logger.Warn("commit failed", zap.Uint64("tid", tid), zap.Error(err))
		return err
	}
	if t.NumWrites() == 0 {
		l.wal.Resolve(tid, nil)
	}
	util.DPrintf(3, "Commit: %d at [%d,%d)\n", tid, t.LogStart, t.LogEnd)
	return nil
}

// Abort discards tid's writes.
func (l *Log) Abort(tid TransId) error {
	t, err := l.active.Remove(tid)
	if err != nil {
		return err
	}
	if err := t.MarkAborted(); err != nil {
		return err
	}
	l.wal.Resolve(tid, ErrAborted)
	l.metrics.Abort()
	util.DPrintf(3, "Abort: %d\n", tid)
	return nil
}

// Watch returns a channel that receives nil once tid's writes are installed
// at their home locations, or an error if that will never happen. It must be
// called while tid is still active.
func (l *Log) Watch(tid TransId) (<-chan error, error) {
	if _, err := l.active.Get(tid); err != nil {
		return nil, err
	}
	return l.wal.Watch(tid), nil
}

// Flush waits until every committed transaction has been written back.
func (l *Log) Flush(ctx context.Context) error {
	return l.wal.Flush(ctx)
}

type Stats struct {
	wal.Positions
	LogSectors uint64
	Queued     int
	Active     int
	// Outstanding counts sectors with device requests in flight.
	Outstanding int
	// WriteBackErr is the error that stopped write-back, if any.
	WriteBackErr error
}

func (l *Log) Stats() Stats {
	return Stats{
		Positions:    l.wal.Positions(),
		LogSectors:   l.wal.Layout().LogSectors,
		Queued:       l.wal.QueueLen(),
		Active:       l.active.Len(),
		Outstanding:  l.io.Outstanding(),
		WriteBackErr: l.wal.Err(),
	}
}

// halt stops write-back immediately and releases the device, leaving the disk
// as a crash would.
func (l *Log) halt() {
	l.closed.Store(true)
	l.wal.Shutdown()
	l.io.Close()
}

// Shutdown writes back every committed transaction and closes the disk.
func (l *Log) Shutdown() error {
	if l.closed.Load() {
		return nil
	}
	err := l.Flush(context.Background())
	if err != nil {
		l.logger.Warn("shutdown with write-back incomplete", zap.Error(err))
	}
	l.halt()
	if cerr := l.d.Close(); cerr != nil && err == nil {
		err = cerr
	}
	l.logger.Info("log shut down")
	return err
}
