package wal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/metrics"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/txn"
	"github.com/mit-pdos/go-ptree/util"
)

// Installer writes committed transactions back to their home sectors, one at
// a time in commit order, and releases their log space.
type Installer struct {
	io      *obj.IO
	st      *LogStatus
	queue   *Queue
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       *sync.Mutex
	watchers map[txn.TransId][]chan error
	err      error
	started  bool
	closed   bool
	done     chan struct{}
}

func mkInstaller(io *obj.IO, st *LogStatus, q *Queue, logger *zap.Logger, m *metrics.Metrics) *Installer {
	return &Installer{
		io:       io,
		st:       st,
		queue:    q,
		logger:   logger,
		metrics:  m,
		mu:       new(sync.Mutex),
		watchers: make(map[txn.TransId][]chan error),
		done:     make(chan struct{}),
	}
}

// Start launches the write-back goroutine. It may be called once.
func (in *Installer) Start() {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		panic("installer started twice")
	}
	in.started = true
	in.mu.Unlock()
	go in.run()
}

// Watch returns a channel that receives nil once transaction tid has been
// written back, or the error that stopped write-back. Register before the
// transaction commits.
func (in *Installer) Watch(tid txn.TransId) <-chan error {
	ch := make(chan error, 1)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err != nil {
		ch <- in.err
		return ch
	}
	if in.closed {
		ch <- ErrClosed
		return ch
	}
	in.watchers[tid] = append(in.watchers[tid], ch)
	return ch
}

func (in *Installer) notify(tid txn.TransId, err error) {
	in.mu.Lock()
	chs := in.watchers[tid]
	delete(in.watchers, tid)
	in.mu.Unlock()
	for _, ch := range chs {
		ch <- err
	}
}

// Err is the error that stopped write-back, if any.
func (in *Installer) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// install writes t to its home sectors and frees its log record.
func (in *Installer) install(t *txn.Txn) error {
	start := time.Now()
	upds := make([]obj.Update, 0, t.NumWrites())
	t.Updates(func(sec common.Secnum, buf []byte) {
		upds = append(upds, obj.MkUpdate(sec, buf))
	})
	util.DPrintf(5, "install: txn %d, %d sectors, log [%d,%d)\n",
		t.Id, len(upds), t.LogStart, t.LogEnd)
	if err := in.io.WriteSectors(upds); err != nil {
		return err
	}
	if err := in.st.Advance(t.LogEnd); err != nil {
		return err
	}
	in.metrics.WriteBack(len(upds), time.Since(start))
	return nil
}

func (in *Installer) fail(err error) {
	err = fmt.Errorf("write-back stopped: %w", err)
	in.logger.Error("write-back failed", zap.Error(err))

	in.mu.Lock()
	in.err = err
	chs := in.watchers
	in.watchers = make(map[txn.TransId][]chan error)
	in.mu.Unlock()

	in.st.Fail(err)
	in.queue.Close(err)
	for _, ws := range chs {
		for _, ch := range ws {
			ch <- err
		}
	}
}

func (in *Installer) run() {
	defer close(in.done)
	for {
		t, ok := in.queue.Peek()
		if !ok {
			break
		}
		if err := in.install(t); err != nil {
			in.fail(err)
			break
		}
		in.queue.Pop(t)
		pos := in.st.Positions()
		in.metrics.Log(pos.Occupied(), in.queue.Len())
		in.notify(t.Id, nil)
	}
	util.DPrintf(1, "installer: shutdown\n")
}

// WaitIdle blocks until the queue is empty.
func (in *Installer) WaitIdle(ctx context.Context) error {
	return in.queue.WaitEmpty(ctx)
}

// Shutdown stops the write-back goroutine after the transaction it is
// currently installing. Transactions still queued stay in the log and are
// replayed by the next recovery.
func (in *Installer) Shutdown() {
	in.queue.Close(nil)
	in.mu.Lock()
	started := in.started
	in.mu.Unlock()
	if started {
		<-in.done
	}

	in.mu.Lock()
	in.closed = true
	chs := in.watchers
	in.watchers = make(map[txn.TransId][]chan error)
	in.mu.Unlock()
	for _, ws := range chs {
		for _, ch := range ws {
			ch <- ErrClosed
		}
	}
}
