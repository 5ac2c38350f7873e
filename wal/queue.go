package wal

import (
	"context"
	"sync"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/txn"
	"github.com/mit-pdos/go-ptree/util"
)

// Queue holds committed transactions in commit order until they are written
// back, and remembers for each sector the latest queued transaction that
// wrote it.
type Queue struct {
	mu      *sync.Mutex
	cond    *sync.Cond
	entries []*txn.Txn
	latest  map[common.Secnum]*txn.Txn
	closed  bool
	err     error
}

func MkQueue() *Queue {
	mu := new(sync.Mutex)
	return &Queue{
		mu:     mu,
		cond:   sync.NewCond(mu),
		latest: make(map[common.Secnum]*txn.Txn),
	}
}

// Enqueue appends a committed transaction.
func (q *Queue) Enqueue(t *txn.Txn) {
	q.mu.Lock()
	q.entries = append(q.entries, t)
	for _, s := range t.Sectors() {
		q.latest[s] = t
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Peek blocks until there is a transaction at the front of the queue and
// returns it without removing it. It returns false once the queue is closed.
func (q *Queue) Peek() (*txn.Txn, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	return q.entries[0], true
}

// Pop removes the front transaction, which must be t.
func (q *Queue) Pop(t *txn.Txn) {
	q.mu.Lock()
	if len(q.entries) == 0 || q.entries[0] != t {
		q.mu.Unlock()
		panic("Pop: transaction is not at the front of the queue")
	}
	q.entries[0] = nil
	q.entries = q.entries[1:]
	for _, s := range t.Sectors() {
		if q.latest[s] == t {
			util.DPrintf(5, "queue: del %d (txn %d)\n", s, t.Id)
			delete(q.latest, s)
		}
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Lookup copies the latest queued contents of sec into buf.
func (q *Queue) Lookup(sec common.Secnum, buf []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.latest[sec]
	if !ok {
		return false
	}
	b, _ := t.Lookup(sec)
	copy(buf, b)
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// WaitEmpty blocks until every queued transaction has been written back. It
// returns early with the queue's error if write-back stopped.
func (q *Queue) WaitEmpty(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) > 0 {
		if q.err != nil {
			return q.err
		}
		if q.closed {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Close wakes Peek and WaitEmpty. Queued transactions stay readable.
func (q *Queue) Close(err error) {
	q.mu.Lock()
	q.closed = true
	if q.err == nil {
		q.err = err
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}
