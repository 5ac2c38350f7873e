// Package txn holds the in-memory state of transactions: their ids, the
// sectors they have written, and the table of transactions that are still in
// progress.
package txn

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/util"
)

type TransId = uint64

// IdGen hands out unique transaction ids; 0 is never returned.
type IdGen struct {
	mu     *sync.Mutex
	nextId TransId
}

func MkIdGen() *IdGen {
	return &IdGen{mu: new(sync.Mutex), nextId: 1}
}

// Return a unique Id for a transaction
func (g *IdGen) Next() TransId {
	g.mu.Lock()
	var id = g.nextId
	if id == common.NULLTRANS { // skip 0
		id = 1
	}
	g.nextId = id + 1
	g.mu.Unlock()
	return id
}

// Bump makes sure no id at or below seen is ever handed out again.
func (g *IdGen) Bump(seen TransId) {
	g.mu.Lock()
	if seen >= g.nextId {
		g.nextId = seen + 1
	}
	g.mu.Unlock()
}

type Status int

const (
	InProgress Status = iota
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in-progress"
	case Committed:
		return "committed"
	default:
		return "aborted"
	}
}

// Txn is a transaction's write set. It is owned by a single goroutine while in
// progress and is immutable once committed.
type Txn struct {
	Id     TransId
	status Status

	writes map[common.Secnum][]byte
	order  []common.Secnum

	// log positions of the commit record, valid once committed
	LogStart uint64
	LogEnd   uint64
}

func MkTxn(id TransId) *Txn {
	return &Txn{
		Id:     id,
		status: InProgress,
		writes: make(map[common.Secnum][]byte),
	}
}

func (t *Txn) Status() Status {
	return t.status
}

// Write buffers a copy of buf as the new contents of sec; a later write to the
// same sector replaces it.
func (t *Txn) Write(sec common.Secnum, buf []byte) {
	if _, ok := t.writes[sec]; !ok {
		t.order = append(t.order, sec)
	}
	t.writes[sec] = util.CloneByteSlice(buf)
}

// Lookup returns the buffered contents of sec, if this transaction wrote it.
func (t *Txn) Lookup(sec common.Secnum) ([]byte, bool) {
	b, ok := t.writes[sec]
	return b, ok
}

func (t *Txn) NumWrites() uint64 {
	return uint64(len(t.order))
}

// Sectors lists written sectors in first-write order.
func (t *Txn) Sectors() []common.Secnum {
	return t.order
}

// Updates calls f for each written sector in first-write order.
func (t *Txn) Updates(f func(sec common.Secnum, buf []byte)) {
	for _, s := range t.order {
		f(s, t.writes[s])
	}
}

func (t *Txn) transition(to Status) error {
	if t.status != InProgress {
		return fmt.Errorf("transaction %d already %v", t.Id, t.status)
	}
	t.status = to
	return nil
}

// MarkCommitted records the log extent of the commit record.
func (t *Txn) MarkCommitted(start uint64, end uint64) error {
	if err := t.transition(Committed); err != nil {
		return err
	}
	t.LogStart = start
	t.LogEnd = end
	return nil
}

// MarkAborted drops the write set.
func (t *Txn) MarkAborted() error {
	if err := t.transition(Aborted); err != nil {
		return err
	}
	t.writes = nil
	t.order = nil
	return nil
}

func (t *Txn) String() string {
	return fmt.Sprintf("txn %d (%v, %d writes)", t.Id, t.status, len(t.order))
}
