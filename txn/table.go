package txn

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-ptree/common"
)

// Table holds the transactions that are in progress.
type Table struct {
	mu     *sync.Mutex
	active map[TransId]*Txn
}

func MkTable() *Table {
	return &Table{
		mu:     new(sync.Mutex),
		active: make(map[TransId]*Txn),
	}
}

func (tbl *Table) Insert(t *Txn) {
	tbl.mu.Lock()
	tbl.active[t.Id] = t
	tbl.mu.Unlock()
}

// Get returns the active transaction with the given id.
func (tbl *Table) Get(id TransId) (*Txn, error) {
	tbl.mu.Lock()
	t, ok := tbl.active[id]
	tbl.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d is not active", common.ErrInvalidArgument, id)
	}
	return t, nil
}

// Remove takes the transaction out of the table, handing it to the caller.
func (tbl *Table) Remove(id TransId) (*Txn, error) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	t, ok := tbl.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d is not active", common.ErrInvalidArgument, id)
	}
	delete(tbl.active, id)
	return t, nil
}

func (tbl *Table) Len() int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return len(tbl.active)
}
