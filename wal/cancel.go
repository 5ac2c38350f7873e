package wal

import (
	"github.com/mit-pdos/go-ptree/txn"
)

// Resolve delivers err to the watchers of a transaction that will never
// reach the write-back queue.
func (l *Walog) Resolve(tid txn.TransId, err error) {
	l.inst.notify(tid, err)
}
