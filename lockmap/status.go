// Package lockmap tracks the status of every sector of a device.
//
// A sector is either ready (no device request outstanding) or in progress
// (exactly one request outstanding). Threads that want to issue a request
// against an in-progress sector park until it becomes ready again.
//
// Only in-progress sectors, and sectors that have parked waiters, occupy any
// memory: the table is split into NSHARD shards, shard i covering every sector
// s with s % NSHARD = i, and each shard keeps a map of the sectors it is
// currently tracking.
package lockmap

import (
	"sync"
)

type sectorState struct {
	busy    bool
	cond    *sync.Cond
	waiters uint64
}

type shard struct {
	mu    *sync.Mutex
	state map[uint64]*sectorState
}

func mkShard() *shard {
	return &shard{
		mu:    new(sync.Mutex),
		state: make(map[uint64]*sectorState),
	}
}

func (sh *shard) lookup(sec uint64) *sectorState {
	st, ok := sh.state[sec]
	if !ok {
		st = &sectorState{cond: sync.NewCond(sh.mu)}
		sh.state[sec] = st
	}
	return st
}

func (sh *shard) markInProgress(sec uint64) {
	sh.mu.Lock()
	st := sh.lookup(sec)
	for st.busy {
		st.waiters += 1
		st.cond.Wait()
		st.waiters -= 1
	}
	st.busy = true
	sh.mu.Unlock()
}

func (sh *shard) markReady(sec uint64) {
	sh.mu.Lock()
	st, ok := sh.state[sec]
	if !ok || !st.busy {
		sh.mu.Unlock()
		panic("lockmap: marking a ready sector ready")
	}
	st.busy = false
	if st.waiters > 0 {
		st.cond.Signal()
	} else {
		delete(sh.state, sec)
	}
	sh.mu.Unlock()
}

const NSHARD uint64 = 43

type StatusTable struct {
	shards []*shard
}

func MkStatusTable() *StatusTable {
	var shards []*shard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkShard())
	}
	return &StatusTable{shards: shards}
}

func (t *StatusTable) shardOf(sec uint64) *shard {
	return t.shards[sec%NSHARD]
}

// MarkInProgress blocks until sec is ready and then claims it.
func (t *StatusTable) MarkInProgress(sec uint64) {
	t.shardOf(sec).markInProgress(sec)
}

// MarkReady releases sec and wakes one parked waiter. Panics if sec was not
// in progress.
func (t *StatusTable) MarkReady(sec uint64) {
	t.shardOf(sec).markReady(sec)
}

// Tracked reports how many sectors currently occupy the table: those in
// progress and those with parked waiters.
func (t *StatusTable) Tracked() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.Lock()
		n += len(sh.state)
		sh.mu.Unlock()
	}
	return n
}
