package wal

import (
	"context"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/util"
)

// Positions is a snapshot of the log's bookkeeping.
type Positions struct {
	Reserved   LogPosition
	Head       LogPosition
	Tail       LogPosition
	Checkpoint LogPosition
}

// Occupied is the number of log sectors not available to new reservations.
func (p Positions) Occupied() uint64 {
	return p.Reserved - p.Tail
}

// LogStatus tracks which log positions are handed out, durable and
// written back, and persists the log header.
type LogStatus struct {
	mu   *sync.Mutex
	cond *sync.Cond
	io   *obj.IO
	geom Header
	pos  Positions
	err  error

	// serializes header writes, so a later write always carries a later state
	hdrMu *sync.Mutex
}

func mkLogStatus(io *obj.IO, h Header) *LogStatus {
	mu := new(sync.Mutex)
	return &LogStatus{
		mu:   mu,
		cond: sync.NewCond(mu),
		io:   io,
		geom: h,
		pos: Positions{
			Reserved:   h.Head,
			Head:       h.Head,
			Tail:       h.Checkpoint,
			Checkpoint: h.Checkpoint,
		},
		hdrMu: new(sync.Mutex),
	}
}

// ReadHeader reads the log header from sector 0.
func ReadHeader(io *obj.IO) (Header, error) {
	b := make([]byte, common.SectorSize)
	if err := io.ReadSector(common.HeaderSector, b); err != nil {
		return Header{}, err
	}
	return decodeHeader(b)
}

// writeHeader is used by Format; it does not go through a LogStatus.
func writeHeader(io *obj.IO, h Header) error {
	return io.WriteSector(common.HeaderSector, h.encode())
}

func (st *LogStatus) Size() uint64 {
	return st.geom.LogSectors
}

func (st *LogStatus) Positions() Positions {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.pos
}

func (st *LogStatus) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Reserve hands out n consecutive positions, blocking until write-back has
// freed enough of the log.
func (st *LogStatus) Reserve(ctx context.Context, n uint64) (LogPosition, error) {
	if n > st.geom.LogSectors {
		return 0, fmt.Errorf("%w: record of %d sectors cannot fit a %d-sector log",
			common.ErrIOFailure, n, st.geom.LogSectors)
	}
	stop := context.AfterFunc(ctx, func() {
		st.mu.Lock()
		st.cond.Broadcast()
		st.mu.Unlock()
	})
	defer stop()

	st.mu.Lock()
	defer st.mu.Unlock()
	for {
		if st.err != nil {
			return 0, fmt.Errorf("%w: log failed: %v", common.ErrIOFailure, st.err)
		}
		if st.pos.Reserved+n-st.pos.Tail <= st.geom.LogSectors {
			break
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		util.DPrintf(5, "Reserve: waiting for %d sectors (reserved %d tail %d)\n",
			n, st.pos.Reserved, st.pos.Tail)
		st.cond.Wait()
	}
	start := st.pos.Reserved
	st.pos.Reserved += n
	return start, nil
}

// Unreserve gives back the most recent reservation, which started at start.
func (st *LogStatus) Unreserve(start LogPosition) {
	st.mu.Lock()
	if start < st.pos.Head || start > st.pos.Reserved {
		st.mu.Unlock()
		panic(fmt.Sprintf("Unreserve: %d outside [head %d, reserved %d]",
			start, st.pos.Head, st.pos.Reserved))
	}
	st.pos.Reserved = start
	st.cond.Broadcast()
	st.mu.Unlock()
}

// Commit records that everything before end is durably logged. The caller
// persists the header afterwards.
func (st *LogStatus) Commit(end LogPosition) {
	st.mu.Lock()
	if end < st.pos.Head || end > st.pos.Reserved {
		st.mu.Unlock()
		panic(fmt.Sprintf("Commit: %d outside [head %d, reserved %d]",
			end, st.pos.Head, st.pos.Reserved))
	}
	st.pos.Head = end
	st.mu.Unlock()
}

// Uncommit undoes a Commit whose header persist failed.
func (st *LogStatus) Uncommit(start LogPosition) {
	st.mu.Lock()
	st.pos.Head = start
	st.pos.Reserved = start
	st.cond.Broadcast()
	st.mu.Unlock()
}

// Advance releases log space up to newTail once the records before it have
// been written back. The new checkpoint is durable before any of the freed
// space can be reserved again.
func (st *LogStatus) Advance(newTail LogPosition) error {
	st.hdrMu.Lock()
	defer st.hdrMu.Unlock()

	st.mu.Lock()
	if newTail < st.pos.Tail || newTail > st.pos.Head {
		st.mu.Unlock()
		panic(fmt.Sprintf("Advance: %d outside [tail %d, head %d]",
			newTail, st.pos.Tail, st.pos.Head))
	}
	h := st.headerLocked()
	h.Tail = newTail
	h.Checkpoint = newTail
	st.mu.Unlock()

	util.DPrintf(5, "Advance: head %d checkpoint %d\n", h.Head, h.Checkpoint)
	if err := writeHeader(st.io, h); err != nil {
		return err
	}

	st.mu.Lock()
	st.pos.Tail = newTail
	st.pos.Checkpoint = newTail
	st.cond.Broadcast()
	st.mu.Unlock()
	return nil
}

// headerLocked builds the on-disk header for the current positions.
func (st *LogStatus) headerLocked() Header {
	h := st.geom
	h.Head = st.pos.Head
	h.Tail = st.pos.Tail
	h.Checkpoint = st.pos.Checkpoint
	return h
}

// PersistHeader writes the current head and checkpoint to sector 0 and waits
// for it to be durable.
func (st *LogStatus) PersistHeader() error {
	st.hdrMu.Lock()
	defer st.hdrMu.Unlock()

	st.mu.Lock()
	h := st.headerLocked()
	st.mu.Unlock()

	util.DPrintf(5, "PersistHeader: head %d checkpoint %d\n", h.Head, h.Checkpoint)
	return writeHeader(st.io, h)
}

// Fail makes every current and future reservation fail with err.
func (st *LogStatus) Fail(err error) {
	st.mu.Lock()
	if st.err == nil {
		st.err = err
	}
	st.cond.Broadcast()
	st.mu.Unlock()
}
