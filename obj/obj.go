// Package obj serializes access to device sectors.
//
// Every request first waits for its sector to become ready, marks it in
// progress and is submitted immediately; the sector becomes ready again when
// the device reports completion. Hence at most one request per sector is ever
// outstanding, and the device is free to complete requests in any order.
package obj

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/device"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/lockmap"
	"github.com/mit-pdos/go-ptree/util"
)

// Update is the new contents of one sector.
type Update struct {
	Sector common.Secnum
	Buf    []byte
}

func MkUpdate(sec common.Secnum, buf []byte) Update {
	return Update{Sector: sec, Buf: buf}
}

type IO struct {
	dev    *device.Device
	status *lockmap.StatusTable

	mu      *sync.Mutex
	nextTag device.Tag
	pending map[device.Tag]chan error
}

// MkIO starts an asynchronous device over d with the given number of workers.
func MkIO(d disk.Disk, workers int) (*IO, error) {
	io := &IO{
		status:  lockmap.MkStatusTable(),
		mu:      new(sync.Mutex),
		pending: make(map[device.Tag]chan error),
	}
	dev, err := device.New(d, workers, io.complete)
	if err != nil {
		return nil, err
	}
	io.dev = dev
	return io, nil
}

// Outstanding is the number of sectors with a request in flight or waiting.
func (io *IO) Outstanding() int {
	return io.status.Tracked()
}

func (io *IO) NumSectors() uint64 {
	return io.dev.NumSectors()
}

func (io *IO) complete(c device.Completion) {
	io.mu.Lock()
	ch, ok := io.pending[c.Tag]
	delete(io.pending, c.Tag)
	io.mu.Unlock()

	io.status.MarkReady(c.Sector)
	if !ok {
		panic(fmt.Sprintf("obj: completion for unknown tag %d", c.Tag))
	}
	ch <- c.Err
}

// issue claims the sector and submits the request, returning a future for its
// completion.
func (io *IO) issue(kind device.Kind, sec common.Secnum, buf []byte) (<-chan error, error) {
	io.status.MarkInProgress(sec)

	ch := make(chan error, 1)
	io.mu.Lock()
	tag := io.nextTag
	io.nextTag++
	io.pending[tag] = ch
	io.mu.Unlock()

	err := io.dev.Submit(device.Request{Kind: kind, Tag: tag, Sector: sec, Buf: buf})
	if err != nil {
		io.mu.Lock()
		delete(io.pending, tag)
		io.mu.Unlock()
		io.status.MarkReady(sec)
		return nil, fmt.Errorf("%w: %v", common.ErrIOFailure, err)
	}
	return ch, nil
}

func wait(ch <-chan error, kind device.Kind, sec common.Secnum) error {
	if err := <-ch; err != nil {
		return fmt.Errorf("%w: %v sector %d: %v", common.ErrIOFailure, kind, sec, err)
	}
	return nil
}

// ReadSector reads sec into buf, which must be exactly one sector long.
func (io *IO) ReadSector(sec common.Secnum, buf []byte) error {
	ch, err := io.issue(device.Read, sec, buf)
	if err != nil {
		return err
	}
	return wait(ch, device.Read, sec)
}

// WriteSectors issues every update, waits for all of them, and then issues a
// barrier, so on success all updates are durable.
func (io *IO) WriteSectors(upds []Update) error {
	var g errgroup.Group
	for _, u := range upds {
		u := u
		ch, err := io.issue(device.Write, u.Sector, u.Buf)
		if err != nil {
			// still drain what was already issued
			g.Wait()
			return err
		}
		g.Go(func() error {
			return wait(ch, device.Write, u.Sector)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	util.DPrintf(5, "WriteSectors: %d sectors written\n", len(upds))
	return io.Barrier()
}

func (io *IO) WriteSector(sec common.Secnum, buf []byte) error {
	return io.WriteSectors([]Update{MkUpdate(sec, buf)})
}

func (io *IO) Barrier() error {
	if err := io.dev.Barrier(); err != nil {
		return fmt.Errorf("%w: barrier: %v", common.ErrIOFailure, err)
	}
	return nil
}

func (io *IO) Close() error {
	return io.dev.Close()
}
