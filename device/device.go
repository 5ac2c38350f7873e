// Package device turns a synchronous disk into an asynchronous one.
//
// Requests are tagged by the caller and executed on a worker pool; each
// completion is reported through the notify callback with the request's tag.
// Completion order is unrelated to submission order. The device itself does
// no ordering between requests to the same sector: callers that care (see
// package obj) must not have two requests to one sector outstanding.
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/disk"
	"github.com/mit-pdos/go-ptree/util"
)

type Kind int

const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Read {
		return "read"
	}
	return "write"
}

// Tag identifies a request to whoever submitted it.
type Tag uint64

type Request struct {
	Kind   Kind
	Tag    Tag
	Sector common.Secnum
	// Buf is filled for reads and written out for writes; it must stay
	// untouched until the completion arrives.
	Buf []byte
}

type Completion struct {
	Tag    Tag
	Kind   Kind
	Sector common.Secnum
	Err    error
}

var ErrClosed = errors.New("device closed")

type Device struct {
	d      disk.Disk
	pool   *ants.Pool
	notify func(Completion)

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New starts a device with the given number of workers. notify is called
// from a worker goroutine once per submitted request.
func New(d disk.Disk, workers int, notify func(Completion)) (*Device, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Device{d: d, pool: pool, notify: notify}, nil
}

func (dev *Device) NumSectors() uint64 {
	return dev.d.Size()
}

func (dev *Device) execute(r Request) {
	var err error
	switch r.Kind {
	case Read:
		err = dev.d.ReadTo(r.Sector, r.Buf)
	case Write:
		err = dev.d.Write(r.Sector, r.Buf)
	default:
		err = fmt.Errorf("unknown request kind %d", r.Kind)
	}
	if err != nil {
		util.DPrintf(1, "device: %v %d failed: %v\n", r.Kind, r.Sector, err)
	}
	dev.notify(Completion{Tag: r.Tag, Kind: r.Kind, Sector: r.Sector, Err: err})
}

// Submit queues a request. A nil error means notify will eventually be called
// for it; otherwise it never will.
func (dev *Device) Submit(r Request) error {
	if uint64(len(r.Buf)) != common.SectorSize {
		return fmt.Errorf("%w: request buffer is %d bytes", common.ErrInvalidArgument, len(r.Buf))
	}
	dev.mu.Lock()
	if dev.closed {
		dev.mu.Unlock()
		return ErrClosed
	}
	dev.inflight.Add(1)
	dev.mu.Unlock()

	err := dev.pool.Submit(func() {
		defer dev.inflight.Done()
		dev.execute(r)
	})
	if err != nil {
		dev.inflight.Done()
		return fmt.Errorf("submit %v %d: %w", r.Kind, r.Sector, err)
	}
	return nil
}

// Barrier makes every write that has completed durable.
func (dev *Device) Barrier() error {
	return dev.d.Barrier()
}

// Close waits for outstanding requests and stops the workers. The disk stays
// open; it belongs to the caller.
func (dev *Device) Close() error {
	dev.mu.Lock()
	if dev.closed {
		dev.mu.Unlock()
		return nil
	}
	dev.closed = true
	dev.mu.Unlock()

	dev.inflight.Wait()
	dev.pool.Release()
	return nil
}
