package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"
)

var _ Disk = gooseDisk{}

// gooseDisk adapts a goose disk, which panics on misuse, to the
// error-returning interface.
type gooseDisk struct {
	d gdisk.Disk
}

func FromGoose(d gdisk.Disk) Disk {
	return gooseDisk{d}
}

// NewGooseFileDisk opens a file-backed goose disk of numBlocks sectors.
func NewGooseFileDisk(path string, numBlocks uint64) (Disk, error) {
	d, err := gdisk.NewFileDisk(path, numBlocks)
	if err != nil {
		return nil, err
	}
	return FromGoose(d), nil
}

func recoverErr(op string, a uint64, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s %d: %v", op, a, r)
	}
}

func (g gooseDisk) ReadTo(a uint64, buf Block) (err error) {
	if err := checkAccess(a, g.d.Size(), buf); err != nil {
		return err
	}
	defer recoverErr("read", a, &err)
	copy(buf, g.d.Read(a))
	return nil
}

func (g gooseDisk) Write(a uint64, v Block) (err error) {
	if err := checkAccess(a, g.d.Size(), v); err != nil {
		return err
	}
	defer recoverErr("write", a, &err)
	g.d.Write(a, v)
	return nil
}

func (g gooseDisk) Size() uint64 {
	return g.d.Size()
}

func (g gooseDisk) Barrier() (err error) {
	defer recoverErr("barrier", 0, &err)
	g.d.Barrier()
	return nil
}

func (g gooseDisk) Close() (err error) {
	defer recoverErr("close", 0, &err)
	g.d.Close()
	return nil
}
