// Package flatfs presents trees as flat files addressed by byte offset.
package flatfs

import (
	"io"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/jrnl"
	"github.com/mit-pdos/go-ptree/ptree"
	"github.com/mit-pdos/go-ptree/util"
)

type Inum = ptree.TreeId

// MaxFileSize is the largest offset a file can reach.
const MaxFileSize = common.MaxBlockId * common.BlockSize

type FS struct {
	log   *jrnl.Log
	store *ptree.Store
}

func New(log *jrnl.Log) *FS {
	return &FS{log: log, store: ptree.MkStore(log)}
}

func (fs *FS) Begin() jrnl.TransId {
	return fs.log.Begin()
}

func (fs *FS) Commit(tid jrnl.TransId) error {
	return fs.log.Commit(tid)
}

func (fs *FS) Abort(tid jrnl.TransId) error {
	return fs.log.Abort(tid)
}

func (fs *FS) CreateFile(tid jrnl.TransId) (Inum, error) {
	return fs.store.CreateTree(tid)
}

func (fs *FS) DeleteFile(tid jrnl.TransId, inum Inum) (bool, error) {
	return fs.store.DeleteTree(tid, inum)
}

// clamp limits [off, off+n) to the maximum file size.
func clamp(off uint64, n uint64) (uint64, error) {
	if off > MaxFileSize {
		return 0, io.EOF
	}
	return util.Min(n, MaxFileSize-off), nil
}

// Read fills buf from offset off of the file and returns the number of bytes
// read. Holes read as zeros. It returns io.EOF only if off is past the
// maximum file size.
func (fs *FS) Read(tid jrnl.TransId, inum Inum, off uint64, buf []byte) (int, error) {
	count, err := clamp(off, uint64(len(buf)))
	if err != nil {
		return 0, err
	}
	blk := make([]byte, common.BlockSize)
	var done uint64
	for done < count {
		pos := off + done
		bid := pos / common.BlockSize
		inBlock := pos % common.BlockSize
		if err := fs.store.ReadBlock(tid, inum, bid, blk); err != nil {
			return int(done), err
		}
		n := copy(buf[done:count], blk[inBlock:])
		done += uint64(n)
	}
	return int(done), nil
}

// Write stores data at offset off of the file, growing it as needed, and
// returns the number of bytes written.
func (fs *FS) Write(tid jrnl.TransId, inum Inum, off uint64, data []byte) (int, error) {
	count, err := clamp(off, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	blk := make([]byte, common.BlockSize)
	var done uint64
	for done < count {
		pos := off + done
		bid := pos / common.BlockSize
		inBlock := pos % common.BlockSize
		n := util.Min(common.BlockSize-inBlock, count-done)
		if n < common.BlockSize {
			// partial block: keep the bytes around the write
			if err := fs.store.ReadBlock(tid, inum, bid, blk); err != nil {
				return int(done), err
			}
		}
		copy(blk[inBlock:inBlock+n], data[done:done+n])
		if err := fs.store.WriteBlock(tid, inum, bid, blk); err != nil {
			return int(done), err
		}
		done += n
	}
	util.DPrintf(5, "Write: inum %d off %d count %d\n", inum, off, count)
	return int(done), nil
}

// Size is the file size rounded up to whole blocks.
func (fs *FS) Size(tid jrnl.TransId, inum Inum) (uint64, error) {
	h, err := fs.store.HighestAllocatedBlockId(tid, inum)
	if err != nil {
		return 0, err
	}
	return uint64(h+1) * common.BlockSize, nil
}

func (fs *FS) ReadMetadata(tid jrnl.TransId, inum Inum, buf []byte) error {
	return fs.store.ReadMetadata(tid, inum, buf)
}

func (fs *FS) WriteMetadata(tid jrnl.TransId, inum Inum, buf []byte) error {
	return fs.store.WriteMetadata(tid, inum, buf)
}

// QueryParam reports a store parameter; see ptree.Param.
func (fs *FS) QueryParam(p ptree.Param) (uint64, error) {
	return fs.store.QueryParam(p)
}
