package disk

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

var _ Disk = (*aferoDisk)(nil)

type aferoDisk struct {
	mu        sync.Mutex
	f         afero.File
	numBlocks uint64
}

// NewAferoDisk creates a disk backed by a file in an afero filesystem. The
// file is created if missing and resized to exactly numBlocks sectors.
func NewAferoDisk(fs afero.Fs, path string, numBlocks uint64) (Disk, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if uint64(st.Size()) != numBlocks*BlockSize {
		if err := f.Truncate(int64(numBlocks * BlockSize)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &aferoDisk{f: f, numBlocks: numBlocks}, nil
}

// AferoSize reports the size in sectors of an existing disk image.
func AferoSize(fs afero.Fs, path string) (uint64, error) {
	st, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(st.Size()) / BlockSize, nil
}

func (d *aferoDisk) ReadTo(a uint64, buf Block) error {
	if err := checkAccess(a, d.numBlocks, buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.ReadAt(buf, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	return nil
}

func (d *aferoDisk) Write(a uint64, v Block) error {
	if err := checkAccess(a, d.numBlocks, v); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.f.WriteAt(v, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

func (d *aferoDisk) Size() uint64 {
	return d.numBlocks
}

func (d *aferoDisk) Barrier() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Sync()
}

func (d *aferoDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
