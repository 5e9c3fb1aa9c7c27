package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tuannm99/pagecache/pkg/util"
)

var _ DiskManager = (*FileDiskManager)(nil)

// FileDiskManager stores pages in a single database file at
// offset = pageID * PageSize. Writes are synced through on every call, so
// the file is as durable as the OS makes it; there is no write cache here.
type FileDiskManager struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	size      int64
	numWrites uint64
	closed    bool
}

func NewFileDiskManager(path string) (*FileDiskManager, error) {
	// RDWR | CREATE (no truncate): reopening an existing database keeps
	// its pages.
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat database file: %w", err)
	}

	return &FileDiskManager{
		file: file,
		path: path,
		size: info.Size(),
	}, nil
}

func (d *FileDiskManager) ReadPage(id PageID, dst []byte) error {
	if err := checkPageBuf(id, dst); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	offset := int64(id) * PageSize
	n, err := d.file.ReadAt(dst, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read page %d: %w", id, err)
	}
	// Short read past EOF: the remainder of the page was never written.
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

func (d *FileDiskManager) WritePage(id PageID, src []byte) error {
	if err := checkPageBuf(id, src); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	offset := int64(id) * PageSize
	if _, err := d.file.WriteAt(src, offset); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("sync database file: %w", err)
	}

	if end := offset + PageSize; end > d.size {
		d.size = end
	}
	d.numWrites++
	return nil
}

func (d *FileDiskManager) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// NumWrites reports how many page writes reached the file.
func (d *FileDiskManager) NumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

func (d *FileDiskManager) ShutDown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true

	err := d.file.Sync()
	util.CloseWithLog(d.file.Close, "database file")
	if err != nil {
		return fmt.Errorf("sync database file: %w", err)
	}
	return nil
}
