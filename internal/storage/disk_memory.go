package storage

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dsnet/golib/memfile"
)

var _ DiskManager = (*MemoryDiskManager)(nil)

// MemoryDiskManager keeps the whole store in a memfile. It backs ephemeral
// databases and the test suites, where the page-write history matters as
// much as the bytes themselves.
type MemoryDiskManager struct {
	mu         sync.Mutex
	db         *memfile.File
	size       int64
	numWrites  uint64
	pageWrites map[PageID]uint64
	closed     bool
}

func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		db:         memfile.New(make([]byte, 0)),
		pageWrites: make(map[PageID]uint64),
	}
}

func (d *MemoryDiskManager) ReadPage(id PageID, dst []byte) error {
	if err := checkPageBuf(id, dst); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	offset := int64(id) * PageSize
	n, err := d.db.ReadAt(dst, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read page %d: %w", id, err)
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

func (d *MemoryDiskManager) WritePage(id PageID, src []byte) error {
	if err := checkPageBuf(id, src); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	offset := int64(id) * PageSize
	if _, err := d.db.WriteAt(src, offset); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}

	if end := offset + PageSize; end > d.size {
		d.size = end
	}
	d.numWrites++
	d.pageWrites[id]++
	return nil
}

func (d *MemoryDiskManager) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// NumWrites reports how many page writes the store has observed in total.
func (d *MemoryDiskManager) NumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

// PageWrites reports how many writes a single page has observed.
func (d *MemoryDiskManager) PageWrites(id PageID) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageWrites[id]
}

func (d *MemoryDiskManager) ShutDown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}
