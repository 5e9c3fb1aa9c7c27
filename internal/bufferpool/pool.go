package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sasha-s/go-deadlock"

	"github.com/tuannm99/pagecache/internal/storage"
)

var (
	DefaultPoolSize = 64

	ErrNoFrameAvailable = errors.New("bufferpool: no free frame available (all pinned)")
	ErrPageNotFound     = errors.New("bufferpool: page not resident")
	ErrPagePinned       = errors.New("bufferpool: page is pinned")
	ErrPageNotPinned    = errors.New("bufferpool: page is not pinned")
	ErrInvalidPageID    = errors.New("bufferpool: invalid page id")
)

// LogManager is the hook to a write-ahead log. The pool only needs to force
// the log before a dirty page goes back to disk; recovery itself lives
// elsewhere and a nil LogManager is fine.
type LogManager interface {
	Flush() error
}

// BufferPoolManager mediates between the disk manager and in-memory
// consumers: it maps page ids to a fixed set of frames, pins frames on
// behalf of readers and writers, and writes dirty pages back before a
// frame is reused.
//
// A single pool latch serializes all book-keeping below. Disk I/O happens
// under the pool latch, which serializes it against every other state
// mutation. Per-page RW latches are independent and are only ever taken
// after the pool latch is released.
type BufferPoolManager struct {
	diskManager storage.DiskManager
	pages       []*Page // index is FrameID
	replacer    Replacer
	freeList    []FrameID
	pageTable   map[storage.PageID]FrameID
	nextPageID  storage.PageID
	logManager  LogManager // optional
	mu          deadlock.Mutex
}

func NewBufferPoolManager(poolSize int, diskManager storage.DiskManager, replacerK int, logManager LogManager) *BufferPoolManager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if replacerK <= 0 {
		replacerK = 1
	}

	pages := make([]*Page, poolSize)
	freeList := make([]FrameID, poolSize)
	for i := range pages {
		pages[i] = newPage()
		freeList[i] = FrameID(i)
	}

	return &BufferPoolManager{
		diskManager: diskManager,
		pages:       pages,
		replacer:    NewLRUKReplacer(poolSize, replacerK),
		freeList:    freeList,
		pageTable:   make(map[storage.PageID]FrameID),
		// Reopening an existing store resumes allocation after its last page.
		nextPageID: storage.PageID(diskManager.Size() / storage.PageSize),
		logManager: logManager,
	}
}

// NewPage allocates a fresh page id, installs it in a frame and returns the
// frame pinned once. ErrNoFrameAvailable when every frame is pinned.
func (b *BufferPoolManager) NewPage() (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	pg := b.pages[frameID]
	pg.reset()
	pg.id = b.allocatePage()
	b.pinPageToFrame(pg, frameID, AccessUnknown)
	return pg, nil
}

// FetchPage returns the requested page pinned, reading it from disk on a
// miss. ErrNoFrameAvailable when the pool cannot free a frame.
func (b *BufferPoolManager) FetchPage(pageID storage.PageID, accessType AccessType) (*Page, error) {
	if !pageID.Valid() {
		return nil, ErrInvalidPageID
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[pageID]; ok {
		pg := b.pages[frameID]
		pg.incPinCount()
		b.replacer.RecordAccess(frameID, accessType)
		b.replacer.SetEvictable(frameID, false)
		return pg, nil
	}

	frameID, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	pg := b.pages[frameID]
	pg.reset()
	if err := b.diskManager.ReadPage(pageID, pg.data[:]); err != nil {
		// The frame is clean and unmapped at this point; hand it back.
		b.freeList = append([]FrameID{frameID}, b.freeList...)
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}
	pg.id = pageID
	b.pinPageToFrame(pg, frameID, accessType)
	return pg, nil
}

// UnpinPage drops one pin. The dirty flag is assigned from the caller's
// word unconditionally, so a writer must pass true. On the last unpin the
// frame becomes an eviction candidate.
func (b *BufferPoolManager) UnpinPage(pageID storage.PageID, isDirty bool, _ AccessType) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return ErrPageNotFound
	}

	pg := b.pages[frameID]
	pg.setDirty(isDirty)
	if pg.PinCount() <= 0 {
		return ErrPageNotPinned
	}
	pg.decPinCount()
	if pg.PinCount() == 0 {
		b.replacer.SetEvictable(frameID, true)
	}
	return nil
}

// FlushPage writes the page back unconditionally and clears its dirty flag.
func (b *BufferPoolManager) FlushPage(pageID storage.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushPageLocked(pageID)
}

func (b *BufferPoolManager) flushPageLocked(pageID storage.PageID) error {
	if !pageID.Valid() || pageID >= b.nextPageID {
		return ErrInvalidPageID
	}
	frameID, ok := b.pageTable[pageID]
	if !ok {
		return ErrPageNotFound
	}

	pg := b.pages[frameID]
	if err := b.diskManager.WritePage(pageID, pg.data[:]); err != nil {
		return fmt.Errorf("flush page %d: %w", pageID, err)
	}
	pg.setDirty(false)
	return nil
}

// FlushAllPages flushes every dirty resident page. Stops at the first
// write error.
func (b *BufferPoolManager) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pg := range b.pages {
		if !pg.ID().Valid() || !pg.IsDirty() {
			continue
		}
		if err := b.flushPageLocked(pg.ID()); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage drops a page from the cache and returns its frame to the free
// list. A page that is not resident is a no-op; a pinned page is refused.
func (b *BufferPoolManager) DeletePage(pageID storage.PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return nil
	}

	pg := b.pages[frameID]
	if pg.PinCount() > 0 {
		return ErrPagePinned
	}

	delete(b.pageTable, pageID)
	b.replacer.Remove(frameID)
	pg.reset()
	b.freeList = append(b.freeList, frameID)
	return nil
}

// acquireFrame takes a frame off the free list or evicts one, writing the
// victim's page back if dirty. Caller holds the pool latch.
func (b *BufferPoolManager) acquireFrame() (FrameID, error) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	frameID, ok := b.replacer.Evict()
	if !ok {
		return 0, ErrNoFrameAvailable
	}

	pg := b.pages[frameID]
	if pg.ID().Valid() {
		if pg.IsDirty() {
			if b.logManager != nil {
				if err := b.logManager.Flush(); err != nil {
					b.unEvict(frameID)
					return 0, fmt.Errorf("flush log before write back: %w", err)
				}
			}
			if err := b.diskManager.WritePage(pg.ID(), pg.data[:]); err != nil {
				b.unEvict(frameID)
				return 0, fmt.Errorf("write back page %d: %w", pg.ID(), err)
			}
			pg.setDirty(false)
			slog.Debug("bufferpool.writeback", "page", pg.ID(), "frame", frameID)
		}
		delete(b.pageTable, pg.ID())
	}
	return frameID, nil
}

// unEvict puts a frame back under the replacer's control after a failed
// write back. The fresh access stamp distorts the frame's history a little;
// losing track of the frame entirely would be worse.
func (b *BufferPoolManager) unEvict(frameID FrameID) {
	b.replacer.RecordAccess(frameID, AccessUnknown)
	b.replacer.SetEvictable(frameID, true)
}

func (b *BufferPoolManager) pinPageToFrame(pg *Page, frameID FrameID, accessType AccessType) {
	b.pageTable[pg.id] = frameID
	pg.incPinCount()
	b.replacer.RecordAccess(frameID, accessType)
	b.replacer.SetEvictable(frameID, false)
}

func (b *BufferPoolManager) allocatePage() storage.PageID {
	id := b.nextPageID
	b.nextPageID++
	return id
}

// PoolSize returns the number of frames.
func (b *BufferPoolManager) PoolSize() int { return len(b.pages) }

// NumResident returns the number of cached pages.
func (b *BufferPoolManager) NumResident() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pageTable)
}

// GetPages exposes the frame array for inspection. Test use only.
func (b *BufferPoolManager) GetPages() []*Page { return b.pages }
