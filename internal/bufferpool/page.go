package bufferpool

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"

	"github.com/tuannm99/pagecache/internal/storage"
)

// FrameID indexes one slot of the buffer pool.
type FrameID int32

// Page is one frame of the pool: a page-sized buffer plus the book-keeping
// the buffer pool manager needs (pin count, dirty flag, resident page id).
// Frames are allocated once at pool construction and reused between pages,
// never freed.
//
// The dirty flag and page id are guarded by the pool latch. The pin count
// is atomic so guards can read it without the latch. The RW latch guards
// only the data buffer and must never be taken while holding the pool latch.
type Page struct {
	id       storage.PageID
	pinCount int32
	isDirty  bool
	data     [storage.PageSize]byte
	rwlatch  deadlock.RWMutex
}

func newPage() *Page {
	return &Page{id: storage.InvalidPageID}
}

func (p *Page) ID() storage.PageID { return p.id }

func (p *Page) PinCount() int32 { return atomic.LoadInt32(&p.pinCount) }

func (p *Page) incPinCount() { atomic.AddInt32(&p.pinCount, 1) }

func (p *Page) decPinCount() { atomic.AddInt32(&p.pinCount, -1) }

func (p *Page) IsDirty() bool { return p.isDirty }

func (p *Page) setDirty(dirty bool) { p.isDirty = dirty }

// Data returns the page buffer. Callers that did not go through a guard
// must hold the appropriate latch themselves.
func (p *Page) Data() *[storage.PageSize]byte { return &p.data }

// reset returns the frame to its never-loaded state: zero bytes, no page,
// unpinned, clean.
func (p *Page) reset() {
	p.data = [storage.PageSize]byte{}
	p.id = storage.InvalidPageID
	atomic.StoreInt32(&p.pinCount, 0)
	p.isDirty = false
}

func (p *Page) RLatch()   { p.rwlatch.RLock() }
func (p *Page) RUnlatch() { p.rwlatch.RUnlock() }
func (p *Page) WLatch()   { p.rwlatch.Lock() }
func (p *Page) WUnlatch() { p.rwlatch.Unlock() }
