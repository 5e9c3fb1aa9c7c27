package bufferpool

import (
	"github.com/tuannm99/pagecache/internal/storage"
)

// BasicPageGuard pins a page for the guard's lifetime and unpins it exactly
// once on Drop. Go has no destructors, so Drop is the release point; it is
// idempotent, and ownership can be handed between guards with MoveFrom.
// A guard from a failed fetch owns nothing: IsValid reports false and the
// data accessors return nil.
type BasicPageGuard struct {
	bpm     *BufferPoolManager
	page    *Page
	isDirty bool
}

func (g *BasicPageGuard) IsValid() bool { return g.page != nil }

func (g *BasicPageGuard) PageID() storage.PageID {
	if g.page == nil {
		return storage.InvalidPageID
	}
	return g.page.ID()
}

// Data returns a read view of the page bytes, or nil for an empty guard.
func (g *BasicPageGuard) Data() []byte {
	if g.page == nil {
		return nil
	}
	return g.page.Data()[:]
}

// DataMut returns a writable view of the page bytes and marks the page to
// be unpinned dirty.
func (g *BasicPageGuard) DataMut() []byte {
	if g.page == nil {
		return nil
	}
	g.isDirty = true
	return g.page.Data()[:]
}

// Drop unpins the page. Safe to call more than once; only the first call
// does anything.
func (g *BasicPageGuard) Drop() {
	if g.page == nil {
		return
	}
	b, pg, dirty := g.bpm, g.page, g.isDirty
	g.page = nil
	g.isDirty = false
	b.UnpinPage(pg.ID(), dirty, AccessUnknown)
}

// MoveFrom transfers ownership from other to g. Whatever g currently holds
// is dropped first; other is left empty so its Drop becomes a no-op.
func (g *BasicPageGuard) MoveFrom(other *BasicPageGuard) {
	if g == other {
		return
	}
	g.Drop()
	g.bpm = other.bpm
	g.page = other.page
	g.isDirty = other.isDirty
	other.page = nil
	other.isDirty = false
}

// ReadPageGuard additionally holds the page's shared latch. It exposes only
// the read view and never dirties the page.
type ReadPageGuard struct {
	guard BasicPageGuard
}

func (g *ReadPageGuard) IsValid() bool          { return g.guard.IsValid() }
func (g *ReadPageGuard) PageID() storage.PageID { return g.guard.PageID() }
func (g *ReadPageGuard) Data() []byte           { return g.guard.Data() }

// Drop releases the shared latch, then unpins. Idempotent.
func (g *ReadPageGuard) Drop() {
	if g.guard.page != nil {
		g.guard.page.RUnlatch()
	}
	g.guard.Drop()
}

func (g *ReadPageGuard) MoveFrom(other *ReadPageGuard) {
	if g == other {
		return
	}
	g.Drop()
	g.guard.MoveFrom(&other.guard)
}

// WritePageGuard additionally holds the page's exclusive latch. Touching
// the page through DataMut marks it dirty on drop.
type WritePageGuard struct {
	guard BasicPageGuard
}

func (g *WritePageGuard) IsValid() bool          { return g.guard.IsValid() }
func (g *WritePageGuard) PageID() storage.PageID { return g.guard.PageID() }
func (g *WritePageGuard) Data() []byte           { return g.guard.Data() }
func (g *WritePageGuard) DataMut() []byte        { return g.guard.DataMut() }

// Drop releases the exclusive latch, then unpins. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.guard.page != nil {
		g.guard.page.WUnlatch()
	}
	g.guard.Drop()
}

func (g *WritePageGuard) MoveFrom(other *WritePageGuard) {
	if g == other {
		return
	}
	g.Drop()
	g.guard.MoveFrom(&other.guard)
}

// FetchPageBasic wraps FetchPage in a scoped guard.
func (b *BufferPoolManager) FetchPageBasic(pageID storage.PageID) *BasicPageGuard {
	pg, err := b.FetchPage(pageID, AccessUnknown)
	if err != nil {
		return &BasicPageGuard{bpm: b}
	}
	return &BasicPageGuard{bpm: b, page: pg}
}

// FetchPageRead fetches the page and takes its shared latch. The latch is
// taken after the pin succeeds, never under the pool latch.
func (b *BufferPoolManager) FetchPageRead(pageID storage.PageID) *ReadPageGuard {
	pg, err := b.FetchPage(pageID, AccessUnknown)
	if err != nil {
		return &ReadPageGuard{guard: BasicPageGuard{bpm: b}}
	}
	pg.RLatch()
	return &ReadPageGuard{guard: BasicPageGuard{bpm: b, page: pg}}
}

// FetchPageWrite fetches the page and takes its exclusive latch.
func (b *BufferPoolManager) FetchPageWrite(pageID storage.PageID) *WritePageGuard {
	pg, err := b.FetchPage(pageID, AccessUnknown)
	if err != nil {
		return &WritePageGuard{guard: BasicPageGuard{bpm: b}}
	}
	pg.WLatch()
	return &WritePageGuard{guard: BasicPageGuard{bpm: b, page: pg}}
}

// NewPageGuarded wraps NewPage in a scoped guard; the new page id is read
// off the guard.
func (b *BufferPoolManager) NewPageGuarded() *BasicPageGuard {
	pg, err := b.NewPage()
	if err != nil {
		return &BasicPageGuard{bpm: b}
	}
	return &BasicPageGuard{bpm: b, page: pg}
}
