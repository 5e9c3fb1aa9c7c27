package storage

// DiskManager provides page-addressed access to the backing store. The
// buffer pool treats it as a slow, thread-safe oracle: both calls are
// synchronous and may block arbitrarily long.
type DiskManager interface {
	// ReadPage reads exactly one page (PageSize bytes) into dst. Reads of
	// pages that were never written are zero-filled so that "sparse" pages
	// can be lazily initialized by higher layers.
	ReadPage(id PageID, dst []byte) error

	// WritePage writes exactly one page from src. Idempotent at this layer.
	WritePage(id PageID, src []byte) error

	// Size returns the current store size in bytes.
	Size() int64

	// ShutDown flushes and closes the store. Called once at teardown by
	// the owner; every call after the first returns ErrClosed.
	ShutDown() error
}

func checkPageBuf(id PageID, buf []byte) error {
	if !id.Valid() {
		return ErrInvalidPageID
	}
	if len(buf) != PageSize {
		return ErrWrongBufferSize
	}
	return nil
}
