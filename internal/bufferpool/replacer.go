package bufferpool

// AccessType describes what kind of operation touched a page. The current
// policy ignores it; it is carried through the API for scan-resistant
// policies to use later.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

// Replacer decides which unpinned frame loses its page when the pool is
// full. It is keyed purely by frame index and knows nothing about page ids.
type Replacer interface {
	// RecordAccess stamps the frame with the current logical time,
	// creating its node (non-evictable) on first access.
	RecordAccess(frameID FrameID, accessType AccessType)

	// SetEvictable toggles eviction candidacy. Unknown frames are a no-op.
	SetEvictable(frameID FrameID, evictable bool)

	// Evict selects a victim among evictable frames, removes its node and
	// returns its id. ok is false when no frame is evictable.
	Evict() (frameID FrameID, ok bool)

	// Remove drops the frame's node and its history. Unknown frames are a
	// no-op.
	Remove(frameID FrameID)

	// Size returns the number of evictable frames.
	Size() int
}
