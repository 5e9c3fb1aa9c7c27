package bufferpool

import (
	"fmt"
	"math"

	"github.com/sasha-s/go-deadlock"
)

var _ Replacer = (*LRUKReplacer)(nil)

type lrukNode struct {
	fid       FrameID
	history   []uint64 // access timestamps, newest first, at most k entries
	evictable bool
}

// kDistance is the backward K-distance at time now: now minus the k-th
// most recent access, or +inf when fewer than k accesses are recorded.
func (n *lrukNode) kDistance(now uint64, k int) uint64 {
	if len(n.history) < k {
		return math.MaxUint64
	}
	return now - n.history[k-1]
}

// earliest is the least recent access still retained in the history.
func (n *lrukNode) earliest() uint64 { return n.history[len(n.history)-1] }

func (n *lrukNode) recordAccess(now uint64, k int) {
	if len(n.history) < k {
		n.history = append(n.history, 0)
	}
	copy(n.history[1:], n.history)
	n.history[0] = now
}

// LRUKReplacer selects victims by largest backward K-distance (O'Neil's
// LRU-K). Frames with fewer than K recorded accesses have infinite
// distance; among those, the one whose oldest retained access is furthest
// in the past wins, then the smaller frame id.
type LRUKReplacer struct {
	mu        deadlock.Mutex
	nodes     map[FrameID]*lrukNode
	numFrames int
	k         int
	currSize  int
	now       uint64 // logical clock, bumped on every access and evict
}

func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		nodes:     make(map[FrameID]*lrukNode),
		numFrames: numFrames,
		k:         k,
	}
}

func (r *LRUKReplacer) RecordAccess(frameID FrameID, _ AccessType) {
	if frameID < 0 || int(frameID) >= r.numFrames {
		panic(fmt.Sprintf("bufferpool: frame id %d out of range [0, %d)", frameID, r.numFrames))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.now++
	node, ok := r.nodes[frameID]
	if !ok {
		node = &lrukNode{fid: frameID, history: make([]uint64, 0, r.k)}
		r.nodes[frameID] = node
	}
	node.recordAccess(r.now, r.k)
}

func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok || node.evictable == evictable {
		return
	}
	node.evictable = evictable
	if evictable {
		r.currSize++
	} else {
		r.currSize--
	}
}

func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if node.evictable {
		r.currSize--
	}
	delete(r.nodes, frameID)
}

func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.now++
	if r.currSize == 0 {
		return 0, false
	}

	var victim *lrukNode
	var victimDist uint64
	for _, node := range r.nodes {
		if !node.evictable {
			continue
		}
		dist := node.kDistance(r.now, r.k)
		if victim == nil || dist > victimDist {
			victim, victimDist = node, dist
			continue
		}
		if dist == victimDist && dist == math.MaxUint64 {
			if node.earliest() < victim.earliest() ||
				(node.earliest() == victim.earliest() && node.fid < victim.fid) {
				victim = node
			}
		}
	}

	delete(r.nodes, victim.fid)
	r.currSize--
	return victim.fid, true
}

func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
