// Package replacer implements the LRU-K eviction policy: the buffer pool
// manager asks it "which evictable frame should die next?" and nothing
// else. It has no knowledge of pages, pins, or disk I/O.
package replacer

import (
	"math"
	"sync"

	"dbkernel/storage/page"

	"github.com/sirupsen/logrus"
)

type node struct {
	// history holds up to k most-recent access timestamps, oldest first.
	history   []uint64
	evictable bool
}

// LRUKReplacer tracks access history for a bounded set of frame ids and
// answers eviction queries using the LRU-K policy: a frame with fewer than k
// recorded accesses is treated as infinitely old, so one-shot scans don't
// evict pages that have already proven themselves useful.
type LRUKReplacer struct {
	mu sync.Mutex

	numFrames int
	k         int

	currentTimestamp uint64
	currSize         int
	nodes            map[page.FrameID]*node

	log *logrus.Entry
}

// New constructs a replacer over frame ids in [0, numFrames). k is the
// number of most-recent accesses considered when ranking a frame's
// recency; it must be at least 1.
func New(numFrames, k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		numFrames: numFrames,
		k:         k,
		nodes:     make(map[page.FrameID]*node),
		log:       logrus.WithField("component", "replacer"),
	}
}

func (r *LRUKReplacer) inRange(frameID page.FrameID) bool {
	return frameID >= 0 && int(frameID) < r.numFrames
}

// RecordAccess registers an access at the next timestamp. It does not
// change the frame's evictability.
func (r *LRUKReplacer) RecordAccess(frameID page.FrameID, accessType page.AccessType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(frameID) {
		return ErrOutOfRange
	}

	n, ok := r.nodes[frameID]
	if !ok {
		n = &node{}
		r.nodes[frameID] = n
	}

	n.history = append(n.history, r.currentTimestamp)
	r.currentTimestamp++
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}

	return nil
}

// SetEvictable flips the evictability of a frame that has already had at
// least one access recorded. Maintains the evictable-node count returned by
// Size.
func (r *LRUKReplacer) SetEvictable(frameID page.FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(frameID) {
		return ErrOutOfRange
	}
	n, ok := r.nodes[frameID]
	if !ok {
		return ErrOutOfRange
	}

	if evictable != n.evictable {
		if evictable {
			r.currSize++
		} else {
			r.currSize--
		}
		n.evictable = evictable
	}
	return nil
}

// Evict picks a victim among evictable frames: the largest k-distance,
// ties broken by the smallest oldest-recorded timestamp. On success it
// removes the frame's node entirely.
func (r *LRUKReplacer) Evict() (page.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		victim    page.FrameID
		found     bool
		bestDist  uint64
		bestOldTS uint64
	)

	for frameID, n := range r.nodes {
		if !n.evictable {
			continue
		}

		oldest := n.history[0]
		var dist uint64
		if len(n.history) < r.k {
			dist = math.MaxUint64
		} else {
			dist = r.currentTimestamp - oldest
		}

		if !found ||
			dist > bestDist ||
			(dist == bestDist && oldest < bestOldTS) {
			victim, found = frameID, true
			bestDist, bestOldTS = dist, oldest
		}
	}

	if !found {
		return page.InvalidFrameID, false
	}

	delete(r.nodes, victim)
	r.currSize--
	r.log.WithField("frame_id", int32(victim)).Debug("evicted frame")
	return victim, true
}

// Remove explicitly drops a frame's node, used when the page occupying it
// is deleted outright rather than evicted. A frame with no recorded
// history is a no-op; a frame that is not evictable is a contract
// violation.
func (r *LRUKReplacer) Remove(frameID page.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inRange(frameID) {
		return ErrOutOfRange
	}
	n, ok := r.nodes[frameID]
	if !ok {
		return nil
	}
	if !n.evictable {
		return ErrInvalidState
	}

	delete(r.nodes, frameID)
	r.currSize--
	return nil
}

// Size returns the number of frames currently marked evictable.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
