// Package bufferpool implements the buffer pool manager: the fixed-size
// in-memory cache of pages that mediates all access between higher layers
// and stable storage. It owns pinning, dirtiness, and the page table, and
// asks a replacer which frame to reclaim when it runs out of free ones.
package bufferpool

import (
	"fmt"
	"sync"

	"dbkernel/storage/diskscheduler"
	"dbkernel/storage/page"
	"dbkernel/storage/replacer"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// LogManager is an opaque handle for a future write-ahead-log hook. The
// manager stores it and returns it via LogManager(), but never calls into
// it — WAL ordering is out of scope for this core.
type LogManager interface{}

// BufferPoolManager owns a fixed array of frames, the page table mapping
// resident pages to frames, the free list of unoccupied frames, and the
// replacer consulted when no frame is free. Every public method that reads
// or changes pool state acquires mu for the rest of its body, including
// across the blocking disk I/O issued through scheduler — a deliberate
// simplification matching the reference design rather than releasing the
// lock mid-fetch. LogManager and PoolSize read fields fixed at construction
// and take no lock.
type BufferPoolManager struct {
	mu sync.Mutex

	frames    []*page.Frame
	pageTable map[page.ID]page.FrameID
	freeList  []page.FrameID

	replacer  *replacer.LRUKReplacer
	scheduler *diskscheduler.Scheduler
	log       LogManager

	nextPageID     int64
	deallocatePage func(page.ID)

	closed bool

	logger *logrus.Entry
}

// New allocates poolSize frames, a replacer sized to match with history
// depth replacerK, and wires up scheduler for disk I/O. logManager may be
// nil; it is stored opaquely per spec and never invoked.
func New(poolSize int, scheduler *diskscheduler.Scheduler, replacerK int, logManager LogManager) (*BufferPoolManager, error) {
	if poolSize <= 0 {
		return nil, fmt.Errorf("bufferpool: pool size must be positive, got %d", poolSize)
	}
	if scheduler == nil {
		return nil, fmt.Errorf("bufferpool: disk scheduler is required")
	}

	bpm := &BufferPoolManager{
		frames:    make([]*page.Frame, poolSize),
		pageTable: make(map[page.ID]page.FrameID, poolSize),
		freeList:  make([]page.FrameID, poolSize),
		replacer:  replacer.New(poolSize, replacerK),
		scheduler: scheduler,
		log:       logManager,
		logger:    logrus.WithField("component", "bufferpool"),
	}

	for i := 0; i < poolSize; i++ {
		bpm.frames[i] = &page.Frame{}
		bpm.freeList[i] = page.FrameID(i)
	}

	bpm.logger.WithFields(logrus.Fields{
		"pool_size":  poolSize,
		"pool_bytes": humanize.Bytes(uint64(poolSize) * page.Size),
		"replacer_k": replacerK,
	}).Info("buffer pool manager started")

	return bpm, nil
}

// SetDeallocateHook registers the page-id release callback invoked by
// DeletePage. It is a no-op by default — page ids are never reused whether
// or not this hook is set.
func (bpm *BufferPoolManager) SetDeallocateHook(fn func(page.ID)) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	bpm.deallocatePage = fn
}

// Shutdown flushes every resident page and marks the manager closed;
// subsequent NewPage/FetchPage calls return ErrClosed. It does not shut
// down the underlying scheduler — callers own that lifecycle separately.
func (bpm *BufferPoolManager) Shutdown() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if bpm.closed {
		return nil
	}
	for id, fid := range bpm.pageTable {
		frame := bpm.frames[fid]
		if err := bpm.writeFrame(id, frame); err != nil {
			return fmt.Errorf("bufferpool: flush page %d during shutdown: %w", id, err)
		}
		frame.Dirty = false
	}
	bpm.closed = true
	return nil
}

// LogManager returns the opaque handle passed to New, or nil.
func (bpm *BufferPoolManager) LogManager() LogManager {
	return bpm.log
}

// PoolSize returns the fixed number of frames.
func (bpm *BufferPoolManager) PoolSize() int {
	return len(bpm.frames)
}

// NewPage allocates a frame, assigns it a fresh page id, and returns a
// pinned frame handle. A nil frame with a nil error means the pool is
// exhausted (every frame pinned) — an expected operational outcome, not a
// fault. A non-nil error is ErrClosed after Shutdown, a fatal I/O failure
// flushing a dirty victim frame, or a replacer error recording the access.
func (bpm *BufferPoolManager) NewPage() (*page.Frame, page.ID, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if bpm.closed {
		return nil, page.InvalidID, ErrClosed
	}

	fid, err := bpm.allocateFrame()
	if err != nil {
		return nil, page.InvalidID, err
	}
	if fid == page.InvalidFrameID {
		return nil, page.InvalidID, nil
	}

	id := page.ID(bpm.nextPageID)
	bpm.nextPageID++

	frame := bpm.frames[fid]
	frame.Reset()
	frame.ID = id
	frame.PinCount = 1

	if err := bpm.replacer.RecordAccess(fid, page.AccessUnknown); err != nil {
		return nil, page.InvalidID, fmt.Errorf("bufferpool: record access for new frame %d: %w", fid, err)
	}
	_ = bpm.replacer.SetEvictable(fid, false)
	bpm.pageTable[id] = fid

	bpm.logger.WithFields(logrus.Fields{"page_id": int64(id), "frame_id": int32(fid)}).Debug("new page")
	return frame, id, nil
}

// FetchPage returns a pinned handle to page id, reading it from disk if it
// is not already resident. A nil frame with a nil error means the pool is
// exhausted.
func (bpm *BufferPoolManager) FetchPage(id page.ID, accessType page.AccessType) (*page.Frame, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if bpm.closed {
		return nil, ErrClosed
	}

	if fid, ok := bpm.pageTable[id]; ok {
		frame := bpm.frames[fid]
		frame.PinCount++
		if err := bpm.replacer.RecordAccess(fid, accessType); err != nil {
			return nil, fmt.Errorf("bufferpool: record access for frame %d: %w", fid, err)
		}
		_ = bpm.replacer.SetEvictable(fid, false)
		bpm.logger.WithFields(logrus.Fields{"page_id": int64(id), "frame_id": int32(fid)}).Debug("fetch page hit")
		return frame, nil
	}

	fid, err := bpm.allocateFrame()
	if err != nil {
		return nil, err
	}
	if fid == page.InvalidFrameID {
		return nil, nil
	}

	frame := bpm.frames[fid]
	frame.Reset()
	frame.ID = id

	if err := bpm.readFrame(id, frame); err != nil {
		// The frame never got mapped to id; return it to the free list so
		// it isn't stranded after this fatal error propagates.
		bpm.freeList = append(bpm.freeList, fid)
		return nil, fmt.Errorf("bufferpool: read page %d: %w", id, err)
	}
	frame.PinCount = 1

	if err := bpm.replacer.RecordAccess(fid, accessType); err != nil {
		return nil, fmt.Errorf("bufferpool: record access for frame %d: %w", fid, err)
	}
	_ = bpm.replacer.SetEvictable(fid, false)
	bpm.pageTable[id] = fid

	bpm.logger.WithFields(logrus.Fields{"page_id": int64(id), "frame_id": int32(fid)}).Debug("fetch page miss")
	return frame, nil
}

// UnpinPage decrements id's pin count and, if it reaches zero, makes the
// frame evictable. isDirty is OR'd into the frame's sticky dirty flag. It
// returns false if id is not resident or is already unpinned.
func (bpm *BufferPoolManager) UnpinPage(id page.ID, isDirty bool, accessType page.AccessType) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[id]
	if !ok {
		return false
	}
	frame := bpm.frames[fid]
	if frame.PinCount <= 0 {
		return false
	}

	frame.PinCount--
	frame.Dirty = frame.Dirty || isDirty

	if frame.PinCount == 0 {
		_ = bpm.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes id's frame to stable storage regardless of pin count and
// clears its dirty flag. It panics if id is the invalid sentinel — that is
// a contract violation, not an operational outcome.
func (bpm *BufferPoolManager) FlushPage(id page.ID) (bool, error) {
	if id == page.InvalidID {
		panic("bufferpool: FlushPage called with the invalid page id")
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[id]
	if !ok {
		return false, nil
	}

	frame := bpm.frames[fid]
	if err := bpm.writeFrame(id, frame); err != nil {
		return false, fmt.Errorf("bufferpool: flush page %d: %w", id, err)
	}
	frame.Dirty = false
	return true, nil
}

// FlushAllPages writes every resident page to stable storage. Order between
// pages is unspecified (map iteration order).
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for id, fid := range bpm.pageTable {
		frame := bpm.frames[fid]
		if err := bpm.writeFrame(id, frame); err != nil {
			return fmt.Errorf("bufferpool: flush page %d: %w", id, err)
		}
		frame.Dirty = false
	}
	return nil
}

// DeletePage removes id from the pool outright, discarding its contents
// without flushing. It returns true if id was not resident (vacuously
// deleted) or was removed successfully, and false if it is still pinned.
func (bpm *BufferPoolManager) DeletePage(id page.ID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.pageTable[id]
	if !ok {
		return true
	}

	frame := bpm.frames[fid]
	if frame.PinCount > 0 {
		return false
	}

	delete(bpm.pageTable, id)
	bpm.freeList = append(bpm.freeList, fid)

	if err := bpm.replacer.Remove(fid); err != nil {
		bpm.logger.WithError(err).WithField("frame_id", int32(fid)).Warn("replacer remove on delete")
	}

	frame.Reset()

	if bpm.deallocatePage != nil {
		bpm.deallocatePage(id)
	}
	return true
}

// allocateFrame implements the frame-allocation protocol: pop the free
// list if non-empty, else ask the replacer to evict, flushing the victim
// first if it was dirty. Returns page.InvalidFrameID with a nil error when
// the pool is exhausted, and a non-nil error only for a fatal I/O failure
// writing back a dirty victim.
func (bpm *BufferPoolManager) allocateFrame() (page.FrameID, error) {
	if n := len(bpm.freeList); n > 0 {
		fid := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		return fid, nil
	}

	fid, ok := bpm.replacer.Evict()
	if !ok {
		return page.InvalidFrameID, nil
	}

	frame := bpm.frames[fid]
	if frame.Dirty {
		if err := bpm.writeFrame(frame.ID, frame); err != nil {
			return page.InvalidFrameID, fmt.Errorf("bufferpool: flush victim frame %d: %w", fid, err)
		}
	}
	delete(bpm.pageTable, frame.ID)
	return fid, nil
}

// readFrame and writeFrame are the disk I/O bridge: build a request
// carrying the frame's buffer, submit it to the scheduler, and block on its
// completion signal before returning. The manager's mutex is held by every
// caller across this wait.
func (bpm *BufferPoolManager) readFrame(id page.ID, frame *page.Frame) error {
	req := diskscheduler.NewRequest(false, id, &frame.Data)
	bpm.scheduler.Schedule(req)
	return <-req.Done
}

func (bpm *BufferPoolManager) writeFrame(id page.ID, frame *page.Frame) error {
	req := diskscheduler.NewRequest(true, id, &frame.Data)
	bpm.scheduler.Schedule(req)
	return <-req.Done
}
