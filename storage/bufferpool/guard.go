package bufferpool

import (
	"dbkernel/storage/page"
)

// BasicPageGuard wraps a pinned frame and releases it exactly once, on the
// first call to Release. It takes no latch of its own —
// callers serialize access to the frame's contents themselves. A guard's
// zero value is not usable; construct one via the manager's FetchPageBasic
// or NewPageGuarded.
type BasicPageGuard struct {
	bpm      *BufferPoolManager
	frame    *page.Frame
	id       page.ID
	released bool
}

func newBasicGuard(bpm *BufferPoolManager, frame *page.Frame, id page.ID) *BasicPageGuard {
	return &BasicPageGuard{bpm: bpm, frame: frame, id: id}
}

// PageID returns the id of the page the guard holds.
func (g *BasicPageGuard) PageID() page.ID { return g.id }

// Data returns the frame's raw buffer. Callers must not retain it past
// Release.
func (g *BasicPageGuard) Data() *[page.Size]byte { return &g.frame.Data }

// MarkDirty sets the frame's dirty flag without releasing the pin.
func (g *BasicPageGuard) MarkDirty() { g.frame.Dirty = true }

// Release unpins the frame, propagating isDirty into the frame's sticky
// dirty flag. A second call is a no-op, matching Go's lack of
// move-only/destructor semantics — callers must not rely on a guard going
// out of scope to release it.
func (g *BasicPageGuard) Release(isDirty bool) {
	if g.released {
		return
	}
	g.released = true
	g.bpm.UnpinPage(g.id, isDirty, page.AccessUnknown)
}

// UpgradeRead takes the frame's read latch and returns a ReadPageGuard that
// owns the remaining pin. The BasicPageGuard must not be used again.
func (g *BasicPageGuard) UpgradeRead() *ReadPageGuard {
	g.frame.Latch.RLock()
	g.released = true
	return &ReadPageGuard{bpm: g.bpm, frame: g.frame, id: g.id}
}

// UpgradeWrite takes the frame's write latch and returns a WritePageGuard
// that owns the remaining pin. The BasicPageGuard must not be used again.
func (g *BasicPageGuard) UpgradeWrite() *WritePageGuard {
	g.frame.Latch.Lock()
	g.released = true
	return &WritePageGuard{bpm: g.bpm, frame: g.frame, id: g.id}
}

// ReadPageGuard holds a frame's pin and its read latch. Release drops both
// and, unlike WritePageGuard, never marks the frame dirty.
type ReadPageGuard struct {
	bpm      *BufferPoolManager
	frame    *page.Frame
	id       page.ID
	released bool
}

func (g *ReadPageGuard) PageID() page.ID { return g.id }

func (g *ReadPageGuard) Data() *[page.Size]byte { return &g.frame.Data }

// Release drops the read latch and unpins the frame. A second call is a
// no-op.
func (g *ReadPageGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.frame.Latch.RUnlock()
	g.bpm.UnpinPage(g.id, false, page.AccessUnknown)
}

// WritePageGuard holds a frame's pin and its write latch. Every Release
// marks the frame dirty — a writer always assumes it changed the page.
type WritePageGuard struct {
	bpm      *BufferPoolManager
	frame    *page.Frame
	id       page.ID
	released bool
}

func (g *WritePageGuard) PageID() page.ID { return g.id }

func (g *WritePageGuard) Data() *[page.Size]byte { return &g.frame.Data }

// Release drops the write latch and unpins the frame, marking it dirty.
// A second call is a no-op.
func (g *WritePageGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.frame.Latch.Unlock()
	g.bpm.UnpinPage(g.id, true, page.AccessUnknown)
}

// FetchPageBasic fetches id and wraps it in a BasicPageGuard. A nil guard
// with a nil error means the pool is exhausted.
func (bpm *BufferPoolManager) FetchPageBasic(id page.ID, accessType page.AccessType) (*BasicPageGuard, error) {
	frame, err := bpm.FetchPage(id, accessType)
	if err != nil || frame == nil {
		return nil, err
	}
	return newBasicGuard(bpm, frame, id), nil
}

// FetchPageRead fetches id, takes its read latch, and returns a
// ReadPageGuard. A nil guard with a nil error means the pool is exhausted.
func (bpm *BufferPoolManager) FetchPageRead(id page.ID, accessType page.AccessType) (*ReadPageGuard, error) {
	frame, err := bpm.FetchPage(id, accessType)
	if err != nil || frame == nil {
		return nil, err
	}
	frame.Latch.RLock()
	return &ReadPageGuard{bpm: bpm, frame: frame, id: id}, nil
}

// FetchPageWrite fetches id, takes its write latch, and returns a
// WritePageGuard. A nil guard with a nil error means the pool is exhausted.
func (bpm *BufferPoolManager) FetchPageWrite(id page.ID, accessType page.AccessType) (*WritePageGuard, error) {
	frame, err := bpm.FetchPage(id, accessType)
	if err != nil || frame == nil {
		return nil, err
	}
	frame.Latch.Lock()
	return &WritePageGuard{bpm: bpm, frame: frame, id: id}, nil
}

// NewPageGuarded allocates a fresh page and wraps it in a BasicPageGuard.
func (bpm *BufferPoolManager) NewPageGuarded() (*BasicPageGuard, page.ID, error) {
	frame, id, err := bpm.NewPage()
	if err != nil || frame == nil {
		return nil, page.InvalidID, err
	}
	return newBasicGuard(bpm, frame, id), id, nil
}
