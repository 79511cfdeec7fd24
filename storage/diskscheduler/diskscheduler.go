// Package diskscheduler serializes physical page I/O behind a worker pool so
// the buffer pool manager never talks to the disk manager directly. Callers
// submit a Request and block on its Done channel, mirroring the
// promise/future contract spec.md describes for the disk scheduler.
package diskscheduler

import (
	"sync"

	"dbkernel/storage/diskmanager"
	"dbkernel/storage/page"

	"github.com/sirupsen/logrus"
)

// Request is a single I/O operation: a direction, a target page id, a
// pointer to the frame's byte buffer, and a completion signal. Done is
// buffered with capacity 1 so a worker can hand back its result without
// waiting for the caller to be ready to receive it.
type Request struct {
	IsWrite bool
	PageID  page.ID
	Data    *[page.Size]byte
	Done    chan error
}

// NewRequest builds a Request with its completion channel already
// allocated.
func NewRequest(isWrite bool, id page.ID, data *[page.Size]byte) *Request {
	return &Request{IsWrite: isWrite, PageID: id, Data: data, Done: make(chan error, 1)}
}

// Scheduler is an asynchronous request queue in front of a DiskManager.
type Scheduler struct {
	dm    *diskmanager.DiskManager
	queue chan *Request
	wg    sync.WaitGroup
	log   *logrus.Entry

	closeOnce sync.Once
}

// New starts workers goroutines draining the request queue against dm.
func New(dm *diskmanager.DiskManager, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		dm:    dm,
		queue: make(chan *Request, 64),
		log:   logrus.WithField("component", "diskscheduler"),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for req := range s.queue {
		var err error
		if req.IsWrite {
			err = s.dm.WritePage(req.PageID, req.Data)
			s.log.WithFields(logrus.Fields{"page_id": int64(req.PageID), "op": "write"}).Debug("scheduled io complete")
		} else {
			err = s.dm.ReadPage(req.PageID, req.Data)
			s.log.WithFields(logrus.Fields{"page_id": int64(req.PageID), "op": "read"}).Debug("scheduled io complete")
		}
		req.Done <- err
	}
}

// Schedule enqueues req for a worker to pick up. It never runs the I/O
// inline, even if a worker is idle.
func (s *Scheduler) Schedule(req *Request) {
	s.queue <- req
}

// Shutdown stops accepting new requests and waits for in-flight ones to
// finish. Calling Schedule after Shutdown panics, matching a closed-channel
// send — callers must stop issuing requests before shutting down.
func (s *Scheduler) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}
