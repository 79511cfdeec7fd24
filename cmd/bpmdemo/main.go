// bpmdemo wires a disk manager, disk scheduler, buffer pool manager, and
// log manager together and walks through the cold-fill/evict, all-pinned,
// dirty-eviction, and pinned-delete scenarios. Run from repo root:
// go run ./cmd/bpmdemo
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"dbkernel/storage/bufferpool"
	"dbkernel/storage/diskmanager"
	"dbkernel/storage/diskscheduler"
	"dbkernel/storage/logmanager"
	"dbkernel/storage/page"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.WithField("component", "bpmdemo")

	dir, err := os.MkdirTemp("", "bpmdemo-")
	if err != nil {
		log.WithError(err).Fatal("create run dir")
	}
	defer os.RemoveAll(dir)

	dm, err := diskmanager.New(filepath.Join(dir, "heap.db"))
	if err != nil {
		log.WithError(err).Fatal("open disk manager")
	}
	defer dm.Close()

	sched := diskscheduler.New(dm, 4)
	defer sched.Shutdown()

	lm, err := logmanager.Open(filepath.Join(dir, "wal"))
	if err != nil {
		log.WithError(err).Fatal("open log manager")
	}
	defer lm.Close()

	bpm, err := bufferpool.New(2, sched, 2, lm)
	if err != nil {
		log.WithError(err).Fatal("construct buffer pool manager")
	}

	log.Info("scenario: cold fill then evict")
	f1, id1, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page 1")
	}
	f1.Data[0] = 0x01
	bpm.UnpinPage(id1, true, page.AccessUnknown)

	f2, id2, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page 2")
	}
	_ = f2
	bpm.UnpinPage(id2, false, page.AccessUnknown)
	log.WithFields(logrus.Fields{"page_1": int64(id1), "page_2": int64(id2)}).Info("pool now full, both unpinned")

	log.Info("scenario: all frames pinned returns pool-exhausted, not an error")
	pinned1, id3, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page 3")
	}
	pinned2, id4, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page 4")
	}
	frame, id, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page 5 should not error")
	}
	if frame != nil {
		log.Fatal("expected pool exhaustion, got a frame")
	}
	log.WithField("returned_id", int64(id)).Info("pool exhausted as expected, no handle returned")
	bpm.UnpinPage(id3, false, page.AccessUnknown)
	bpm.UnpinPage(id4, false, page.AccessUnknown)
	_ = pinned1
	_ = pinned2

	log.Info("scenario: dirty victim is flushed before its frame is reused")
	f5, id5, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page 5")
	}
	f5.Data[0] = 0xFF
	bpm.UnpinPage(id5, true, page.AccessUnknown)

	// Allocate two more pages to force id5's frame to be evicted and
	// written back, then fetch it again to confirm the write survived.
	_, idX, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page x")
	}
	bpm.UnpinPage(idX, false, page.AccessUnknown)

	_, idY, err := bpm.NewPage()
	if err != nil {
		log.WithError(err).Fatal("new page y")
	}
	bpm.UnpinPage(idY, false, page.AccessUnknown)

	refetched, err := bpm.FetchPage(id5, page.AccessUnknown)
	if err != nil {
		log.WithError(err).Fatal("refetch evicted dirty page")
	}
	if refetched.Data[0] != 0xFF {
		log.Fatal("dirty write did not survive eviction round trip")
	}
	log.Info("dirty write survived eviction and refetch")
	bpm.UnpinPage(id5, false, page.AccessUnknown)

	log.Info("scenario: deleting a pinned page is refused")
	held, err := bpm.FetchPage(id5, page.AccessUnknown)
	if err != nil {
		log.WithError(err).Fatal("fetch page to pin it")
	}
	_ = held
	if bpm.DeletePage(id5) {
		log.Fatal("expected delete of pinned page to fail")
	}
	bpm.UnpinPage(id5, false, page.AccessUnknown)
	if !bpm.DeletePage(id5) {
		log.Fatal("expected delete to succeed once unpinned")
	}
	log.Info("delete succeeded once the page was unpinned")

	lsn, err := lm.AppendRecord([]byte("demo checkpoint marker"))
	if err != nil {
		log.WithError(err).Fatal("append log record")
	}
	log.WithField("lsn", lsn).Info("wrote an independent log record (never read by the buffer pool)")

	if err := bpm.Shutdown(); err != nil {
		log.WithError(err).Fatal("shutdown buffer pool manager")
	}
	log.Info("buffer pool manager shut down cleanly")

	fmt.Println("bpmdemo completed all scenarios successfully")
}
