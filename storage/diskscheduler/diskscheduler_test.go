package diskscheduler

import (
	"path/filepath"
	"sync"
	"testing"

	"dbkernel/storage/diskmanager"
	"dbkernel/storage/page"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, *diskmanager.DiskManager) {
	t.Helper()
	dm, err := diskmanager.New(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	sched := New(dm, 2)
	t.Cleanup(func() {
		sched.Shutdown()
		dm.Close()
	})
	return sched, dm
}

func TestWriteThenReadThroughScheduler(t *testing.T) {
	sched, _ := newTestScheduler(t)

	var want [page.Size]byte
	want[0] = 0x42

	writeReq := NewRequest(true, 1, &want)
	sched.Schedule(writeReq)
	require.NoError(t, <-writeReq.Done)

	var got [page.Size]byte
	readReq := NewRequest(false, 1, &got)
	sched.Schedule(readReq)
	require.NoError(t, <-readReq.Done)

	require.Equal(t, want, got)
}

func TestConcurrentRequestsAllComplete(t *testing.T) {
	sched, _ := newTestScheduler(t)

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id page.ID) {
			defer wg.Done()
			var buf [page.Size]byte
			req := NewRequest(true, id, &buf)
			sched.Schedule(req)
			require.NoError(t, <-req.Done)
		}(page.ID(i))
	}
	wg.Wait()
}

func TestShutdownDrainsInFlightWork(t *testing.T) {
	sched, _ := newTestScheduler(t)

	var buf [page.Size]byte
	req := NewRequest(true, 0, &buf)
	sched.Schedule(req)
	require.NoError(t, <-req.Done)

	sched.Shutdown()
}
