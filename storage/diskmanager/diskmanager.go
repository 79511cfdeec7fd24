// Package diskmanager performs raw page-addressed I/O against a single
// backing file. It is a named collaborator of the buffer pool manager, not
// part of the core: it knows nothing about pinning, dirtiness, or eviction.
package diskmanager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"dbkernel/storage/page"
	"golang.org/x/sys/unix"
)

// DiskManager owns one open file and serves whole-page reads/writes at
// pageID*page.Size offsets.
type DiskManager struct {
	mu   sync.RWMutex
	file *os.File
	path string
}

// New opens (creating if necessary) the backing file and takes an advisory
// exclusive lock on it, so a second process cannot attach to the same store
// while this one is running.
func New(path string) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("diskmanager: open %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("diskmanager: lock %s: %w", path, err)
	}

	return &DiskManager{file: file, path: path}, nil
}

// ReadPage reads page.Size bytes at id's offset into dst. Reads past the
// current end of file (a page that was allocated but never written) yield a
// zero-filled page rather than an error.
func (dm *DiskManager) ReadPage(id page.ID, dst *[page.Size]byte) error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if dm.file == nil {
		return fmt.Errorf("diskmanager: closed")
	}
	if id < 0 {
		return fmt.Errorf("diskmanager: invalid page id %d", id)
	}

	offset := int64(id) * page.Size
	n, err := dm.file.ReadAt(dst[:], offset)
	if err != nil && n == 0 && !errors.Is(err, io.EOF) {
		return fmt.Errorf("diskmanager: read page %d: %w", id, err)
	}
	for i := n; i < page.Size; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes page.Size bytes from src at id's offset.
func (dm *DiskManager) WritePage(id page.ID, src *[page.Size]byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.file == nil {
		return fmt.Errorf("diskmanager: closed")
	}
	if id < 0 {
		return fmt.Errorf("diskmanager: invalid page id %d", id)
	}

	offset := int64(id) * page.Size
	if _, err := dm.file.WriteAt(src[:], offset); err != nil {
		return fmt.Errorf("diskmanager: write page %d: %w", id, err)
	}
	return nil
}

// Sync flushes the backing file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.file == nil {
		return fmt.Errorf("diskmanager: closed")
	}
	return dm.file.Sync()
}

// Close releases the file lock and closes the backing file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	_ = unix.Flock(int(dm.file.Fd()), unix.LOCK_UN)
	err := dm.file.Close()
	dm.file = nil
	return err
}
