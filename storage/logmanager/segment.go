package logmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// segmentSize bounds how large a single segment file grows before a new one
// is rotated in.
const segmentSize = 16 * 1024 * 1024

type segment struct {
	id   uint64
	path string

	mu   sync.Mutex
	file *os.File
	size int64
}

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%016x.log", id))
}

func newSegment(id uint64, dir string) *segment {
	return &segment{id: id, path: segmentPath(dir, id)}
}

// open opens (creating if necessary) the segment file in append mode and
// records its current size, so recovery can resume writing past existing
// records rather than truncating them.
func (s *segment) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return nil
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logmanager: open segment %s: %w", s.path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("logmanager: stat segment %s: %w", s.path, err)
	}

	s.file = file
	s.size = stat.Size()
	return nil
}

// append writes data at the current end of file. O_APPEND makes each write
// atomic with respect to other appenders sharing the descriptor.
func (s *segment) append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("logmanager: segment %d not open", s.id)
	}
	n, err := s.file.Write(data)
	if err != nil {
		return fmt.Errorf("logmanager: append to segment %d: %w", s.id, err)
	}
	s.size += int64(n)
	return nil
}

func (s *segment) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *segment) isFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size >= segmentSize
}
