// Package logmanager implements a segmented, checksummed write-ahead log.
// It is a standalone, independently testable component: the buffer pool
// manager holds a handle to one but never calls into it — see
// bufferpool.LogManager. Anything that wants durable, replayable records
// (a lock manager's undo log, a catalog's DDL journal, a future recovery
// path) can open one directly.
package logmanager

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager appends records to a rotating sequence of segment files and
// replays them back in LSN order.
type Manager struct {
	dir string

	mu         sync.RWMutex
	segments   map[uint64]*segment
	current    *segment
	currentLSN uint64

	log *logrus.Entry
}

// Open creates dir if necessary, recovers any existing segments found in
// it, and returns a Manager ready to append. Recovery never replays
// records on open — callers drive that explicitly via ReplayFromLSN.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("logmanager: create dir %s: %w", dir, err)
	}

	m := &Manager{
		dir:      dir,
		segments: make(map[uint64]*segment),
		log:      logrus.WithField("component", "logmanager"),
	}

	if err := m.recover(); err != nil {
		return nil, err
	}

	if m.current == nil {
		if err := m.rotate(); err != nil {
			return nil, err
		}
	}

	m.log.WithFields(logrus.Fields{
		"dir":         dir,
		"segments":    len(m.segments),
		"current_lsn": m.currentLSN,
	}).Info("log manager opened")

	return m, nil
}

func (m *Manager) recover() error {
	matches, err := filepath.Glob(filepath.Join(m.dir, "segment-*.log"))
	if err != nil {
		return fmt.Errorf("logmanager: glob segments: %w", err)
	}

	var ids []uint64
	for _, path := range matches {
		name := filepath.Base(path)
		if !strings.HasPrefix(name, "segment-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		hex := strings.TrimSuffix(strings.TrimPrefix(name, "segment-"), ".log")
		id, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)

	var maxLSN uint64
	for _, id := range ids {
		seg := newSegment(id, m.dir)
		if err := seg.open(); err != nil {
			return err
		}
		m.segments[id] = seg

		lsn, err := scanMaxLSN(seg.path)
		if err != nil {
			return err
		}
		if lsn > maxLSN {
			maxLSN = lsn
		}
	}

	m.current = m.segments[ids[len(ids)-1]]
	m.currentLSN = maxLSN
	return nil
}

func scanMaxLSN(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("logmanager: open %s for scan: %w", path, err)
	}
	defer file.Close()

	var max uint64
	header := make([]byte, recordHeaderSize)
	for {
		if _, err := io.ReadFull(file, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return 0, fmt.Errorf("logmanager: scan %s: %w", path, err)
		}
		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[8:12])
		if lsn > max {
			max = lsn
		}
		if _, err := file.Seek(int64(dataLen), io.SeekCurrent); err != nil {
			return 0, fmt.Errorf("logmanager: scan %s: %w", path, err)
		}
	}
	return max, nil
}

func (m *Manager) rotate() error {
	id := uint64(len(m.segments))
	seg := newSegment(id, m.dir)
	if err := seg.open(); err != nil {
		return err
	}
	m.segments[id] = seg
	m.current = seg
	return nil
}

// AppendRecord assigns the next LSN, checksums and appends data to the
// current segment, rotating to a new one first if the current segment has
// reached its size limit. It returns the assigned LSN.
func (m *Manager) AppendRecord(data []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.isFull() {
		if err := m.rotate(); err != nil {
			return 0, err
		}
	}

	m.currentLSN++
	lsn := m.currentLSN
	rec := newRecord(lsn, data)

	if err := m.current.append(rec.encode()); err != nil {
		return 0, err
	}
	return lsn, nil
}

// ReplayFromLSN walks every segment in id order and invokes fn once per
// record whose LSN is >= startLSN, in the order records were written. fn
// returning an error stops the replay and the error propagates.
func (m *Manager) ReplayFromLSN(startLSN uint64, fn func(lsn uint64, data []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0, len(m.segments))
	for id := range m.segments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := m.replaySegment(m.segments[id], startLSN, fn); err != nil {
			return fmt.Errorf("logmanager: replay segment %d: %w", id, err)
		}
	}
	return nil
}

func (m *Manager) replaySegment(seg *segment, startLSN uint64, fn func(lsn uint64, data []byte) error) error {
	seg.mu.Lock()
	defer seg.mu.Unlock()

	file, err := os.Open(seg.path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := make([]byte, recordHeaderSize)
	for {
		if _, err := io.ReadFull(file, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return err
		}

		lsn := binary.BigEndian.Uint64(header[0:8])
		dataLen := binary.BigEndian.Uint32(header[8:12])
		wantChecksum := binary.BigEndian.Uint64(header[12:20])

		data := make([]byte, dataLen)
		if _, err := io.ReadFull(file, data); err != nil {
			return err
		}

		if checksum(lsn, data) != wantChecksum {
			return fmt.Errorf("checksum mismatch at lsn %d", lsn)
		}
		if lsn < startLSN {
			continue
		}
		if err := fn(lsn, data); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes the current segment to stable storage.
func (m *Manager) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.sync()
}

// Close flushes and closes every segment.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, seg := range m.segments {
		if err := seg.sync(); err != nil {
			return err
		}
		if err := seg.close(); err != nil {
			return err
		}
	}
	return nil
}
