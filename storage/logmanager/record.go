package logmanager

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// recordHeaderSize is LSN(8) + length(4) + checksum(8).
const recordHeaderSize = 20

type record struct {
	LSN      uint64
	Data     []byte
	Checksum uint64
}

func newRecord(lsn uint64, data []byte) record {
	return record{LSN: lsn, Data: data, Checksum: checksum(lsn, data)}
}

func (r record) encode() []byte {
	buf := make([]byte, recordHeaderSize+len(r.Data))
	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint64(buf[12:20], r.Checksum)
	copy(buf[20:], r.Data)
	return buf
}

func (r record) valid() bool {
	return checksum(r.LSN, r.Data) == r.Checksum
}

// checksum hashes the LSN and the record body together so a record can't be
// silently reordered or truncated into a different, still-checksum-valid one.
func checksum(lsn uint64, data []byte) uint64 {
	h := xxhash.New()
	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)
	h.Write(lsnBytes[:])
	h.Write(data)
	return h.Sum64()
}
