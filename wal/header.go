// Package wal implements the kernel's single global, logical write-ahead
// log: one append-only file per database directory shared by every table,
// holding LSN-chained, CRC-protected Put/Delete/Checkpoint/TxnCommit/
// TxnAbort records. Grounded on the teacher's btree/wal.go (CRC framing,
// header-then-records layout, tail read-all/truncate shape), regrown from
// a per-page physical log into the spec's logical, multi-table,
// transaction-aware record stream.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/intellect4all/kvkernel/common"
)

const (
	magic       = "KVWL"
	fileVersion = uint32(1)

	// HeaderSize is the fixed on-disk size of the file header; the first
	// record always starts at this offset.
	HeaderSize = 512

	headerFixedFields = 4 + 4 + 4 + 8 + 8 // magic + version + page_size_hint + last_lsn + checkpoint_lsn
)

// fileHeader is the WAL's 512-byte preamble.
type fileHeader struct {
	version      uint32
	pageSizeHint uint32
	lastLSN      uint64
	checkpointLSN uint64
}

func encodeHeader(h fileHeader) []byte {
	buf := make([]byte, HeaderSize)
	off := 0
	copy(buf[off:], magic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.version)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.pageSizeHint)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.lastLSN)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.checkpointLSN)
	off += 8
	crc := crc32.ChecksumIEEE(buf[:headerFixedFields])
	binary.LittleEndian.PutUint32(buf[headerFixedFields:], crc)
	return buf
}

func decodeHeader(buf []byte) (fileHeader, error) {
	if len(buf) < HeaderSize {
		return fileHeader{}, fmt.Errorf("%w: wal header truncated", common.ErrCorrupt)
	}
	if string(buf[0:4]) != magic {
		return fileHeader{}, fmt.Errorf("%w: wal magic mismatch", common.ErrCorrupt)
	}
	storedCRC := binary.LittleEndian.Uint32(buf[headerFixedFields:])
	if crc32.ChecksumIEEE(buf[:headerFixedFields]) != storedCRC {
		return fileHeader{}, fmt.Errorf("%w: wal header crc mismatch", common.ErrCorrupt)
	}
	var h fileHeader
	off := 4
	h.version = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.pageSizeHint = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.lastLSN = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.checkpointLSN = binary.LittleEndian.Uint64(buf[off:])
	if h.version != fileVersion {
		return fileHeader{}, fmt.Errorf("%w: unsupported wal version %d", common.ErrCorrupt, h.version)
	}
	return h, nil
}
