package wal

import (
	"fmt"
	"os"

	"github.com/intellect4all/kvkernel/common"
)

// readRecordAt decodes one record at offset, verifying its CRC but not
// its LSN chain (the caller tracks that, since it depends on what was
// read before). ok=false, err=nil means a clean stop: EOF, or a partial
// tail left by a crash mid-write. err != nil means a structural problem
// (malformed header, checksum mismatch) that the caller should treat as
// "truncate here".
func readRecordAt(file *os.File, offset int64) (rec Record, size int64, ok bool, err error) {
	headerBuf := make([]byte, recordHeaderSize)
	n, _ := file.ReadAt(headerBuf, offset)
	if n < recordHeaderSize {
		return Record{}, 0, false, nil
	}

	rec, payloadLen, crc, derr := decodeRecordHeader(headerBuf)
	if derr != nil {
		return Record{}, 0, false, derr
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		n2, _ := file.ReadAt(payload, offset+recordHeaderSize)
		if n2 < int(payloadLen) {
			return Record{}, 0, false, nil
		}
	}

	if err := verifyRecordCRC(headerBuf, payload, crc); err != nil {
		return Record{}, 0, false, err
	}

	rec.Payload = payload
	return rec, recordHeaderSize + int64(payloadLen), true, nil
}

// scanTail reads every intact, chain-consistent record from start to the
// true durable end of the file, stopping at the first structural break
// (malformed header, bad CRC, or a broken prev_lsn chain) as well as at
// a clean EOF/partial tail. truncated reports whether a structural break
// was hit (as opposed to a clean stop), so the caller knows whether to
// actually truncate the file or leave it alone.
func scanTail(file *os.File, start int64) (endOffset int64, lastLSN uint64, truncated bool, err error) {
	offset := start
	var expectPrev uint64
	haveExpectation := true

	for {
		rec, size, ok, rerr := readRecordAt(file, offset)
		if rerr != nil {
			return offset, lastLSN, true, nil
		}
		if !ok {
			return offset, lastLSN, false, nil
		}
		if haveExpectation && rec.PrevLSN != expectPrev {
			return offset, lastLSN, true, nil
		}
		lastLSN = rec.LSN
		expectPrev = rec.LSN
		haveExpectation = true
		offset += size
	}
}

// Reader replays records from a WAL file starting at its checkpoint LSN
// (or just past the header, if none is set), for crash recovery.
type Reader struct {
	file        *os.File
	offset      int64
	lastLSN     uint64
	haveLastLSN bool
}

// NewReader opens path read-only and positions the reader at the stored
// checkpoint LSN, or at HeaderSize if no checkpoint has been recorded.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open wal for read %q: %v", common.ErrStorage, path, err)
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := file.ReadAt(headerBuf, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: read wal header: %v", common.ErrCorrupt, err)
	}
	hdr, err := decodeHeader(headerBuf)
	if err != nil {
		file.Close()
		return nil, err
	}

	start := int64(HeaderSize)
	if hdr.checkpointLSN >= HeaderSize {
		start = int64(hdr.checkpointLSN)
	}
	return &Reader{file: file, offset: start}, nil
}

// ReadRecord returns the next intact record, or nil with no error at a
// clean EOF/partial tail. A non-nil error marks a structural break:
// checksum mismatch, broken LSN chain, or malformed header/payload.
func (r *Reader) ReadRecord() (*Record, error) {
	rec, size, ok, err := readRecordAt(r.file, r.offset)
	if err != nil {
		return nil, fmt.Errorf("wal record at offset %d: %w", r.offset, err)
	}
	if !ok {
		return nil, nil
	}
	if r.haveLastLSN && rec.PrevLSN != r.lastLSN {
		return nil, fmt.Errorf("%w: broken wal lsn chain at offset %d", common.ErrCorrupt, r.offset)
	}
	r.lastLSN = rec.LSN
	r.haveLastLSN = true
	r.offset += size
	return &rec, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
