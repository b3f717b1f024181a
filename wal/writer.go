package wal

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/logx"
	"github.com/intellect4all/kvkernel/metrics"
)

// DefaultWriteBufferSize is the bounded in-memory buffer flushed on sync
// or overflow, per spec.md §4.6.
const DefaultWriteBufferSize = 64 * 1024

// Writer is the single global WAL writer shared by every table in a
// Connection. Grounded on the teacher's WAL.offset/flushed bookkeeping
// (btree/wal.go), regrown to logical LSN-chained records with a bounded
// write buffer and group-commit sync policy.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string

	bufCap         int
	buf            []byte
	bufStartOffset int64
	writeOffset    int64
	lastLSN        uint64
	checkpointLSN  uint64

	syncIntervalMS uint64
	lastSyncMS     atomic.Int64
}

// Open creates or opens the WAL file at path. On an existing file it
// validates the header, then tail-scans from the header end to the true
// durable end, truncating at the first structural error and logging the
// truncation — the crash-safe "resume appending from here" entry point.
func Open(path string, pageSizeHint uint32, syncIntervalMS uint64) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open wal %q: %v", common.ErrStorage, path, err)
	}

	w := &Writer{file: file, path: path, bufCap: DefaultWriteBufferSize, syncIntervalMS: syncIntervalMS}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if stat.Size() == 0 {
		if err := w.writeHeaderLocked(fileHeader{version: fileVersion, pageSizeHint: pageSizeHint}); err != nil {
			file.Close()
			return nil, err
		}
		w.writeOffset = HeaderSize
		w.bufStartOffset = HeaderSize
		if err := file.Sync(); err != nil {
			file.Close()
			return nil, err
		}
		return w, nil
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
	w.checkpointLSN = hdr.checkpointLSN

	endOffset, lastLSN, truncated, err := scanTail(file, HeaderSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	if truncated {
		logx.With("wal").Warn().Str("path", path).Int64("truncate_at", endOffset).
			Msg("wal tail scan found a structural break, truncating to last intact record")
		if err := file.Truncate(endOffset); err != nil {
			file.Close()
			return nil, err
		}
	}

	w.writeOffset = endOffset
	w.bufStartOffset = endOffset
	w.lastLSN = lastLSN

	hdr.lastLSN = lastLSN
	if err := w.writeHeaderLocked(hdr); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeaderLocked(h fileHeader) error {
	_, err := w.file.WriteAt(encodeHeader(h), 0)
	return err
}

// append is the shared low-level path every Log* helper funnels through.
func (w *Writer) append(recType uint8, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := uint64(w.writeOffset)
	rec := encodeRecord(recType, 0, lsn, w.lastLSN, payload)
	w.buf = append(w.buf, rec...)
	w.writeOffset += int64(len(rec))
	w.lastLSN = lsn

	if len(w.buf) >= w.bufCap {
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	}
	return lsn, nil
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.file.WriteAt(w.buf, w.bufStartOffset); err != nil {
		return fmt.Errorf("%w: wal write: %v", common.ErrStorage, err)
	}
	w.bufStartOffset += int64(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// LogPut appends a Put record and returns its LSN.
func (w *Writer) LogPut(store string, key, value []byte, txn uint64) (uint64, error) {
	return w.append(TypePut, EncodePut(store, key, value, txn))
}

// LogDelete appends a Delete record and returns its LSN.
func (w *Writer) LogDelete(store string, key []byte, txn uint64) (uint64, error) {
	return w.append(TypeDelete, EncodeDelete(store, key, txn))
}

// LogTxnCommit appends a TxnCommit record and returns its LSN.
func (w *Writer) LogTxnCommit(txnID, commitTS uint64) (uint64, error) {
	return w.append(TypeTxnCommit, EncodeTxnCommit(txnID, commitTS))
}

// LogTxnAbort appends a TxnAbort record and returns its LSN.
func (w *Writer) LogTxnAbort(txnID uint64) (uint64, error) {
	return w.append(TypeTxnAbort, EncodeTxnAbort(txnID))
}

// LogCheckpoint appends a Checkpoint record and returns the LSN
// immediately after it — the new replay start point once this
// checkpoint becomes durable.
func (w *Writer) LogCheckpoint() (uint64, error) {
	if _, err := w.append(TypeCheckpoint, nil); err != nil {
		return 0, err
	}
	w.mu.Lock()
	next := uint64(w.writeOffset)
	w.mu.Unlock()
	return next, nil
}

// Sync flushes the write buffer and fsyncs the file.
func (w *Writer) Sync() error {
	start := time.Now()
	defer func() { metrics.WALSyncSeconds.Observe(time.Since(start).Seconds()) }()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	return w.file.Sync()
}

// SetCheckpointLSN rewrites the header with a new checkpoint LSN and
// fsyncs it.
func (w *Writer) SetCheckpointLSN(lsn uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkpointLSN = lsn
	if err := w.writeHeaderLocked(fileHeader{
		version: fileVersion, lastLSN: w.lastLSN, checkpointLSN: lsn,
	}); err != nil {
		return err
	}
	return w.file.Sync()
}

// TruncateToCheckpoint resets the WAL to an empty log immediately after
// a successful checkpoint: the header's LSN fields are zeroed and the
// file is truncated back down to just the header.
func (w *Writer) TruncateToCheckpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(HeaderSize); err != nil {
		return err
	}
	w.writeOffset = HeaderSize
	w.bufStartOffset = HeaderSize
	w.lastLSN = 0
	w.checkpointLSN = 0
	w.buf = w.buf[:0]

	if err := w.writeHeaderLocked(fileHeader{version: fileVersion}); err != nil {
		return err
	}
	return w.file.Sync()
}

// MaybeSync implements the group-commit policy: syncIntervalMS == 0
// means sync on every call; otherwise it syncs only if at least
// syncIntervalMS have elapsed since the last sync, and a CAS on
// lastSyncMS ensures only one caller per interval actually pays for the
// fsync — concurrent callers within the same window return (false, nil).
func (w *Writer) MaybeSync(now time.Time) (bool, error) {
	nowMS := now.UnixMilli()
	if w.syncIntervalMS == 0 {
		if err := w.Sync(); err != nil {
			return false, err
		}
		w.lastSyncMS.Store(nowMS)
		return true, nil
	}

	last := w.lastSyncMS.Load()
	if nowMS-last < int64(w.syncIntervalMS) {
		return false, nil
	}
	if !w.lastSyncMS.CompareAndSwap(last, nowMS) {
		return false, nil
	}
	if err := w.Sync(); err != nil {
		return false, err
	}
	return true, nil
}

// Close flushes and fsyncs the file, then closes it.
func (w *Writer) Close() error {
	if err := w.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

// CheckpointLSN returns the most recently installed checkpoint LSN.
func (w *Writer) CheckpointLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checkpointLSN
}

// LastLSN returns the LSN of the most recently appended record, or 0 if
// the log is empty.
func (w *Writer) LastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}
