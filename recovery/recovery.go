// Package recovery implements the two-pass WAL transaction table used to
// replay a crashed database directory: pass one classifies every
// transaction as committed, aborted, or pending (no commit/abort seen,
// so presumed aborted); pass two replays only the records belonging to
// committed transactions. Grounded on
// original_source/src/txn/recovery.rs's RecoveryTxnTable.
package recovery

import "github.com/intellect4all/kvkernel/wal"

// Table classifies transactions seen during a WAL scan.
type Table struct {
	committed map[uint64]struct{}
	aborted   map[uint64]struct{}
	pending   map[uint64]struct{}
}

// NewTable returns an empty transaction table.
func NewTable() *Table {
	return &Table{
		committed: make(map[uint64]struct{}),
		aborted:   make(map[uint64]struct{}),
		pending:   make(map[uint64]struct{}),
	}
}

func (t *Table) isFinalized(txnID uint64) bool {
	_, committed := t.committed[txnID]
	_, aborted := t.aborted[txnID]
	return committed || aborted
}

// ProcessRecord folds one WAL record into the table. Call for every
// record in pass one, in log order.
func (t *Table) ProcessRecord(rec *wal.Record) {
	switch rec.Type {
	case wal.TypeTxnCommit:
		txnID, _, err := wal.DecodeTxnCommit(rec.Payload)
		if err != nil {
			return
		}
		delete(t.pending, txnID)
		t.committed[txnID] = struct{}{}
	case wal.TypeTxnAbort:
		txnID, err := wal.DecodeTxnAbort(rec.Payload)
		if err != nil {
			return
		}
		delete(t.pending, txnID)
		t.aborted[txnID] = struct{}{}
	case wal.TypePut:
		put, err := wal.DecodePut(rec.Payload)
		if err != nil {
			return
		}
		if put.Txn != 0 && !t.isFinalized(put.Txn) {
			t.pending[put.Txn] = struct{}{}
		}
	case wal.TypeDelete:
		del, err := wal.DecodeDelete(rec.Payload)
		if err != nil {
			return
		}
		if del.Txn != 0 && !t.isFinalized(del.Txn) {
			t.pending[del.Txn] = struct{}{}
		}
	case wal.TypeCheckpoint:
	}
}

// IsCommitted reports whether txnID has an explicit commit record.
func (t *Table) IsCommitted(txnID uint64) bool {
	_, ok := t.committed[txnID]
	return ok
}

// IsAborted reports whether txnID has an explicit abort record, or was
// finalized as aborted by FinalizePending.
func (t *Table) IsAborted(txnID uint64) bool {
	_, ok := t.aborted[txnID]
	return ok
}

// FinalizePending moves every still-pending transaction into aborted —
// call once after pass one completes. A transaction with operations but
// no commit/abort record is presumed aborted.
func (t *Table) FinalizePending() {
	for txnID := range t.pending {
		t.aborted[txnID] = struct{}{}
	}
	t.pending = make(map[uint64]struct{})
}

// ShouldApply reports whether rec should be replayed into the tree
// during pass two: non-transactional writes (txn == 0) always apply,
// transaction markers and checkpoints never apply, and everything else
// applies only if its transaction committed.
func (t *Table) ShouldApply(rec *wal.Record) bool {
	var txnID uint64
	switch rec.Type {
	case wal.TypePut:
		put, err := wal.DecodePut(rec.Payload)
		if err != nil {
			return false
		}
		txnID = put.Txn
	case wal.TypeDelete:
		del, err := wal.DecodeDelete(rec.Payload)
		if err != nil {
			return false
		}
		txnID = del.Txn
	default:
		return false
	}
	if txnID == 0 {
		return true
	}
	return t.IsCommitted(txnID)
}

// CommittedCount, AbortedCount, PendingCount report table size, mostly
// useful for kvctl recover's summary output.
func (t *Table) CommittedCount() int { return len(t.committed) }
func (t *Table) AbortedCount() int   { return len(t.aborted) }
func (t *Table) PendingCount() int   { return len(t.pending) }
