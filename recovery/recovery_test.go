package recovery

import (
	"testing"

	"github.com/intellect4all/kvkernel/wal"
	"github.com/stretchr/testify/require"
)

func putRecord(txnID uint64) *wal.Record {
	return &wal.Record{Type: wal.TypePut, Payload: wal.EncodePut("t", []byte("k"), []byte("v"), txnID)}
}

func TestEmptyTable(t *testing.T) {
	tbl := NewTable()
	require.False(t, tbl.IsCommitted(1))
	require.False(t, tbl.IsAborted(1))
}

func TestCommitRecordAppliesPut(t *testing.T) {
	tbl := NewTable()
	tbl.ProcessRecord(putRecord(42))
	tbl.ProcessRecord(&wal.Record{Type: wal.TypeTxnCommit, Payload: wal.EncodeTxnCommit(42, 100)})

	require.True(t, tbl.IsCommitted(42))
	require.True(t, tbl.ShouldApply(putRecord(42)))
}

func TestAbortRecordRejectsPut(t *testing.T) {
	tbl := NewTable()
	tbl.ProcessRecord(putRecord(42))
	tbl.ProcessRecord(&wal.Record{Type: wal.TypeTxnAbort, Payload: wal.EncodeTxnAbort(42)})

	require.True(t, tbl.IsAborted(42))
	require.False(t, tbl.ShouldApply(putRecord(42)))
}

func TestNonTransactionalAlwaysApplied(t *testing.T) {
	tbl := NewTable()
	require.True(t, tbl.ShouldApply(putRecord(0)))
}

func TestFinalizePendingTreatsAsAborted(t *testing.T) {
	tbl := NewTable()
	tbl.ProcessRecord(putRecord(42))
	require.Equal(t, 1, tbl.PendingCount())

	tbl.FinalizePending()

	require.Equal(t, 0, tbl.PendingCount())
	require.True(t, tbl.IsAborted(42))
}

func TestTransactionMarkersNeverApplied(t *testing.T) {
	tbl := NewTable()
	require.False(t, tbl.ShouldApply(&wal.Record{Type: wal.TypeTxnCommit, Payload: wal.EncodeTxnCommit(1, 1)}))
	require.False(t, tbl.ShouldApply(&wal.Record{Type: wal.TypeTxnAbort, Payload: wal.EncodeTxnAbort(1)}))
	require.False(t, tbl.ShouldApply(&wal.Record{Type: wal.TypeCheckpoint}))
}

func TestMultipleTransactions(t *testing.T) {
	tbl := NewTable()

	tbl.ProcessRecord(putRecord(1))
	tbl.ProcessRecord(&wal.Record{Type: wal.TypeTxnCommit, Payload: wal.EncodeTxnCommit(1, 100)})

	tbl.ProcessRecord(putRecord(2))
	tbl.ProcessRecord(&wal.Record{Type: wal.TypeTxnAbort, Payload: wal.EncodeTxnAbort(2)})

	tbl.ProcessRecord(putRecord(3))

	require.Equal(t, 1, tbl.CommittedCount())
	require.Equal(t, 1, tbl.AbortedCount())
	require.Equal(t, 1, tbl.PendingCount())

	require.True(t, tbl.ShouldApply(putRecord(1)))
	require.False(t, tbl.ShouldApply(putRecord(2)))
	require.False(t, tbl.ShouldApply(putRecord(3)))
}
