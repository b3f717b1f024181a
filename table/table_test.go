package table

import (
	"path/filepath"
	"testing"

	"github.com/intellect4all/kvkernel/btree"
	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/txn"
	"github.com/stretchr/testify/require"
)

func openTestTable(t *testing.T) (*Table, *txn.GlobalTxnState) {
	t.Helper()
	cfg := btree.Config{DataDir: filepath.Join(t.TempDir(), "orders.db"), PageSize: 4096, PageCacheCapacity: 16}
	global := txn.NewGlobalTxnState()
	tb, err := Open("table:orders", cfg, global)
	require.NoError(t, err)
	t.Cleanup(func() { tb.Close() })
	return tb, global
}

func TestPutVersionVisibleWithinOwnTxn(t *testing.T) {
	tb, global := openTestTable(t)
	txObj := global.BeginSnapshotTxn()

	require.NoError(t, tb.PutVersion([]byte("k1"), []byte("v1"), txObj))

	value, found, err := tb.GetVersion([]byte("k1"), txObj)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))
	require.Len(t, txObj.PendingOps, 1)
	require.Equal(t, txn.PendingPut, txObj.PendingOps[0].Type)
}

func TestPutVersionNotVisibleToConcurrentSnapshot(t *testing.T) {
	tb, global := openTestTable(t)
	writer := global.BeginSnapshotTxn()
	reader := global.BeginSnapshotTxn()

	require.NoError(t, tb.PutVersion([]byte("k1"), []byte("v1"), writer))

	_, found, err := tb.GetVersion([]byte("k1"), reader)
	require.NoError(t, err)
	require.False(t, found)
}

func TestPutVersionVisibleAfterCommitToLaterSnapshot(t *testing.T) {
	tb, global := openTestTable(t)
	writer := global.BeginSnapshotTxn()
	require.NoError(t, tb.PutVersion([]byte("k1"), []byte("v1"), writer))
	global.End(writer)

	reader := global.BeginSnapshotTxn()
	value, found, err := tb.GetVersion([]byte("k1"), reader)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))
}

func TestDeleteVersionHidesKey(t *testing.T) {
	tb, global := openTestTable(t)
	writer := global.BeginSnapshotTxn()
	require.NoError(t, tb.PutVersion([]byte("k1"), []byte("v1"), writer))
	require.NoError(t, tb.DeleteVersion([]byte("k1"), writer))

	_, found, err := tb.GetVersion([]byte("k1"), writer)
	require.NoError(t, err)
	require.False(t, found)
	require.Len(t, writer.PendingOps, 2)
	require.Equal(t, txn.PendingDelete, writer.PendingOps[1].Type)
}

func TestPutVersionIfAbsentRejectsDuplicate(t *testing.T) {
	tb, global := openTestTable(t)
	txObj := global.BeginSnapshotTxn()

	require.NoError(t, tb.PutVersionIfAbsent([]byte("k1"), []byte("v1"), txObj))
	err := tb.PutVersionIfAbsent([]byte("k1"), []byte("v2"), txObj)
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestMarkUpdatesAbortedHidesWrites(t *testing.T) {
	tb, global := openTestTable(t)
	writer := global.BeginSnapshotTxn()
	require.NoError(t, tb.PutVersion([]byte("k1"), []byte("v1"), writer))

	tb.MarkUpdatesAborted(writer.ID)

	_, found, err := tb.GetVersion([]byte("k1"), writer)
	require.NoError(t, err)
	require.False(t, found)
}

func TestMaterializeAndCheckpointPersistsToTree(t *testing.T) {
	tb, global := openTestTable(t)
	writer := global.BeginSnapshotTxn()
	require.NoError(t, tb.PutVersion([]byte("k1"), []byte("v1"), writer))
	global.End(writer)

	require.NoError(t, tb.Checkpoint())

	reader := global.BeginSnapshotTxn()
	value, found, err := tb.GetVersion([]byte("k1"), reader)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))
}

func TestRangeMergesMVCCAndCommitted(t *testing.T) {
	tb, global := openTestTable(t)
	writer := global.BeginSnapshotTxn()
	require.NoError(t, tb.PutVersion([]byte("a"), []byte("1"), writer))
	global.End(writer)
	require.NoError(t, tb.Checkpoint())

	writer2 := global.BeginSnapshotTxn()
	require.NoError(t, tb.PutVersion([]byte("b"), []byte("2"), writer2))

	iter, err := tb.Range(nil, nil, writer2)
	require.NoError(t, err)
	defer iter.Close()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Error())
	require.Equal(t, []string{"a", "b"}, keys)
}
