package txn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateTxnIDMonotonic(t *testing.T) {
	g := NewGlobalTxnState()
	require.Equal(t, TxnId(1), g.AllocateTxnID())
	require.Equal(t, TxnId(2), g.AllocateTxnID())
	require.Equal(t, TxnId(3), g.AllocateTxnID())
}

func TestTakeSnapshotExcludesSelf(t *testing.T) {
	g := NewGlobalTxnState()
	t1 := g.AllocateTxnID()
	g.RegisterActive(t1)
	t2 := g.AllocateTxnID()
	g.RegisterActive(t2)

	snap := g.TakeSnapshot(t2)
	require.Equal(t, t2, snap.SnapMax)
	require.NotContains(t, snap.Active, t2)
	require.Contains(t, snap.Active, t1)
	require.Equal(t, t1, snap.SnapMin)
}

func TestSnapshotIsVisible(t *testing.T) {
	g := NewGlobalTxnState()
	writer := g.AllocateTxnID()
	g.RegisterActive(writer)
	defer g.UnregisterActive(writer)

	reader := g.BeginSnapshotTxn()
	defer g.End(reader)

	require.False(t, reader.CanSee(writer), "writer still active at snapshot time must not be visible")
	require.True(t, reader.CanSee(TxnNone))
	require.True(t, reader.CanSee(reader.ID))
}

func TestSnapshotVisibleAfterCommitReturns(t *testing.T) {
	g := NewGlobalTxnState()

	writer := g.AllocateTxnID()
	g.RegisterActive(writer)
	g.UnregisterActive(writer) // simulate commit completing before reader starts

	reader := g.BeginSnapshotTxn()
	defer g.End(reader)

	require.True(t, reader.CanSee(writer))
}

func TestOldestActiveTxnIDWithNoneActive(t *testing.T) {
	g := NewGlobalTxnState()
	g.AllocateTxnID()
	g.AllocateTxnID()
	require.Equal(t, TxnId(2), g.OldestActiveTxnID())
}

func TestOldestActiveTxnIDWithSomeActive(t *testing.T) {
	g := NewGlobalTxnState()
	g.AllocateTxnID()
	t2 := g.AllocateTxnID()
	g.RegisterActive(t2)
	t3 := g.AllocateTxnID()
	g.RegisterActive(t3)

	require.Equal(t, t2, g.OldestActiveTxnID())
}

func TestMarkAbortedAndIsAborted(t *testing.T) {
	g := NewGlobalTxnState()
	id := g.AllocateTxnID()
	require.False(t, g.IsAborted(id))
	g.MarkAborted(id)
	require.True(t, g.IsAborted(id))
}
