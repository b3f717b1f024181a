// Package table is the integration point between a durable B+ tree and
// its in-memory MVCC update chains: the unit a Session opens by URI.
// Reads consult the MVCC chain first and fall back to the committed
// tree; writes append an MVCC version and queue a pending WAL op on the
// transaction rather than logging immediately, since spec.md's commit
// path is the sole place that drains pending ops to the WAL (see
// DESIGN.md's Open Question decision on WAL-logging timing). Grounded
// on the teacher's per-store wiring in cmd/demo and on
// original_source/src/storage/btree/mvcc.rs's before_append hook, here
// repurposed to enqueue instead of log.
package table

import (
	"errors"
	"fmt"

	"github.com/intellect4all/kvkernel/btree"
	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/mvcc"
	"github.com/intellect4all/kvkernel/txn"
)

// Table wraps one table's durable tree and its MVCC state under a
// stable name (the table: URI component Session parses).
type Table struct {
	Name string

	tree *btree.BTree
	mvcc *mvcc.State
}

// Open creates or opens a table's block file and its MVCC state.
func Open(name string, cfg btree.Config, global *txn.GlobalTxnState) (*Table, error) {
	tree, err := btree.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open table %q: %w", name, err)
	}
	return &Table{Name: name, tree: tree, mvcc: mvcc.NewState(global)}, nil
}

// GetVersion returns the value visible to t for key: the most recent
// non-aborted MVCC update t can see, falling back to the committed tree
// when the MVCC chain holds nothing visible for key. The bool result is
// false both when the visible update is a tombstone and when neither the
// chain nor the committed tree holds key.
func (tb *Table) GetVersion(key []byte, t *txn.Transaction) ([]byte, bool, error) {
	if value, found, tombstone := tb.mvcc.VisibleValueForTxn(key, t.ID); found {
		if tombstone {
			return nil, false, nil
		}
		return value, true, nil
	}

	value, err := tb.tree.Get(key)
	if err != nil {
		if errors.Is(err, common.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// PutVersion appends a new MVCC version for key under t and queues the
// matching Put as a pending WAL op on t, to be drained at commit.
func (tb *Table) PutVersion(key, value []byte, t *txn.Transaction) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	return tb.mvcc.AppendVersionWith(key, value, t.ID, func() error {
		t.RecordPut(tb.Name, key, value)
		return nil
	})
}

// PutVersionIfAbsent is insert_unique's MVCC-aware form: it fails with
// common.ErrDuplicateKey, without queuing any pending op, if key is
// already visible to t — either in the MVCC chain or the committed tree.
func (tb *Table) PutVersionIfAbsent(key, value []byte, t *txn.Transaction) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	inserted, err := tb.mvcc.InsertIfAbsentWith(key, value, t.ID, func() error {
		t.RecordPut(tb.Name, key, value)
		return nil
	})
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}
	if _, found, err := tb.GetVersion(key, t); err != nil {
		return err
	} else if found {
		return fmt.Errorf("%w: %s", common.ErrDuplicateKey, key)
	}
	return fmt.Errorf("%w: %s", common.ErrDuplicateKey, key)
}

// DeleteVersion appends a tombstone for key under t and queues the
// matching Delete as a pending WAL op.
func (tb *Table) DeleteVersion(key []byte, t *txn.Transaction) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	return tb.mvcc.AppendTombstoneWith(key, t.ID, func() error {
		t.RecordDelete(tb.Name, key)
		return nil
	})
}

// MarkUpdatesAborted marks every MVCC update this table holds for txnID
// as aborted, called against each table in an aborting transaction's
// Touched set.
func (tb *Table) MarkUpdatesAborted(txnID txn.TxnId) {
	tb.mvcc.MarkUpdatesAborted(txnID)
}

// RunGC truncates obsolete MVCC updates now that no active transaction
// can still need them.
func (tb *Table) RunGC() (chainsCleaned, updatesRemoved, chainsDropped int) {
	return tb.mvcc.RunGC()
}

// Materialize drains every latest committed MVCC entry into the durable
// tree with TxnNone, so PutVersion/DeleteVersion's own WAL-op path is
// never re-triggered for data that is already durable-bound via the
// commit path's own Put/Delete log records. Call before Checkpoint.
func (tb *Table) Materialize() error {
	for _, entry := range tb.mvcc.LatestCommittedEntries() {
		switch entry.Type {
		case mvcc.Standard:
			if err := tb.tree.Put(entry.Key, entry.Data); err != nil {
				return err
			}
		case mvcc.Tombstone:
			if _, err := tb.tree.Delete(entry.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Checkpoint materializes committed MVCC versions into the tree, then
// delegates to the tree's own three-stage checkpoint.
func (tb *Table) Checkpoint() error {
	if err := tb.Materialize(); err != nil {
		return err
	}
	return tb.tree.Checkpoint()
}

// Range returns a merged iterator over [start, end) combining t's
// visible MVCC versions with the committed tree.
func (tb *Table) Range(start, end []byte, t *txn.Transaction) (*VersionIterator, error) {
	treeIter, err := tb.tree.Range(start, end)
	if err != nil {
		return nil, err
	}
	return newVersionIterator(tb, treeIter, tb.mvcc.KeysInRange(start, end), t), nil
}

// Stats reports the underlying tree's counters.
func (tb *Table) Stats() common.Stats { return tb.tree.Stats() }

// Close materializes any still-pending committed MVCC entries into the
// tree, then checkpoints and closes it. Materialize must run here, not
// just at an explicit Checkpoint call: a caller tearing down a
// Connection (which truncates the shared global WAL right after every
// table closes) must not leave a committed write sitting only in an
// unmaterialized MVCC chain once the WAL record that could replay it
// is gone.
func (tb *Table) Close() error {
	if err := tb.Materialize(); err != nil {
		return err
	}
	return tb.tree.Close()
}
