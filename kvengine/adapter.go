// Package kvengine adapts the session/table/mvcc kernel to
// common.StorageEngine, so cmd/kvctl's bench subcommand and
// common/benchmark's ComparisonSuite can drive it exactly like
// hashindex.HashIndex or lsm.Adapter. Grounded on lsm.Adapter's
// string-key wrapper pattern (lsm/adapter.go).
package kvengine

import (
	"errors"
	"sync"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/config"
	"github.com/intellect4all/kvkernel/session"
)

const benchTableURI = "table:bench"

// Adapter runs every StorageEngine call as its own auto-committed
// transaction against a single "bench" table, serialized behind mu since
// session.Session (unlike hashindex/lsm) allows only one active
// transaction per Session at a time.
type Adapter struct {
	mu   sync.Mutex
	conn *session.Connection
	sess *session.Session
}

// NewAdapter opens a fresh kernel connection rooted at dataDir.
func NewAdapter(dataDir string) (*Adapter, error) {
	cfg := config.Default(dataDir)
	conn, err := session.Open(dataDir, cfg)
	if err != nil {
		return nil, err
	}
	sess := conn.OpenSession()
	if err := sess.Create(benchTableURI); err != nil {
		conn.Close()
		return nil, err
	}
	return &Adapter{conn: conn, sess: sess}, nil
}

func (a *Adapter) withTxn(fn func(cur *session.Cursor) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.sess.Transaction()
	if err != nil {
		return err
	}
	defer st.Close()

	cur, err := a.sess.OpenCursor(benchTableURI)
	if err != nil {
		return err
	}
	if err := fn(cur); err != nil {
		return err
	}
	return st.Commit()
}

// Put implements common.StorageEngine as a blind upsert.
func (a *Adapter) Put(key, value []byte) error {
	return a.withTxn(func(cur *session.Cursor) error {
		return cur.Put(key, value)
	})
}

// Get implements common.StorageEngine, returning common.ErrKeyNotFound
// when the key has no visible version.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, err := a.sess.OpenCursor(benchTableURI)
	if err != nil {
		return nil, err
	}
	value, found, err := cur.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrKeyNotFound
	}
	return value, nil
}

// Delete implements common.StorageEngine as an idempotent delete: a
// missing key is not an error, matching hashindex/lsm's Delete contract.
func (a *Adapter) Delete(key []byte) error {
	return a.withTxn(func(cur *session.Cursor) error {
		if err := cur.Delete(key); err != nil && !errors.Is(err, common.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// Close checkpoints and closes the underlying connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Close()
}

// Sync is a no-op: the kernel's durability point is per-commit (or
// group-commit on an interval), not a separate explicit flush — every
// Put/Delete above has already committed by the time it returns.
func (a *Adapter) Sync() error { return nil }

// Stats reports the bench table's underlying B+ tree counters.
func (a *Adapter) Stats() common.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	tb, err := a.sess.Table(benchTableURI)
	if err != nil {
		return common.Stats{}
	}
	return tb.Stats()
}

// Compact runs a full connection checkpoint: materializing MVCC state
// into the committed tree and truncating the global WAL, mirroring
// session.Connection.Checkpoint (the kernel has no separate LSM-style
// compaction pass; its "compaction" is folding versions into the tree
// and reclaiming the WAL space that backed them).
func (a *Adapter) Compact() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Checkpoint()
}

var _ common.StorageEngine = (*Adapter)(nil)
