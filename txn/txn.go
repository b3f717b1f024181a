// Package txn implements the kernel's global transaction registry: id
// allocation, the active-transaction set, the abort log, and the
// snapshot-isolation visibility rule. Grounded on
// original_source/src/txn/global_txn.rs, snapshot.rs and transaction.rs,
// expressed with Go's atomic/RWMutex primitives in place of Rust's
// AtomicU64/RwLock (the same primitives the teacher uses for its own
// counters, e.g. btree.BTree.stats).
package txn

import (
	"sync"

	"github.com/intellect4all/kvkernel/metrics"
)

// TxnId identifies a transaction. TxnNone is the sentinel used for writes
// made outside any transaction (materialization, recovery replay) and is
// always visible. TxnAborted is a time_window sentinel, never a real id.
type TxnId = uint64

const (
	TxnNone    TxnId = 0
	TxnAborted TxnId = ^uint64(0)
)

// IsolationLevel names the supported transaction isolation levels. The
// kernel only implements snapshot isolation; the type exists so callers
// can name the level explicitly rather than assume it.
type IsolationLevel int

const (
	IsolationSnapshot IsolationLevel = iota
)

// Snapshot captures visibility at the moment a transaction begins.
// is_visible(other) = other == self || other < snap_min ||
// (other < snap_max && other not in active).
type Snapshot struct {
	SnapMax  TxnId
	SnapMin  TxnId
	Active   []TxnId
	MyTxnID  TxnId
}

// IsVisible reports whether a write by txnID is visible to this snapshot.
func (s Snapshot) IsVisible(txnID TxnId) bool {
	if txnID == TxnNone {
		return true
	}
	if txnID == s.MyTxnID {
		return true
	}
	if txnID >= s.SnapMax {
		return false
	}
	if txnID < s.SnapMin {
		return true
	}
	for _, a := range s.Active {
		if a == txnID {
			return false
		}
	}
	return true
}

// PendingOpType names what a PendingOp will become once drained to the
// WAL at commit time.
type PendingOpType int

const (
	PendingPut PendingOpType = iota
	PendingDelete
)

// PendingOp is one write a transaction has made, queued in memory until
// commit drains it to the global WAL as a real Put/Delete record. This
// is where the mvcc package's before_append closure hooks in: it
// records the op here (cheap, can't fail) rather than doing I/O while
// holding the MVCC shard lock.
type PendingOp struct {
	Type  PendingOpType
	Store string
	Key   []byte
	Value []byte
}

// Transaction is a handle carrying an id, isolation level, the snapshot
// captured at BeginSnapshotTxn time, the set of table URIs it has
// touched, and its pending (not yet WAL-logged) write list.
type Transaction struct {
	ID        TxnId
	Isolation IsolationLevel
	Snapshot  Snapshot

	PendingOps []PendingOp
	Touched    map[string]struct{}
}

// CanSee reports whether this transaction can observe an update written
// by writerTxn, per the snapshot's visibility rule plus read-your-writes
// (admitted implicitly since Snapshot.IsVisible treats writerTxn == self
// as always visible).
func (t *Transaction) CanSee(writerTxn TxnId) bool {
	return t.Snapshot.IsVisible(writerTxn)
}

// Touch marks uri as touched by this transaction, so abort can later
// call mark_updates_aborted against every table the transaction wrote.
func (t *Transaction) Touch(uri string) {
	if t.Touched == nil {
		t.Touched = make(map[string]struct{})
	}
	t.Touched[uri] = struct{}{}
}

// RecordPut queues a Put WAL op, touching store as a side effect.
func (t *Transaction) RecordPut(store string, key, value []byte) {
	t.Touch(store)
	t.PendingOps = append(t.PendingOps, PendingOp{
		Type: PendingPut, Store: store,
		Key: append([]byte(nil), key...), Value: append([]byte(nil), value...),
	})
}

// RecordDelete queues a Delete WAL op, touching store as a side effect.
func (t *Transaction) RecordDelete(store string, key []byte) {
	t.Touch(store)
	t.PendingOps = append(t.PendingOps, PendingOp{
		Type: PendingDelete, Store: store, Key: append([]byte(nil), key...),
	})
}

// GlobalTxnState is the process-wide transaction registry: the id
// counter, the active set, and the abort log. Transaction states are
// implicit: active (in the active set), committed (not active, not
// aborted), aborted (in the abort log).
type GlobalTxnState struct {
	mu      sync.Mutex
	current TxnId

	activeMu sync.RWMutex
	active   map[TxnId]struct{}

	abortedMu sync.RWMutex
	aborted   map[TxnId]struct{}
}

// NewGlobalTxnState returns a fresh registry with no transactions active.
func NewGlobalTxnState() *GlobalTxnState {
	return &GlobalTxnState{
		current: TxnNone,
		active:  make(map[TxnId]struct{}),
		aborted: make(map[TxnId]struct{}),
	}
}

// AllocateTxnID returns the next monotonically increasing transaction id.
func (g *GlobalTxnState) AllocateTxnID() TxnId {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	return g.current
}

// currentTxnID returns the most recently allocated id without allocating
// a new one; used as snap_max when no transaction is active yet.
func (g *GlobalTxnState) currentTxnID() TxnId {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// RegisterActive adds txnID to the active set.
func (g *GlobalTxnState) RegisterActive(txnID TxnId) {
	g.activeMu.Lock()
	defer g.activeMu.Unlock()
	g.active[txnID] = struct{}{}
	metrics.ActiveTransactions.Set(float64(len(g.active)))
}

// UnregisterActive removes txnID from the active set.
func (g *GlobalTxnState) UnregisterActive(txnID TxnId) {
	g.activeMu.Lock()
	defer g.activeMu.Unlock()
	delete(g.active, txnID)
	metrics.ActiveTransactions.Set(float64(len(g.active)))
}

// IsActive reports whether txnID is currently in the active set.
func (g *GlobalTxnState) IsActive(txnID TxnId) bool {
	g.activeMu.RLock()
	defer g.activeMu.RUnlock()
	_, ok := g.active[txnID]
	return ok
}

// MarkAborted records txnID in the abort log. Idempotent.
func (g *GlobalTxnState) MarkAborted(txnID TxnId) {
	g.abortedMu.Lock()
	defer g.abortedMu.Unlock()
	g.aborted[txnID] = struct{}{}
}

// IsAborted reports whether txnID has been recorded as aborted.
func (g *GlobalTxnState) IsAborted(txnID TxnId) bool {
	g.abortedMu.RLock()
	defer g.abortedMu.RUnlock()
	_, ok := g.aborted[txnID]
	return ok
}

// OldestActiveTxnID returns the minimum id currently in the active set,
// or the current counter value if no transaction is active (meaning
// nothing is obsolete yet — GC has nothing old enough to reclaim).
func (g *GlobalTxnState) OldestActiveTxnID() TxnId {
	g.activeMu.RLock()
	defer g.activeMu.RUnlock()
	if len(g.active) == 0 {
		return g.currentTxnID()
	}
	min := TxnAborted
	for id := range g.active {
		if id < min {
			min = id
		}
	}
	return min
}

// TakeSnapshot builds the visibility snapshot for myTxnID: snap_max is
// the current counter, active is every other currently-active id, and
// snap_min is the smallest of those (or snap_max if none are active).
func (g *GlobalTxnState) TakeSnapshot(myTxnID TxnId) Snapshot {
	current := g.currentTxnID()

	g.activeMu.RLock()
	active := make([]TxnId, 0, len(g.active))
	for id := range g.active {
		if id != myTxnID && id != TxnNone {
			active = append(active, id)
		}
	}
	g.activeMu.RUnlock()

	snapMin := current
	for _, id := range active {
		if id < snapMin {
			snapMin = id
		}
	}

	return Snapshot{SnapMax: current, SnapMin: snapMin, Active: active, MyTxnID: myTxnID}
}

// BeginSnapshotTxn allocates a new id, registers it active, and captures
// its visibility snapshot — the single entry point Session uses to start
// a transaction.
func (g *GlobalTxnState) BeginSnapshotTxn() *Transaction {
	id := g.AllocateTxnID()
	g.RegisterActive(id)
	snap := g.TakeSnapshot(id)
	return &Transaction{ID: id, Isolation: IsolationSnapshot, Snapshot: snap}
}

// End unregisters a transaction from the active set, whether it
// committed or aborted; the caller marks the abort log separately via
// MarkAborted before calling End on an abort path.
func (g *GlobalTxnState) End(t *Transaction) {
	g.UnregisterActive(t.ID)
}
