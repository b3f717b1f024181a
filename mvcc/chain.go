package mvcc

import "github.com/intellect4all/kvkernel/txn"

// UpdateType distinguishes a live value from a deletion marker. Reserve
// exists for parity with the chain format but is never produced by this
// kernel — no operation here reserves a key without writing a value.
type UpdateType int

const (
	Standard UpdateType = iota
	Tombstone
	Reserve
)

const (
	tsNone = uint64(0)
	tsMax  = ^uint64(0)
)

// TimeWindow brackets the visibility of one Update: start_txn is the
// writer, stop_txn/stop_ts record whatever later event ended its
// visibility — overwritten by a newer update (stop_ts holds the
// stopping txn id, reusing TxnId as a stand-in timestamp the way the
// chain this is grounded on does) or explicitly aborted
// (stop_txn == TxnAborted && stop_ts == TS_NONE).
type TimeWindow struct {
	StartTxn txn.TxnId
	StopTxn  txn.TxnId
	StopTS   uint64
}

func newTimeWindow(startTxn txn.TxnId) TimeWindow {
	return TimeWindow{StartTxn: startTxn, StopTxn: txn.TxnAborted, StopTS: tsMax}
}

// Update is one version in a key's chain.
type Update struct {
	TxnID  txn.TxnId
	Type   UpdateType
	Data   []byte
	Window TimeWindow
}

func newUpdate(txnID txn.TxnId, updateType UpdateType, data []byte) *Update {
	return &Update{TxnID: txnID, Type: updateType, Data: data, Window: newTimeWindow(txnID)}
}

// markStopped records that this update was superseded by stopTxn. The
// stopping transaction's id doubles as the stop timestamp — the kernel
// has no independent timestamp source at this layer.
func (u *Update) markStopped(stopTxn txn.TxnId) {
	u.Window.StopTxn = stopTxn
	u.Window.StopTS = uint64(stopTxn)
}

// markAborted stamps the sentinel that marks this update unreachable by
// any reader regardless of snapshot.
func (u *Update) markAborted() {
	u.Window.StopTxn = txn.TxnAborted
	u.Window.StopTS = tsNone
}

func (u *Update) isAborted() bool {
	return u.Window.StopTxn == txn.TxnAborted && u.Window.StopTS == tsNone
}

// isObsolete reports whether no transaction with id >= oldestActive can
// still reach this update. An aborted update is obsolete once no active
// transaction could have started before it; a stopped (superseded)
// update is obsolete under the same rule; a still-current update
// (stop_ts == TS_MAX) is never obsolete.
func (u *Update) isObsolete(oldestActive txn.TxnId) bool {
	if u.isAborted() {
		return u.Window.StartTxn < oldestActive
	}
	if u.Window.StopTS == tsMax {
		return false
	}
	return u.Window.StartTxn < oldestActive
}

// UpdateChain is a key's version list, newest-first.
type UpdateChain struct {
	updates []*Update
}

// prepend adds update as the new head. It does not stop the previous
// head; callers call markStopped on it first.
func (c *UpdateChain) prepend(u *Update) {
	c.updates = append([]*Update{u}, c.updates...)
}

func (c *UpdateChain) head() *Update {
	if len(c.updates) == 0 {
		return nil
	}
	return c.updates[0]
}

func (c *UpdateChain) isEmpty() bool { return len(c.updates) == 0 }

// markAborted stamps every update in the chain written by txnID.
func (c *UpdateChain) markAborted(txnID txn.TxnId) {
	for _, u := range c.updates {
		if u.TxnID == txnID {
			u.markAborted()
		}
	}
}

// visibleValueForTxn walks the chain head-to-tail and returns the first
// non-aborted update visible to txnID: (data, true, isTombstone) shaped
// as (value, found, wasDeleted) — found is false if nothing in the chain
// is visible yet (caller should fall back to the durable tree).
func (c *UpdateChain) visibleValueForTxn(txnID txn.TxnId) (value []byte, found bool, tombstone bool) {
	for _, u := range c.updates {
		if u.isAborted() {
			continue
		}
		if u.TxnID <= txnID {
			switch u.Type {
			case Standard:
				return u.Data, true, false
			case Tombstone:
				return nil, true, true
			}
		}
	}
	return nil, false, false
}

// truncateObsolete drops every update whose isObsolete(oldestActive) is
// true, preserving order, and reports how many were removed.
func (c *UpdateChain) truncateObsolete(oldestActive txn.TxnId) int {
	kept := c.updates[:0:0]
	removed := 0
	for _, u := range c.updates {
		if u.isObsolete(oldestActive) {
			removed++
			continue
		}
		kept = append(kept, u)
	}
	c.updates = kept
	return removed
}
