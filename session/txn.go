package session

import (
	"fmt"
	"time"

	"github.com/intellect4all/kvkernel/logx"
	"github.com/intellect4all/kvkernel/txn"
)

// SessionTxn is an RAII-style transaction handle. Go has no destructors,
// so the original's Drop-based auto-rollback becomes an explicit
// contract: callers defer Close() immediately after Transaction()
// succeeds, and Close is a no-op once Commit or Abort has run.
//
//	st, err := session.Transaction()
//	if err != nil { return err }
//	defer st.Close()
//	...
//	return st.Commit()
type SessionTxn struct {
	session *Session
	txn     *txn.Transaction
	done    bool
}

// ID returns the underlying transaction's id.
func (st *SessionTxn) ID() txn.TxnId { return st.txn.ID }

// Txn returns the underlying transaction, for callers that need to pass
// a txn id through to a Cursor.
func (st *SessionTxn) Txn() *txn.Transaction { return st.txn }

// Commit drains the transaction's pending WAL ops, writes them and a
// commit marker to the global WAL, syncs per the group-commit policy,
// and unregisters the transaction from the active set. After Commit
// returns (error or not) the transaction is finalized; Close becomes a
// no-op.
func (st *SessionTxn) Commit() error {
	if st.done {
		return nil
	}
	st.done = true
	conn := st.session.conn
	t := st.txn

	if conn.cfg.WALEnabled && conn.globalWAL != nil {
		if err := flushPendingOps(conn, t); err != nil {
			return err
		}
		if _, err := conn.globalWAL.LogTxnCommit(t.ID, t.ID); err != nil {
			return err
		}
		if _, err := conn.globalWAL.MaybeSync(time.Now()); err != nil {
			return err
		}
	}

	conn.globalTxn.End(t)
	st.session.txn = nil
	logx.With("session").Debug().Uint64("txn_id", uint64(t.ID)).Int("tables", len(t.Touched)).Msg("transaction committed")
	return nil
}

// Abort discards the transaction's pending ops (never written), logs a
// TxnAbort marker, marks every MVCC update the transaction made as
// aborted across every table it touched, and unregisters it from the
// active set.
func (st *SessionTxn) Abort() error {
	if st.done {
		return nil
	}
	st.done = true
	conn := st.session.conn
	t := st.txn

	if conn.cfg.WALEnabled && conn.globalWAL != nil {
		if _, err := conn.globalWAL.LogTxnAbort(t.ID); err != nil {
			return err
		}
	}

	conn.globalTxn.MarkAborted(t.ID)
	for storeName := range t.Touched {
		tb, err := st.session.tableByStoreName(storeName)
		if err != nil {
			continue
		}
		tb.MarkUpdatesAborted(t.ID)
	}

	conn.globalTxn.End(t)
	st.session.txn = nil
	logx.With("session").Debug().Uint64("txn_id", uint64(t.ID)).Msg("transaction aborted")
	return nil
}

// Close auto-aborts the transaction if it was never committed or
// aborted. Safe to defer unconditionally; it is a no-op after Commit or
// a prior Abort.
func (st *SessionTxn) Close() error {
	if st.done {
		return nil
	}
	return st.Abort()
}

func flushPendingOps(conn *Connection, t *txn.Transaction) error {
	for _, op := range t.PendingOps {
		switch op.Type {
		case txn.PendingPut:
			if _, err := conn.globalWAL.LogPut(op.Store, op.Key, op.Value, t.ID); err != nil {
				return fmt.Errorf("flush pending put: %w", err)
			}
		case txn.PendingDelete:
			if _, err := conn.globalWAL.LogDelete(op.Store, op.Key, t.ID); err != nil {
				return fmt.Errorf("flush pending delete: %w", err)
			}
		}
	}
	return nil
}
