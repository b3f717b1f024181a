package session

import (
	"fmt"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/table"
	"github.com/intellect4all/kvkernel/txn"
)

// Session is a single caller's handle on a Connection: it resolves URIs
// to tables, tracks at most one active transaction, and hands out
// cursors. Not safe for concurrent use — open one Session per goroutine.
type Session struct {
	conn *Connection
	id   string
	txn  *txn.Transaction
}

// Create opens (creating if necessary) the table or index store named
// by uri, registering it in the index catalog if it is an index: URI.
// It does not mark the table as touched by the current transaction —
// OpenCursor does that, since Create is also used just to provision a
// store ahead of time.
func (s *Session) Create(uri string) error {
	_, err := s.resolveTable(uri, false)
	return err
}

// OpenCursor resolves uri to its table and returns a cursor over it,
// marking the table touched by the current transaction (if one is
// active) for writes issued through it.
func (s *Session) OpenCursor(uri string) (*Cursor, error) {
	tb, err := s.resolveTable(uri, true)
	if err != nil {
		return nil, err
	}
	cur := newCursor(s, tb)
	if parsed, err := parseURI(uri); err == nil && parsed.kind == uriIndex {
		cur.kind = cursorIndex
	}
	return cur, nil
}

// resolveTable opens uri's backing table via the connection's cache,
// registering index: URIs in their collection's IndexCatalog on first
// open, and marks it touched by the active transaction when requested.
func (s *Session) resolveTable(uri string, markTouched bool) (*table.Table, error) {
	parsed, err := parseURI(uri)
	if err != nil {
		return nil, err
	}
	storeName := parsed.storeName()

	tb, err := s.conn.cache.getOrOpen(uri, storeName, s.conn.basePath, s.conn.cfg, s.conn.globalTxn)
	if err != nil {
		return nil, err
	}

	if parsed.kind == uriIndex {
		cat, err := loadOrCreateIndexCatalog(s.conn.basePath, parsed.collection)
		if err != nil {
			return nil, err
		}
		if _, ok := cat.StoreName(parsed.index); !ok {
			if err := cat.Register(parsed.index, storeName); err != nil {
				return nil, err
			}
		}
	}

	if markTouched && s.txn != nil {
		s.txn.Touch(storeName)
	}
	return tb, nil
}

// Table resolves uri to its backing *table.Table directly, bypassing
// Cursor, for callers that need table-level operations a Cursor doesn't
// expose (Stats, Checkpoint) — e.g. a StorageEngine adapter.
func (s *Session) Table(uri string) (*table.Table, error) {
	return s.resolveTable(uri, false)
}

// Transaction begins a new snapshot transaction and returns an RAII
// handle: call Commit or Abort exactly once, or let it go out of scope
// — SessionTxn.Close (deferred by the caller) auto-aborts anything not
// already finalized, the Go idiom for the original's Drop-based
// auto-rollback.
func (s *Session) Transaction() (*SessionTxn, error) {
	if s.txn != nil {
		return nil, common.ErrTransactionAlreadyActive
	}
	t := s.conn.globalTxn.BeginSnapshotTxn()
	s.txn = t
	return &SessionTxn{session: s, txn: t}, nil
}

// CurrentTxn returns the active transaction, or nil if none is open.
func (s *Session) CurrentTxn() *txn.Transaction { return s.txn }

func (s *Session) tableByStoreName(storeName string) (*table.Table, error) {
	for _, tb := range s.conn.cache.allHandles() {
		if tb.Name == storeName {
			return tb, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", common.ErrTableNotFound, storeName)
}
