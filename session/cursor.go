package session

import (
	"fmt"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/table"
	"github.com/intellect4all/kvkernel/txn"
)

// cursorKind marks whether a cursor is writable (table:) or read-only
// (index:, since this kernel implements no index maintenance policy —
// index tables are written directly through their own table: cursor).
type cursorKind int

const (
	cursorTable cursorKind = iota
	cursorIndex
)

// Cursor is a session's handle onto one table: (key, value, txn) point
// operations plus a lazily-opened ranged iterator for Next. Grounded on
// original_source/src/api/cursor.rs, simplified to delegate range
// buffering to table.VersionIterator instead of re-implementing a
// buffered-page scan.
type Cursor struct {
	session *Session
	tb      *table.Table
	kind    cursorKind

	rangeStart, rangeEnd []byte
	iter                 *table.VersionIterator
}

func newCursor(s *Session, tb *table.Table) *Cursor {
	return &Cursor{session: s, tb: tb, kind: cursorTable}
}

func (c *Cursor) activeTxn() *txn.Transaction {
	if t := c.session.CurrentTxn(); t != nil {
		return t
	}
	return &txn.Transaction{ID: txn.TxnNone}
}

func (c *Cursor) ensureWritable() error {
	if c.kind == cursorIndex {
		return fmt.Errorf("%w: index cursors are read-only", common.ErrStorage)
	}
	return nil
}

// Insert adds (key, value), failing with common.ErrDuplicateKey if key
// is already visible to the active transaction.
func (c *Cursor) Insert(key, value []byte) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	return c.tb.PutVersionIfAbsent(key, value, c.activeTxn())
}

// Put writes (key, value) unconditionally, overwriting any existing
// version visible to the active transaction. Unlike Insert/Update it
// carries no uniqueness or existence invariant — the blind upsert a
// StorageEngine.Put caller expects.
func (c *Cursor) Put(key, value []byte) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	return c.tb.PutVersion(key, value, c.activeTxn())
}

// Update overwrites key with value, failing with common.ErrKeyNotFound
// if key is not currently visible.
func (c *Cursor) Update(key, value []byte) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	t := c.activeTxn()
	if _, found, err := c.tb.GetVersion(key, t); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}
	return c.tb.PutVersion(key, value, t)
}

// Delete removes key, failing with common.ErrKeyNotFound if key is not
// currently visible.
func (c *Cursor) Delete(key []byte) error {
	if err := c.ensureWritable(); err != nil {
		return err
	}
	t := c.activeTxn()
	if _, found, err := c.tb.GetVersion(key, t); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
	}
	return c.tb.DeleteVersion(key, t)
}

// Get returns the value visible to the active transaction for key, and
// false if key is not visible (deleted or never written).
func (c *Cursor) Get(key []byte) ([]byte, bool, error) {
	return c.tb.GetVersion(key, c.activeTxn())
}

// SetRange restricts Next to [start, end) and resets iteration.
func (c *Cursor) SetRange(start, end []byte) {
	c.rangeStart, c.rangeEnd = start, end
	c.Reset()
}

// Next advances to the next (key, value) pair visible to the active
// transaction within the cursor's range, opening the underlying range
// iterator on first use. Returns found=false, err=nil once the range is
// exhausted.
func (c *Cursor) Next() (key, value []byte, found bool, err error) {
	if c.iter == nil {
		c.iter, err = c.tb.Range(c.rangeStart, c.rangeEnd, c.activeTxn())
		if err != nil {
			return nil, nil, false, err
		}
	}
	if !c.iter.Next() {
		if iterErr := c.iter.Error(); iterErr != nil {
			return nil, nil, false, iterErr
		}
		return nil, nil, false, nil
	}
	return c.iter.Key(), c.iter.Value(), true, nil
}

// Reset clears any buffered iteration state so the next Next() call
// re-opens the range from the beginning.
func (c *Cursor) Reset() {
	if c.iter != nil {
		_ = c.iter.Close()
		c.iter = nil
	}
}

// Close releases any open range iterator.
func (c *Cursor) Close() error {
	if c.iter != nil {
		err := c.iter.Close()
		c.iter = nil
		return err
	}
	return nil
}
