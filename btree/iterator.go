package btree

import (
	"bytes"

	"github.com/intellect4all/kvkernel/common"
)

// frame is one level of the descent path: the internal page at this
// level, and the index of the next separator to follow when the
// iterator needs to move right into this page's next subtree.
type frame struct {
	id      uint64
	page    *Page
	nextIdx uint16
}

// Iterator walks [start, end) over a table's committed keys in
// ascending order. It holds no sibling pointers — leaves are reached and
// left behind purely through the stack of ancestor frames, the shape
// spec.md's range-iteration design calls for. Grounded on the teacher's
// iterator.go (seek-then-Next, firstCall-doesn't-advance convention),
// rewritten for the new page layout and the stack-based traversal.
type Iterator struct {
	pager *Pager

	stack []frame
	leafID uint64
	leaf   *Page
	slot   uint16

	end       []byte
	err       error
	started   bool
	firstCall bool
}

func newIterator(pager *Pager, rootID uint64, start, end []byte) (*Iterator, error) {
	it := &Iterator{pager: pager, end: end}
	if err := it.seek(rootID, start); err != nil {
		return nil, err
	}
	return it, nil
}

// descendLeftmost follows first_child pointers from id down to a leaf,
// pushing a frame for every internal page visited with nextIdx=0 (the
// leftmost separator not yet consumed).
func (it *Iterator) descendLeftmost(id uint64) error {
	for {
		page, err := it.pager.PinPage(id)
		if err != nil {
			return err
		}
		if page.IsLeaf() {
			it.leafID, it.leaf, it.slot = id, page, 0
			return nil
		}
		it.stack = append(it.stack, frame{id: id, page: page, nextIdx: 0})
		id = page.FirstChild()
	}
}

func (it *Iterator) seek(rootID uint64, start []byte) error {
	if len(start) == 0 {
		if err := it.descendLeftmost(rootID); err != nil {
			return err
		}
		it.started, it.firstCall = true, true
		return nil
	}

	id := rootID
	for {
		page, err := it.pager.PinPage(id)
		if err != nil {
			return err
		}
		if page.IsLeaf() {
			idx, found := page.search(start)
			it.leafID, it.leaf = id, page
			if found {
				it.slot = uint16(idx)
			} else {
				it.slot = uint16(idx)
			}
			it.started, it.firstCall = true, true
			return nil
		}

		idx, found := page.search(start)
		var childID uint64
		var nextIdx uint16
		switch {
		case found:
			rec, rerr := page.RecordAt(uint16(idx))
			if rerr != nil {
				it.pager.UnpinPage(id)
				return rerr
			}
			childID, nextIdx = rec.Child, uint16(idx+1)
		case idx == 0:
			childID, nextIdx = page.FirstChild(), 0
		default:
			rec, rerr := page.RecordAt(uint16(idx - 1))
			if rerr != nil {
				it.pager.UnpinPage(id)
				return rerr
			}
			childID, nextIdx = rec.Child, uint16(idx)
		}
		it.stack = append(it.stack, frame{id: id, page: page, nextIdx: nextIdx})
		id = childID
	}
}

// advanceToNextLeaf climbs the ancestor stack looking for the next
// subtree to the right, unpinning pages as they're exhausted.
func (it *Iterator) advanceToNextLeaf() error {
	it.pager.UnpinPage(it.leafID)
	it.leaf = nil

	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.nextIdx < top.page.NumSlots() {
			rec, err := top.page.RecordAt(top.nextIdx)
			if err != nil {
				return err
			}
			childID := rec.Child
			top.nextIdx++
			return it.descendLeftmost(childID)
		}
		it.pager.UnpinPage(top.id)
		it.stack = it.stack[:len(it.stack)-1]
	}
	return nil // exhausted
}

// Next advances the iterator, returning true if a valid (key, value)
// pair is now positioned.
func (it *Iterator) Next() bool {
	if it.err != nil || !it.started {
		return false
	}
	if it.leaf == nil {
		return false
	}

	if it.firstCall {
		it.firstCall = false
	} else {
		it.slot++
	}

	for it.leaf != nil && it.slot >= it.leaf.NumSlots() {
		if err := it.advanceToNextLeaf(); err != nil {
			it.err = err
			return false
		}
	}
	if it.leaf == nil {
		return false
	}

	if it.end != nil {
		key, err := it.leaf.KeyAt(it.slot)
		if err != nil {
			it.err = err
			return false
		}
		if bytes.Compare(key, it.end) >= 0 {
			it.closeRemaining()
			it.leaf = nil
			return false
		}
	}
	return true
}

func (it *Iterator) closeRemaining() {
	if it.leaf != nil {
		it.pager.UnpinPage(it.leafID)
	}
	for _, f := range it.stack {
		it.pager.UnpinPage(f.id)
	}
	it.stack = nil
}

// Key returns the current key.
func (it *Iterator) Key() []byte {
	if it.leaf == nil {
		return nil
	}
	key, err := it.leaf.KeyAt(it.slot)
	if err != nil {
		it.err = err
		return nil
	}
	return key
}

// Value returns the current value.
func (it *Iterator) Value() []byte {
	if it.leaf == nil {
		return nil
	}
	rec, err := it.leaf.RecordAt(it.slot)
	if err != nil {
		it.err = err
		return nil
	}
	return rec.Value
}

// Error returns any error encountered during iteration.
func (it *Iterator) Error() error { return it.err }

// Close releases every pinned page still held by the iterator.
func (it *Iterator) Close() error {
	it.closeRemaining()
	return nil
}

var _ common.Iterator = (*Iterator)(nil)
