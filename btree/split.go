package btree

import (
	"bytes"

	"github.com/intellect4all/kvkernel/common"
)

// splitCandidates returns a deduplicated sequence of indices in
// [minIdx, n) to try a split/promote at, ordered by distance from the
// midpoint: mid, mid-1, mid+1, mid-2, mid+2, ... Grounded on
// original_source/src/storage/btree/layout.rs's split_leaf_entries/
// split_internal_entries candidate search — trying the exact midpoint
// first and then points increasingly further out means one oversized
// record near the midpoint doesn't make the whole split fail, only
// narrows which index it succeeds at.
func splitCandidates(n, minIdx int) []int {
	mid := n / 2
	seen := make(map[int]bool, n)
	var out []int
	add := func(i int) {
		if i < minIdx || i >= n || seen[i] {
			return
		}
		seen[i] = true
		out = append(out, i)
	}
	for delta := 0; delta < n; delta++ {
		a := mid - delta
		if a < 0 {
			a = 0
		}
		add(a)
		add(mid + delta)
	}
	return out
}

type leafEntry struct{ key, value []byte }

// splitLeafWithNew redistributes old's existing records plus the pending
// (key, value) insert across two fresh leaf pages. It tries split points
// near the midpoint, nearest first, until both halves fit in one page —
// it never mutates old — the caller discards it in favor of the returned
// pages. Grounded on the teacher's splitLeaf algorithm shape (collect,
// insert in sorted position, divide), adapted to the fixed-width record
// format, to building brand-new pages rather than mutating in place (the
// pager CoW path commits them under new ids), and to
// layout.rs's split_leaf_entries retry-near-midpoint search rather than
// a single fixed split point.
func splitLeafWithNew(old *Page, key, value []byte, payloadLen int) (left, right *Page, sepKey []byte, err error) {
	n := int(old.NumSlots())
	all := make([]leafEntry, 0, n+1)
	inserted := false
	for i := 0; i < n; i++ {
		rec, rerr := old.RecordAt(uint16(i))
		if rerr != nil {
			return nil, nil, nil, rerr
		}
		if !inserted && bytes.Compare(key, rec.Key) < 0 {
			all = append(all, leafEntry{key, value})
			inserted = true
		}
		all = append(all, leafEntry{append([]byte(nil), rec.Key...), append([]byte(nil), rec.Value...)})
	}
	if !inserted {
		all = append(all, leafEntry{key, value})
	}

	for _, splitIdx := range splitCandidates(len(all), 1) {
		left, err = buildLeafPage(all[:splitIdx], payloadLen)
		if err != nil {
			continue
		}
		right, err = buildLeafPage(all[splitIdx:], payloadLen)
		if err != nil {
			continue
		}
		return left, right, all[splitIdx].key, nil
	}
	return nil, nil, nil, common.ErrPageFull
}

func buildLeafPage(entries []leafEntry, payloadLen int) (*Page, error) {
	page := NewLeafPage(0, payloadLen)
	for _, e := range entries {
		if err := page.Put(e.key, e.value); err != nil {
			return nil, err
		}
	}
	return page, nil
}

type internalEntry struct {
	key   []byte
	child uint64
}

// splitInternalWithNew redistributes old's routing entries (first_child
// plus every separator) together with the pending (key, child) insert
// across two fresh internal pages, trying promotion points near the
// midpoint nearest first until both halves fit. The promoted entry's
// key becomes the new separator the parent inserts; its child becomes
// right's first child, per the standard B+ tree internal-split rule and
// layout.rs's split_internal_entries.
func splitInternalWithNew(old *Page, key []byte, child uint64, payloadLen int) (left, right *Page, sepKey []byte, err error) {
	firstChild := old.FirstChild()
	n := int(old.NumSlots())
	entries := make([]internalEntry, 0, n+1)

	inserted := false
	for i := 0; i < n; i++ {
		rec, rerr := old.RecordAt(uint16(i))
		if rerr != nil {
			return nil, nil, nil, rerr
		}
		if !inserted && bytes.Compare(key, rec.Key) < 0 {
			entries = append(entries, internalEntry{key: key, child: child})
			inserted = true
		}
		entries = append(entries, internalEntry{key: append([]byte(nil), rec.Key...), child: rec.Child})
	}
	if !inserted {
		entries = append(entries, internalEntry{key: key, child: child})
	}

	for _, promoteIdx := range splitCandidates(len(entries), 0) {
		rightFirstChild := entries[promoteIdx].child
		left, err = buildInternalPage(firstChild, entries[:promoteIdx], payloadLen)
		if err != nil {
			continue
		}
		right, err = buildInternalPage(rightFirstChild, entries[promoteIdx+1:], payloadLen)
		if err != nil {
			continue
		}
		return left, right, entries[promoteIdx].key, nil
	}
	return nil, nil, nil, common.ErrPageFull
}

func buildInternalPage(firstChild uint64, entries []internalEntry, payloadLen int) (*Page, error) {
	page := NewInternalPage(0, payloadLen, firstChild)
	for _, e := range entries {
		if err := page.PutSeparator(e.key, e.child); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// replaceChildID rewrites whichever routing entry in page points at
// oldID so that it points at newID instead — either first_child or a
// separator's child. Used after a child subtree is copy-on-write
// rewritten under a new page id.
func replaceChildID(page *Page, oldID, newID uint64) error {
	if page.FirstChild() == oldID {
		page.SetFirstChild(newID)
		return nil
	}
	n := page.NumSlots()
	for i := uint16(0); i < n; i++ {
		rec, err := page.RecordAt(i)
		if err != nil {
			return err
		}
		if rec.Child == oldID {
			return page.PutSeparator(rec.Key, newID)
		}
	}
	return ErrChildNotFound
}
