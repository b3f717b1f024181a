package table

import (
	"bytes"
	"sort"

	"github.com/intellect4all/kvkernel/btree"
	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/txn"
)

// VersionIterator walks the union of a table's committed tree keys and
// its in-flight MVCC keys within a range, resolving each key's value
// exactly as GetVersion would: MVCC chain first, committed tree as
// fallback. It materializes the key set up front rather than streaming
// a true merge-sort of the two sources — table scans in this kernel are
// expected to be bounded by a single table's working set, not by a
// range spanning the whole keyspace.
type VersionIterator struct {
	tb   *Table
	t    *txn.Transaction
	keys [][]byte
	pos  int

	key   []byte
	value []byte
	err   error
}

func newVersionIterator(tb *Table, treeIter *btree.Iterator, mvccKeys [][]byte, t *txn.Transaction) *VersionIterator {
	seen := make(map[string]struct{}, len(mvccKeys))
	keys := make([][]byte, 0, len(mvccKeys))
	for _, k := range mvccKeys {
		seen[string(k)] = struct{}{}
		keys = append(keys, k)
	}
	for treeIter.Next() {
		k := append([]byte(nil), treeIter.Key()...)
		if _, ok := seen[string(k)]; ok {
			continue
		}
		seen[string(k)] = struct{}{}
		keys = append(keys, k)
	}
	treeErr := treeIter.Error()
	treeIter.Close()

	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return &VersionIterator{tb: tb, t: t, keys: keys, pos: -1, err: treeErr}
}

// Next advances to the next key visible to t, skipping tombstoned or
// not-visible keys. Returns false once the key set and any pending
// error are exhausted.
func (vi *VersionIterator) Next() bool {
	if vi.err != nil {
		return false
	}
	for {
		vi.pos++
		if vi.pos >= len(vi.keys) {
			return false
		}
		key := vi.keys[vi.pos]
		value, found, err := vi.tb.GetVersion(key, vi.t)
		if err != nil {
			vi.err = err
			return false
		}
		if !found {
			continue
		}
		vi.key, vi.value = key, value
		return true
	}
}

func (vi *VersionIterator) Key() []byte   { return vi.key }
func (vi *VersionIterator) Value() []byte { return vi.value }
func (vi *VersionIterator) Error() error  { return vi.err }
func (vi *VersionIterator) Close() error  { return nil }

var _ common.Iterator = (*VersionIterator)(nil)
