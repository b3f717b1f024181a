// Package btree implements the durable, version-oblivious B+ tree that
// backs each table: copy-on-write mutation of the page path from leaf to
// root, an ordered range iterator, and a three-stage checkpoint that
// hands off to the block file's durable root swap. It holds committed
// data only — the mvcc package is responsible for recent/uncommitted
// versions and for materializing committed writes down into this tree
// before a checkpoint. Grounded on the teacher's btree/btree.go (Config/
// DefaultConfig convention, Put/Get/Delete/Stats shape, sync.RWMutex
// structural lock) generalized to 64-bit CoW pages and a fixed-width
// record format.
package btree

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intellect4all/kvkernel/blockfile"
	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/logx"
	"github.com/intellect4all/kvkernel/metrics"
)

// ErrChildNotFound signals a routing-entry invariant violation: an
// internal page's recorded child id does not match the id its CoW
// rewrite produced. This should never surface outside this package.
var ErrChildNotFound = fmt.Errorf("%w: child id not found in parent page", common.ErrCorrupt)

// Config holds configuration for a table's B+ tree.
type Config struct {
	DataDir           string
	PageSize          uint32
	PageCacheCapacity int
}

// DefaultConfig returns sensible defaults for a new table file.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:           dataDir + "/table.db",
		PageSize:          4096,
		PageCacheCapacity: 256,
	}
}

// BTree is a single table's durable storage: one block file, one page
// cache, one logical root. All methods operate on the latest committed
// tree state — callers needing snapshot isolation go through the mvcc
// package instead of calling Put/Get directly against live transactions.
type BTree struct {
	pager  *Pager
	mu     sync.RWMutex
	rootID uint64

	stats struct {
		numKeys    atomic.Int64
		writeCount atomic.Int64
		readCount  atomic.Int64
	}

	closed atomic.Bool
}

// Open creates or opens a table's block file and initializes an empty
// root if the file has no durable root yet.
func Open(cfg Config) (*BTree, error) {
	bf, err := blockfile.Open(cfg.DataDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open table %q: %w", cfg.DataDir, err)
		}
		bf, err = blockfile.Create(cfg.DataDir, cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("create table %q: %w", cfg.DataDir, err)
		}
	}

	pager := NewPager(bf, cfg.PageCacheCapacity)
	bt := &BTree{pager: pager, rootID: pager.RootID()}

	if bt.rootID == 0 {
		leaf, err := pager.NewBlankLeaf()
		if err != nil {
			pager.Close()
			return nil, err
		}
		bt.rootID = leaf.ID()
		if err := pager.CheckpointFlushData(bt.rootID); err != nil {
			pager.Close()
			return nil, err
		}
	}

	logx.With("btree").Debug().Str("path", cfg.DataDir).Uint64("root", bt.rootID).Msg("opened table")
	return bt, nil
}

// OpenWithPager wires a BTree on top of an already-open Pager, used by
// tests that want to share a block file with a mock or inspect pager
// internals directly.
func OpenWithPager(pager *Pager) (*BTree, error) {
	bt := &BTree{pager: pager, rootID: pager.RootID()}
	if bt.rootID == 0 {
		leaf, err := pager.NewBlankLeaf()
		if err != nil {
			return nil, err
		}
		bt.rootID = leaf.ID()
		if err := pager.CheckpointFlushData(bt.rootID); err != nil {
			return nil, err
		}
	}
	return bt, nil
}

// Get returns the value stored for key in the latest committed tree.
func (bt *BTree) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	if bt.closed.Load() {
		return nil, common.ErrClosed
	}

	bt.mu.RLock()
	defer bt.mu.RUnlock()
	bt.stats.readCount.Add(1)

	id := bt.rootID
	for {
		page, err := bt.pager.PinPage(id)
		if err != nil {
			return nil, err
		}
		if page.IsLeaf() {
			value, found := page.Get(key)
			bt.pager.UnpinPage(id)
			if !found {
				return nil, common.ErrKeyNotFound
			}
			out := make([]byte, len(value))
			copy(out, value)
			return out, nil
		}
		next, err := page.ChildForKey(key)
		bt.pager.UnpinPage(id)
		if err != nil {
			return nil, err
		}
		id = next
	}
}

// Put inserts or overwrites key with value, copy-on-write rewriting the
// path from leaf to root. The new root is held in memory; call
// Checkpoint to make it durable.
func (bt *BTree) Put(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	if bt.closed.Load() {
		return common.ErrClosed
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()

	newRoot, splitKey, newSibling, isNew, err := bt.putRecursive(bt.rootID, key, value)
	if err != nil {
		return err
	}
	if newSibling != 0 {
		root := NewInternalPage(0, bt.pager.PageSize(), newRoot)
		if err := root.PutSeparator(splitKey, newSibling); err != nil {
			return err
		}
		rootID, err := bt.pager.WriteNewPage(root)
		if err != nil {
			return err
		}
		newRoot = rootID
	}

	bt.rootID = newRoot
	bt.stats.writeCount.Add(1)
	if isNew {
		bt.stats.numKeys.Add(1)
	}
	return nil
}

// InsertUnique behaves like Put but fails with common.ErrDuplicateKey
// without mutating the tree if key already exists.
func (bt *BTree) InsertUnique(key, value []byte) error {
	if _, err := bt.Get(key); err == nil {
		return fmt.Errorf("%w: %s", common.ErrDuplicateKey, key)
	} else if !errors.Is(err, common.ErrKeyNotFound) {
		return err
	}
	return bt.Put(key, value)
}

// putRecursive descends to key's leaf, applying the value and splitting
// pages as needed, copy-on-write rewriting every page on the path. It
// returns the new id of the page at this level, and — if this level
// split — the separator key and new right-sibling id to be inserted
// into the parent.
func (bt *BTree) putRecursive(id uint64, key, value []byte) (newID uint64, splitKey []byte, newSibling uint64, isNew bool, err error) {
	page, err := bt.pager.PinPageMut(id)
	if err != nil {
		return 0, nil, 0, false, err
	}

	if page.IsLeaf() {
		_, existed := page.Get(key)
		isNew = !existed
		if err := page.Put(key, value); err != nil {
			if !errors.Is(err, common.ErrPageFull) {
				return 0, nil, 0, false, err
			}
			left, right, sep, serr := splitLeafWithNew(page, key, value, bt.pager.PageSize())
			if serr != nil {
				return 0, nil, 0, false, serr
			}
			leftID, cerr := bt.pager.UnpinPageMutCommit(id, left)
			if cerr != nil {
				return 0, nil, 0, false, cerr
			}
			rightID, werr := bt.pager.WriteNewPage(right)
			if werr != nil {
				return 0, nil, 0, false, werr
			}
			return leftID, sep, rightID, isNew, nil
		}
		newID, err = bt.pager.UnpinPageMutCommit(id, page)
		return newID, nil, 0, isNew, err
	}

	childID, err := page.ChildForKey(key)
	if err != nil {
		return 0, nil, 0, false, err
	}
	newChildID, childSplitKey, childSibling, childIsNew, err := bt.putRecursive(childID, key, value)
	if err != nil {
		return 0, nil, 0, false, err
	}
	isNew = childIsNew

	if err := replaceChildID(page, childID, newChildID); err != nil {
		return 0, nil, 0, false, err
	}

	if childSibling == 0 {
		newID, err = bt.pager.UnpinPageMutCommit(id, page)
		return newID, nil, 0, isNew, err
	}

	if err := page.PutSeparator(childSplitKey, childSibling); err != nil {
		if !errors.Is(err, common.ErrPageFull) {
			return 0, nil, 0, false, err
		}
		left, right, sep, serr := splitInternalWithNew(page, childSplitKey, childSibling, bt.pager.PageSize())
		if serr != nil {
			return 0, nil, 0, false, serr
		}
		leftID, cerr := bt.pager.UnpinPageMutCommit(id, left)
		if cerr != nil {
			return 0, nil, 0, false, cerr
		}
		rightID, werr := bt.pager.WriteNewPage(right)
		if werr != nil {
			return 0, nil, 0, false, werr
		}
		return leftID, sep, rightID, isNew, nil
	}

	newID, err = bt.pager.UnpinPageMutCommit(id, page)
	return newID, nil, 0, isNew, err
}

// Delete removes key from the tree. Per this kernel's design there is no
// merge or redistribution on underflow — pages are left sparse and only
// reclaimed by a future split elsewhere or, for whole pages, never (the
// tradeoff is documented in DESIGN.md). It reports whether key was
// present.
func (bt *BTree) Delete(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, common.ErrKeyEmpty
	}
	if bt.closed.Load() {
		return false, common.ErrClosed
	}

	bt.mu.Lock()
	defer bt.mu.Unlock()

	newRoot, removed, err := bt.deleteRecursive(bt.rootID, key)
	if err != nil {
		return false, err
	}
	bt.rootID = newRoot
	if removed {
		bt.stats.numKeys.Add(-1)
	}
	return removed, nil
}

func (bt *BTree) deleteRecursive(id uint64, key []byte) (newID uint64, removed bool, err error) {
	page, err := bt.pager.PinPageMut(id)
	if err != nil {
		return 0, false, err
	}

	if page.IsLeaf() {
		removed, err = page.Delete(key)
		if err != nil {
			return 0, false, err
		}
		newID, err = bt.pager.UnpinPageMutCommit(id, page)
		return newID, removed, err
	}

	childID, err := page.ChildForKey(key)
	if err != nil {
		return 0, false, err
	}
	newChildID, removed, err := bt.deleteRecursive(childID, key)
	if err != nil {
		return 0, false, err
	}
	if err := replaceChildID(page, childID, newChildID); err != nil {
		return 0, false, err
	}
	newID, err = bt.pager.UnpinPageMutCommit(id, page)
	return newID, removed, err
}

// Range returns an iterator over [start, end) in ascending key order. A
// nil start begins at the first key; a nil end runs to the last key.
func (bt *BTree) Range(start, end []byte) (*Iterator, error) {
	if bt.closed.Load() {
		return nil, common.ErrClosed
	}
	bt.mu.RLock()
	rootID := bt.rootID
	bt.mu.RUnlock()
	return newIterator(bt.pager, rootID, start, end)
}

// Checkpoint materializes the current in-memory root into the block
// file's durable checkpoint slot and frees the pages superseded since the
// prior checkpoint into the discard list; they become reusable at the
// following checkpoint, once their generation is durable. Callers above (mvcc/session) invoke this after
// flushing committed versions down into the tree.
func (bt *BTree) Checkpoint() error {
	start := time.Now()
	defer func() { metrics.CheckpointSeconds.Observe(time.Since(start).Seconds()) }()

	bt.mu.Lock()
	root := bt.rootID
	bt.mu.Unlock()

	if err := bt.pager.CheckpointPrepare(); err != nil {
		return err
	}
	if err := bt.pager.CheckpointFlushData(root); err != nil {
		return err
	}
	return bt.pager.CheckpointCommit()
}

// Sync checkpoints the tree, making the latest root durable.
func (bt *BTree) Sync() error {
	if bt.closed.Load() {
		return common.ErrClosed
	}
	return bt.Checkpoint()
}

// Close checkpoints and closes the underlying block file.
func (bt *BTree) Close() error {
	if bt.closed.Swap(true) {
		return nil
	}
	if err := bt.Checkpoint(); err != nil {
		return err
	}
	bt.mu.Lock()
	defer bt.mu.Unlock()
	return bt.pager.Close()
}

// Stats reports basic table-level counters.
func (bt *BTree) Stats() common.Stats {
	return common.Stats{
		NumKeys:    bt.stats.numKeys.Load(),
		WriteCount: bt.stats.writeCount.Load(),
		ReadCount:  bt.stats.readCount.Load(),
	}
}

// Compact is a no-op: copy-on-write pages are reclaimed through the
// checkpoint/reclaim cycle, not a separate compaction pass.
func (bt *BTree) Compact() error { return nil }
