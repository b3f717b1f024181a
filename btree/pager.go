package btree

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/intellect4all/kvkernel/blockfile"
	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/logx"
	"github.com/intellect4all/kvkernel/metrics"
)

// Pager is a pin-counted page cache over a blockfile.File. Reads are
// served from cache or loaded on demand; mutations go through a
// copy-on-write path — PinPageMut hands out a private clone, and
// UnpinPageMutCommit persists it under a freshly allocated page id so
// that snapshot readers still holding the old id's page keep seeing
// the pre-mutation contents. Grounded on the teacher's btree/pager.go
// (container/list LRU, page cache map, dirty tracking) generalized from
// a single fixed-id in-place-write page store to 64-bit ids with CoW
// allocation and pin counts for safe concurrent eviction.
type Pager struct {
	bf   *blockfile.File
	mu   sync.Mutex
	size int // page payload length (blockfile page size minus its CRC prefix)

	entries  map[uint64]*cacheEntry
	lru      *list.List // holds uint64 page ids, front = most recently used
	lruElems map[uint64]*list.Element
	capacity int

	pendingFree map[uint64]bool // pages superseded this epoch, freed at checkpoint commit
}

type cacheEntry struct {
	page     *Page
	pinCount int
}

// NewPager wraps an open blockfile.File with a page cache holding up to
// capacity unpinned pages before evicting.
func NewPager(bf *blockfile.File, capacity int) *Pager {
	if capacity < 1 {
		capacity = 1
	}
	return &Pager{
		bf:          bf,
		size:        int(bf.PageSize()) - 4,
		entries:     make(map[uint64]*cacheEntry),
		lru:         list.New(),
		lruElems:    make(map[uint64]*list.Element),
		capacity:    capacity,
		pendingFree: make(map[uint64]bool),
	}
}

// PageSize returns the usable page payload length pages are sized to.
func (pg *Pager) PageSize() int { return pg.size }

// RootID returns the durable root page id from the block file.
func (pg *Pager) RootID() uint64 { return pg.bf.ActiveRoot() }

func (pg *Pager) touchLRU(id uint64) {
	if elem, ok := pg.lruElems[id]; ok {
		pg.lru.MoveToFront(elem)
		return
	}
	pg.lruElems[id] = pg.lru.PushFront(id)
}

func (pg *Pager) dropLRU(id uint64) {
	if elem, ok := pg.lruElems[id]; ok {
		pg.lru.Remove(elem)
		delete(pg.lruElems, id)
	}
}

// evictIfNeeded evicts unpinned entries from the back of the LRU list
// until the cache is back under capacity. Pinned entries are skipped;
// since they carry no LRU element, eviction never touches them.
func (pg *Pager) evictIfNeeded() {
	for len(pg.entries) > pg.capacity {
		elem := pg.lru.Back()
		if elem == nil {
			return
		}
		id := elem.Value.(uint64)
		pg.lru.Remove(elem)
		delete(pg.lruElems, id)
		delete(pg.entries, id)
		metrics.PageCacheEvictions.Inc()
	}
}

func (pg *Pager) loadLocked(id uint64) (*Page, error) {
	payload, err := pg.bf.ReadBlock(id, true)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return LoadPage(id, buf)
}

// PinPage returns a read-only handle to page id, loading it from disk on
// a cache miss. Callers must call UnpinPage when done.
func (pg *Pager) PinPage(id uint64) (*Page, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if e, ok := pg.entries[id]; ok {
		e.pinCount++
		pg.dropLRU(id)
		metrics.PageCacheHits.Inc()
		return e.page, nil
	}

	page, err := pg.loadLocked(id)
	if err != nil {
		return nil, err
	}
	pg.entries[id] = &cacheEntry{page: page, pinCount: 1}
	metrics.PageCacheMisses.Inc()
	return page, nil
}

// UnpinPage releases a read-only handle obtained from PinPage.
func (pg *Pager) UnpinPage(id uint64) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	e, ok := pg.entries[id]
	if !ok || e.pinCount == 0 {
		return
	}
	e.pinCount--
	if e.pinCount == 0 {
		pg.touchLRU(id)
		pg.evictIfNeeded()
	}
}

// PinPageMut returns a private clone of page id for mutation. The clone
// is not visible to other pins of id until committed under a new id via
// UnpinPageMutCommit.
func (pg *Pager) PinPageMut(id uint64) (*Page, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	var base *Page
	if e, ok := pg.entries[id]; ok {
		base = e.page
	} else {
		loaded, err := pg.loadLocked(id)
		if err != nil {
			return nil, err
		}
		base = loaded
		pg.entries[id] = &cacheEntry{page: loaded, pinCount: 0}
	}
	return base.Clone(), nil
}

// UnpinPageMutCommit persists the mutated clone under a freshly
// allocated page id, marks oldID for reclamation once the next
// checkpoint commits, and caches the new page. It returns the new id
// the caller must thread into its parent's routing entry.
func (pg *Pager) UnpinPageMutCommit(oldID uint64, page *Page) (uint64, error) {
	newID, err := pg.bf.AllocateBlock()
	if err != nil {
		return 0, err
	}
	if err := pg.bf.WriteBlock(newID, page.Data()); err != nil {
		return 0, err
	}

	pg.mu.Lock()
	page.id = newID
	pg.entries[newID] = &cacheEntry{page: page, pinCount: 0}
	pg.touchLRU(newID)
	pg.pendingFree[oldID] = true
	pg.evictIfNeeded()
	pg.mu.Unlock()

	return newID, nil
}

// UnpinPageMutAbort discards a clone obtained via PinPageMut without
// persisting it. The original page at oldID is untouched.
func (pg *Pager) UnpinPageMutAbort(oldID uint64, page *Page) {
	_ = oldID
	_ = page
}

// WriteNewPage allocates a fresh page id and persists page, used when
// the tree grows (new leaves, new roots from a split).
func (pg *Pager) WriteNewPage(page *Page) (uint64, error) {
	newID, err := pg.bf.AllocateBlock()
	if err != nil {
		return 0, err
	}
	if err := pg.bf.WriteBlock(newID, page.Data()); err != nil {
		return 0, err
	}
	page.id = newID

	pg.mu.Lock()
	pg.entries[newID] = &cacheEntry{page: page, pinCount: 0}
	pg.touchLRU(newID)
	pg.evictIfNeeded()
	pg.mu.Unlock()

	return newID, nil
}

// NewBlankLeaf allocates and persists an empty leaf page.
func (pg *Pager) NewBlankLeaf() (*Page, error) {
	page := NewLeafPage(0, pg.size)
	id, err := pg.WriteNewPage(page)
	if err != nil {
		return nil, err
	}
	page.id = id
	return page, nil
}

// NewBlankInternal allocates and persists an empty internal page routing
// everything to firstChild.
func (pg *Pager) NewBlankInternal(firstChild uint64) (*Page, error) {
	page := NewInternalPage(0, pg.size, firstChild)
	id, err := pg.WriteNewPage(page)
	if err != nil {
		return nil, err
	}
	page.id = id
	return page, nil
}

// CheckpointPrepare is the first stage of the three-stage checkpoint
// protocol. Page data is written through on every mutation already, so
// there is nothing to flush here beyond a barrier sync.
func (pg *Pager) CheckpointPrepare() error {
	return pg.bf.Sync()
}

// CheckpointFlushData makes newRoot durable in the block file's
// checkpoint slot, the second stage of the protocol.
func (pg *Pager) CheckpointFlushData(newRoot uint64) error {
	return pg.bf.SetRootBlockId(newRoot)
}

// CheckpointCommit is the third stage: pages superseded since the last
// checkpoint can no longer be reached through the newly-durable root, so
// they are freed into the discard list. They carry the generation after
// the durable one, so the ReclaimDiscarded call here moves only ranges
// freed at earlier checkpoints into avail.
func (pg *Pager) CheckpointCommit() error {
	pg.mu.Lock()
	toFree := make([]uint64, 0, len(pg.pendingFree))
	for id := range pg.pendingFree {
		toFree = append(toFree, id)
	}
	pg.pendingFree = make(map[uint64]bool)
	pg.mu.Unlock()

	for _, id := range toFree {
		if err := pg.bf.FreeExtent(id, 1); err != nil {
			return fmt.Errorf("%w: free superseded page %d: %v", common.ErrStorage, id, err)
		}
	}
	if err := pg.bf.ReclaimDiscarded(); err != nil {
		return err
	}
	logx.With("pager").Debug().Int("freed", len(toFree)).Msg("checkpoint commit reclaimed superseded pages")
	return nil
}

// Close releases the underlying block file.
func (pg *Pager) Close() error {
	return pg.bf.Close()
}
