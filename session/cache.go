package session

import (
	"sync"

	"github.com/intellect4all/kvkernel/config"
	"github.com/intellect4all/kvkernel/table"
	"github.com/intellect4all/kvkernel/txn"
)

// dataHandleCache maps a data-source URI to its already-open Table, so
// repeated Session.Create/OpenCursor calls against the same collection
// share one underlying block file and MVCC state instead of reopening
// it. Grounded on original_source/src/api/data_handle_cache.rs's
// double-checked-locking get_or_open_primary.
type dataHandleCache struct {
	mu      sync.RWMutex
	handles map[string]*table.Table
}

func newDataHandleCache() *dataHandleCache {
	return &dataHandleCache{handles: make(map[string]*table.Table)}
}

func (c *dataHandleCache) getOrOpen(uri string, storeName string, basePath string, cfg config.Config, globalTxn *txn.GlobalTxnState) (*table.Table, error) {
	c.mu.RLock()
	if tb, ok := c.handles[uri]; ok {
		c.mu.RUnlock()
		return tb, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if tb, ok := c.handles[uri]; ok {
		return tb, nil
	}

	tb, err := table.Open(storeName, tableConfig(basePath, storeName, cfg), globalTxn)
	if err != nil {
		return nil, err
	}
	c.handles[uri] = tb
	return tb, nil
}

func (c *dataHandleCache) allHandles() []*table.Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*table.Table, 0, len(c.handles))
	for _, tb := range c.handles {
		out = append(out, tb)
	}
	return out
}
