package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// IndexCatalog is bookkeeping only, per spec.md §4.12: it records which
// index names exist for a collection and the store name backing each,
// persisted as "<collection>.meta.json". It implements no index key
// encoding or maintenance policy — callers open and transact across
// index: tables exactly like table: tables; deciding which index
// entries to write is left to a layer above this kernel.
type IndexCatalog struct {
	mu      sync.Mutex
	path    string
	Indexes map[string]string `json:"indexes"` // index name -> store name
}

// loadOrCreateIndexCatalog reads "<collection>.meta.json" under
// basePath, or returns an empty catalog if it doesn't exist yet.
func loadOrCreateIndexCatalog(basePath, collection string) (*IndexCatalog, error) {
	path := filepath.Join(basePath, collection+".meta.json")
	cat := &IndexCatalog{path: path, Indexes: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cat, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cat); err != nil {
		return nil, err
	}
	if cat.Indexes == nil {
		cat.Indexes = make(map[string]string)
	}
	return cat, nil
}

// Register records indexName -> storeName and persists the catalog.
// Idempotent: re-registering the same index name overwrites its entry.
func (c *IndexCatalog) Register(indexName, storeName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Indexes[indexName] = storeName
	return c.save()
}

// StoreName returns the store name registered for indexName, if any.
func (c *IndexCatalog) StoreName(indexName string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.Indexes[indexName]
	return name, ok
}

func (c *IndexCatalog) save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}
