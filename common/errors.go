package common

import "errors"

// Error kinds shared by every storage engine in this module. The kernel
// (blockfile/pager/btree/mvcc/wal/txn/session) distinguishes failures by
// intent rather than by a type hierarchy: callers use errors.Is against
// these sentinels, wrapped with fmt.Errorf("%w: ...", ...) for context.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrDiskFull    = errors.New("disk full")

	ErrClosed   = errors.New("storage engine closed")
	ErrKeyEmpty = errors.New("key cannot be empty")

	// ErrStorage covers I/O, checksum, and header-validation failures.
	ErrStorage = errors.New("storage error")

	// ErrCorrupt is a page- or record-level integrity failure. Callers
	// that can recover (WAL tail scan) convert it to ErrRecovery instead
	// of propagating it.
	ErrCorrupt = errors.New("corrupt data")

	// ErrPageFull signals in-page overflow; the B+ tree catches it and
	// triggers a split. It should never escape the btree package.
	ErrPageFull = errors.New("page is full")

	// ErrRecovery marks a WAL tail-scan stopping point: recovery proceeds
	// with everything before the break and logs the truncation.
	ErrRecovery = errors.New("wal recovery stopped at corrupt tail")

	// ErrDuplicateKey is surfaced by insert_unique on collision; the
	// transaction is not forced to abort.
	ErrDuplicateKey = errors.New("duplicate key")

	ErrTransactionAlreadyActive = errors.New("transaction already active")
	ErrNoActiveTransaction      = errors.New("no active transaction")

	ErrInvalidURI      = errors.New("invalid table uri")
	ErrTableNotFound   = errors.New("table not found")
	ErrInvalidPageSize = errors.New("invalid page size")
)
