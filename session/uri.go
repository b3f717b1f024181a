package session

import (
	"fmt"
	"strings"

	"github.com/intellect4all/kvkernel/common"
)

// uriKind distinguishes a primary table URI from a secondary index URI.
type uriKind int

const (
	uriTable uriKind = iota
	uriIndex
)

// parsedURI is the result of parsing a data-source URI against the
// grammar spec.md §4.12 names: "table:<name>" or
// "index:<collection>:<index>", with empty components rejected.
type parsedURI struct {
	kind       uriKind
	collection string
	index      string
}

// storeName is the filesystem-stable identifier used for both the
// table's block file name and the "store" field in its WAL records —
// the same value on the write path (table.Table.Name) and the replay
// path (recovery's ensureReplayTable), so recovery reopens exactly the
// table that logged each record.
func (u parsedURI) storeName() string {
	if u.kind == uriTable {
		return u.collection
	}
	return u.collection + "__idx_" + u.index
}

func parseURI(uri string) (parsedURI, error) {
	switch {
	case strings.HasPrefix(uri, "table:"):
		collection := strings.TrimPrefix(uri, "table:")
		if collection == "" {
			return parsedURI{}, fmt.Errorf("%w: %q", common.ErrInvalidURI, uri)
		}
		return parsedURI{kind: uriTable, collection: collection}, nil
	case strings.HasPrefix(uri, "index:"):
		rest := strings.TrimPrefix(uri, "index:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return parsedURI{}, fmt.Errorf("%w: %q", common.ErrInvalidURI, uri)
		}
		return parsedURI{kind: uriIndex, collection: parts[0], index: parts[1]}, nil
	default:
		return parsedURI{}, fmt.Errorf("%w: %q", common.ErrInvalidURI, uri)
	}
}
