// Slotted leaf/internal pages: the in-page record directory + packed
// records spec.md §3/§6 describes bit-exact. Grounded on the teacher's
// btree/page.go (header layout, searchCell/InsertCell/DeleteCell/compact
// algorithm shape) but rewritten against the spec's fixed-width
// (non-varint) record encoding and 64-bit page/child ids.
package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/intellect4all/kvkernel/common"
)

const (
	PageTypeLeaf     byte = 1
	PageTypeInternal byte = 2

	// Leaf header: type(1) flags(1) slot_count(2) lower(2) upper(2).
	LeafHeaderSize = 8
	// Internal header: leaf header + first_child(8).
	InternalHeaderSize = 16

	SlotSize         = 4 // record_offset(2) + record_length(2)
	RecordHeaderSize = 4 // klen(2) + vlen(2)
	ChildIDSize      = 8
)

// Record is a decoded slot: a (key, value) pair on a leaf page, or a
// (key, child) routing entry on an internal page.
type Record struct {
	Key   []byte
	Value []byte // leaf
	Child uint64 // internal
}

// Page is a fixed-size slotted page: a header, a slot directory growing
// forward from the header, and packed records growing backward from the
// end of the page. It holds only the block file payload — the leading
// page-level CRC lives in the blockfile package.
type Page struct {
	id       uint64
	data     []byte
	pageType byte
}

// NewLeafPage allocates an empty leaf page over a buffer of payloadLen
// bytes.
func NewLeafPage(id uint64, payloadLen int) *Page {
	p := &Page{id: id, data: make([]byte, payloadLen), pageType: PageTypeLeaf}
	p.data[0] = PageTypeLeaf
	p.setNumSlots(0)
	p.setLower(LeafHeaderSize)
	p.setUpper(uint16(payloadLen))
	return p
}

// NewInternalPage allocates an empty internal page routing all keys to
// firstChild until separators are inserted.
func NewInternalPage(id uint64, payloadLen int, firstChild uint64) *Page {
	p := &Page{id: id, data: make([]byte, payloadLen), pageType: PageTypeInternal}
	p.data[0] = PageTypeInternal
	p.setNumSlots(0)
	p.setLower(InternalHeaderSize)
	p.setUpper(uint16(payloadLen))
	p.SetFirstChild(firstChild)
	return p
}

// LoadPage reinterprets raw payload bytes (as read from the block file)
// as a Page. The slice is used directly, not copied.
func LoadPage(id uint64, data []byte) (*Page, error) {
	if len(data) < LeafHeaderSize {
		return nil, fmt.Errorf("%w: page %d too short", common.ErrCorrupt, id)
	}
	p := &Page{id: id, data: data, pageType: data[0]}
	if p.pageType != PageTypeLeaf && p.pageType != PageTypeInternal {
		return nil, fmt.Errorf("%w: page %d has unknown type %d", common.ErrCorrupt, id, p.pageType)
	}
	if p.IsInternal() && len(data) < InternalHeaderSize {
		return nil, fmt.Errorf("%w: internal page %d too short", common.ErrCorrupt, id)
	}
	return p, nil
}

func (p *Page) ID() uint64       { return p.id }
func (p *Page) Type() byte       { return p.pageType }
func (p *Page) IsLeaf() bool     { return p.pageType == PageTypeLeaf }
func (p *Page) IsInternal() bool { return p.pageType == PageTypeInternal }
func (p *Page) Data() []byte     { return p.data }
func (p *Page) Len() int         { return len(p.data) }

// Clone returns an independent copy of the page, used by the pager's
// copy-on-write mutation path.
func (p *Page) Clone() *Page {
	out := &Page{id: p.id, pageType: p.pageType, data: make([]byte, len(p.data))}
	copy(out.data, p.data)
	return out
}

func (p *Page) headerSize() int {
	if p.IsInternal() {
		return InternalHeaderSize
	}
	return LeafHeaderSize
}

func (p *Page) Flags() byte     { return p.data[1] }
func (p *Page) SetFlags(f byte) { p.data[1] = f }

func (p *Page) NumSlots() uint16 { return binary.LittleEndian.Uint16(p.data[2:]) }
func (p *Page) setNumSlots(n uint16) {
	binary.LittleEndian.PutUint16(p.data[2:], n)
}

func (p *Page) Lower() uint16 { return binary.LittleEndian.Uint16(p.data[4:]) }
func (p *Page) setLower(v uint16) {
	binary.LittleEndian.PutUint16(p.data[4:], v)
}

func (p *Page) Upper() uint16 { return binary.LittleEndian.Uint16(p.data[6:]) }
func (p *Page) setUpper(v uint16) {
	binary.LittleEndian.PutUint16(p.data[6:], v)
}

// FirstChild returns the routing child for keys less than the smallest
// separator. Only valid on internal pages.
func (p *Page) FirstChild() uint64 {
	return binary.LittleEndian.Uint64(p.data[8:])
}

func (p *Page) SetFirstChild(id uint64) {
	binary.LittleEndian.PutUint64(p.data[8:], id)
}

func (p *Page) slotOffset(i uint16) int { return p.headerSize() + int(i)*SlotSize }

func (p *Page) getSlot(i uint16) (recOffset, recLen uint16) {
	o := p.slotOffset(i)
	return binary.LittleEndian.Uint16(p.data[o:]), binary.LittleEndian.Uint16(p.data[o+2:])
}

func (p *Page) setSlot(i uint16, recOffset, recLen uint16) {
	o := p.slotOffset(i)
	binary.LittleEndian.PutUint16(p.data[o:], recOffset)
	binary.LittleEndian.PutUint16(p.data[o+2:], recLen)
}

func recordSize(keyLen, valueLen int) int {
	return RecordHeaderSize + keyLen + valueLen
}

// RecordAt decodes the record referenced by slot i.
func (p *Page) RecordAt(i uint16) (Record, error) {
	if i >= p.NumSlots() {
		return Record{}, common.ErrKeyNotFound
	}
	off, length := p.getSlot(i)
	if int(off)+int(length) > len(p.data) {
		return Record{}, fmt.Errorf("%w: page %d slot %d out of range", common.ErrCorrupt, p.id, i)
	}
	buf := p.data[off : off+length]
	if len(buf) < RecordHeaderSize {
		return Record{}, fmt.Errorf("%w: page %d slot %d truncated", common.ErrCorrupt, p.id, i)
	}
	klen := binary.LittleEndian.Uint16(buf[0:])
	vlen := binary.LittleEndian.Uint16(buf[2:])
	if RecordHeaderSize+int(klen)+int(vlen) != len(buf) {
		return Record{}, fmt.Errorf("%w: page %d slot %d length mismatch", common.ErrCorrupt, p.id, i)
	}
	key := buf[RecordHeaderSize : RecordHeaderSize+int(klen)]
	valBytes := buf[RecordHeaderSize+int(klen):]

	if p.IsInternal() {
		if vlen != ChildIDSize {
			return Record{}, fmt.Errorf("%w: internal record vlen != 8", common.ErrCorrupt)
		}
		return Record{Key: key, Child: binary.LittleEndian.Uint64(valBytes)}, nil
	}
	return Record{Key: key, Value: valBytes}, nil
}

// KeyAt returns just the key for slot i.
func (p *Page) KeyAt(i uint16) ([]byte, error) {
	rec, err := p.RecordAt(i)
	if err != nil {
		return nil, err
	}
	return rec.Key, nil
}

// search performs a binary search over slots for key. It returns the
// matching slot index and true on an exact hit, or the insertion index
// and false otherwise.
func (p *Page) search(key []byte) (int, bool) {
	n := int(p.NumSlots())
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		rec, err := p.RecordAt(uint16(mid))
		if err != nil {
			return lo, false
		}
		switch bytes.Compare(key, rec.Key) {
		case 0:
			return mid, true
		case -1:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false
}

func (p *Page) freeSpace() int {
	return int(p.Upper()) - int(p.Lower())
}

// fits reports whether a new record of the given sizes can be inserted
// without compaction.
func (p *Page) fits(keyLen, valueLen int) bool {
	need := recordSize(keyLen, valueLen) + SlotSize
	return p.freeSpace() >= need
}

func (p *Page) writeRecord(offset uint16, key, value []byte) {
	buf := p.data[offset:]
	binary.LittleEndian.PutUint16(buf[0:], uint16(len(key)))
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(value)))
	copy(buf[RecordHeaderSize:], key)
	copy(buf[RecordHeaderSize+len(key):], value)
}

func (p *Page) insertSlotAt(idx int, recOffset, recLen uint16) {
	n := p.NumSlots()
	for i := int(n); i > idx; i-- {
		off, length := p.getSlot(uint16(i - 1))
		p.setSlot(uint16(i), off, length)
	}
	p.setSlot(uint16(idx), recOffset, recLen)
	p.setNumSlots(n + 1)
	p.setLower(p.Lower() + SlotSize)
}

func (p *Page) removeSlotAt(idx int) {
	n := p.NumSlots()
	for i := idx; i < int(n)-1; i++ {
		off, length := p.getSlot(uint16(i + 1))
		p.setSlot(uint16(i), off, length)
	}
	p.setNumSlots(n - 1)
	p.setLower(p.Lower() - SlotSize)
}

// Put inserts or overwrites (key, value) in a leaf page. Returns
// common.ErrPageFull if there isn't room even after compaction; the
// B+ tree catches that and triggers a split.
func (p *Page) Put(key, value []byte) error {
	if !p.IsLeaf() {
		return fmt.Errorf("%w: Put called on internal page", common.ErrCorrupt)
	}
	return p.upsert(key, value, nil, false)
}

// PutSeparator inserts or overwrites a (separator key -> child) routing
// entry in an internal page.
func (p *Page) PutSeparator(key []byte, child uint64) error {
	if !p.IsInternal() {
		return fmt.Errorf("%w: PutSeparator called on leaf page", common.ErrCorrupt)
	}
	return p.upsert(key, nil, &child, true)
}

func (p *Page) upsert(key, value []byte, child *uint64, internal bool) error {
	idx, found := p.search(key)
	if found {
		p.removeSlotAt(idx)
	}

	valueLen := len(value)
	var valueBytes []byte
	if internal {
		valueLen = ChildIDSize
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], *child)
		valueBytes = buf[:]
	} else {
		valueBytes = value
	}

	if !p.fits(len(key), valueLen) {
		p.Compact()
		if !p.fits(len(key), valueLen) {
			return common.ErrPageFull
		}
	}

	// idx was computed against the pre-removal layout; slot order is
	// otherwise unaffected by compaction, so this just relocates the
	// insertion point after the earlier removal.
	idx, _ = p.search(key)

	size := recordSize(len(key), valueLen)
	newUpper := p.Upper() - uint16(size)
	p.writeRecord(newUpper, key, valueBytes)
	p.insertSlotAt(idx, newUpper, uint16(size))
	p.setUpper(newUpper)
	return nil
}

// Get looks up key in a leaf page.
func (p *Page) Get(key []byte) ([]byte, bool) {
	idx, found := p.search(key)
	if !found {
		return nil, false
	}
	rec, err := p.RecordAt(uint16(idx))
	if err != nil {
		return nil, false
	}
	return rec.Value, true
}

// Delete removes key from a leaf page. Space is reclaimed lazily by
// Compact.
func (p *Page) Delete(key []byte) (bool, error) {
	idx, found := p.search(key)
	if !found {
		return false, nil
	}
	p.removeSlotAt(idx)
	return true, nil
}

// Compact rewrites the record area tightly against the end of the page,
// preserving slot (and key) order, reclaiming garbage left behind by
// prior deletes and overwrites.
func (p *Page) Compact() {
	n := p.NumSlots()
	type entry struct {
		key, val []byte
		child    uint64
	}
	entries := make([]entry, n)
	for i := uint16(0); i < n; i++ {
		rec, err := p.RecordAt(i)
		if err != nil {
			continue
		}
		keyCopy := append([]byte(nil), rec.Key...)
		if p.IsInternal() {
			entries[i] = entry{key: keyCopy, child: rec.Child}
		} else {
			entries[i] = entry{key: keyCopy, val: append([]byte(nil), rec.Value...)}
		}
	}

	upper := uint16(len(p.data))
	for i := int(n) - 1; i >= 0; i-- {
		e := entries[i]
		var valueBytes []byte
		if p.IsInternal() {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], e.child)
			valueBytes = buf[:]
		} else {
			valueBytes = e.val
		}
		size := recordSize(len(e.key), len(valueBytes))
		upper -= uint16(size)
		p.writeRecord(upper, e.key, valueBytes)
		p.setSlot(uint16(i), upper, uint16(size))
	}
	p.setUpper(upper)
}

// ChildForKey implements the internal-page routing rule: the greatest
// separator <= key selects the child; if none exists, first_child does.
func (p *Page) ChildForKey(key []byte) (uint64, error) {
	if !p.IsInternal() {
		return 0, fmt.Errorf("%w: ChildForKey called on leaf page", common.ErrCorrupt)
	}
	idx, found := p.search(key)
	if found {
		rec, err := p.RecordAt(uint16(idx))
		if err != nil {
			return 0, err
		}
		return rec.Child, nil
	}
	if idx == 0 {
		return p.FirstChild(), nil
	}
	rec, err := p.RecordAt(uint16(idx - 1))
	if err != nil {
		return 0, err
	}
	return rec.Child, nil
}
