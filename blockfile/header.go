package blockfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/intellect4all/kvkernel/common"
)

// encodedHeaderSize returns the total payload size (everything after the
// page-level CRC prefix) the header currently needs.
func (bf *File) encodedHeaderSize() int {
	n := len(bf.hdr.alloc) + len(bf.hdr.avail) + len(bf.hdr.discard)
	return fixedHeaderSize + n*extentEntrySize
}

func putExtents(buf []byte, extents []Extent) int {
	off := 0
	for _, e := range extents {
		binary.LittleEndian.PutUint64(buf[off:], e.Offset)
		binary.LittleEndian.PutUint64(buf[off+8:], e.Size)
		binary.LittleEndian.PutUint64(buf[off+16:], e.Generation)
		off += extentEntrySize
	}
	return off
}

func getExtents(buf []byte, n int) []Extent {
	if n == 0 {
		return nil
	}
	out := make([]Extent, n)
	off := 0
	for i := 0; i < n; i++ {
		out[i] = Extent{
			Offset:     binary.LittleEndian.Uint64(buf[off:]),
			Size:       binary.LittleEndian.Uint64(buf[off+8:]),
			Generation: binary.LittleEndian.Uint64(buf[off+16:]),
		}
		off += extentEntrySize
	}
	return out
}

// writeHeader encodes the current in-memory header into block 0's payload
// (page-CRC prefix + fixed header + extent lists) and writes it via a
// positioned write, matching the teacher's writeMetadata convention.
func (bf *File) writeHeader() error {
	payloadSize := bf.encodedHeaderSize()
	if uint32(payloadSize+pageCRCSize) > bf.pageSize {
		return fmt.Errorf("%w: header does not fit in one page (%d extents)",
			common.ErrStorage, len(bf.hdr.alloc)+len(bf.hdr.avail)+len(bf.hdr.discard))
	}

	page := make([]byte, bf.pageSize)
	payload := page[pageCRCSize:]

	off := 0
	copy(payload[off:], magic[:])
	off += magicSize
	binary.LittleEndian.PutUint16(payload[off:], bf.hdr.version)
	off += 2
	binary.LittleEndian.PutUint32(payload[off:], bf.hdr.pageSize)
	off += 4
	binary.LittleEndian.PutUint32(payload[off:], uint32(len(bf.hdr.alloc)))
	off += 4
	binary.LittleEndian.PutUint32(payload[off:], uint32(len(bf.hdr.avail)))
	off += 4
	binary.LittleEndian.PutUint32(payload[off:], uint32(len(bf.hdr.discard)))
	off += 4

	for _, slot := range bf.hdr.slots {
		binary.LittleEndian.PutUint64(payload[off:], slot.Root)
		binary.LittleEndian.PutUint64(payload[off+8:], slot.Generation)
		binary.LittleEndian.PutUint32(payload[off+16:], slot.CRC)
		off += checkpointSlotSize
	}

	off += putExtents(payload[off:], bf.hdr.alloc)
	off += putExtents(payload[off:], bf.hdr.avail)
	off += putExtents(payload[off:], bf.hdr.discard)

	binary.LittleEndian.PutUint32(page[0:], crc32.ChecksumIEEE(payload))

	_, err := bf.f.WriteAt(page, 0)
	return err
}

// readHeader loads and validates block 0, selecting the active checkpoint
// slot as the valid slot with the greatest generation.
func (bf *File) readHeader() error {
	// Page size isn't known yet, so peek at a generously-sized prefix
	// first to learn it, then re-read the exact page once confirmed.
	const probeSize = 8192
	probe := make([]byte, probeSize)
	n, err := bf.f.ReadAt(probe, 0)
	if err != nil && n == 0 {
		return err
	}
	if n < pageCRCSize+fixedHeaderSize {
		return ErrInvalidHeader
	}
	payloadPeek := probe[pageCRCSize:n]
	if string(payloadPeek[0:magicSize]) != string(magic[:]) {
		return ErrInvalidHeader
	}
	pageSize := binary.LittleEndian.Uint32(payloadPeek[magicSize+2:])
	if pageSize == 0 || pageSize > 1<<28 {
		return ErrInvalidHeader
	}

	page := make([]byte, pageSize)
	if _, err := bf.f.ReadAt(page, 0); err != nil {
		return err
	}
	storedCRC := binary.LittleEndian.Uint32(page[0:4])
	payload := page[pageCRCSize:]
	if crc32.ChecksumIEEE(payload) != storedCRC {
		return fmt.Errorf("%w: header crc mismatch", common.ErrCorrupt)
	}

	off := 0
	if string(payload[off:off+magicSize]) != string(magic[:]) {
		return ErrInvalidHeader
	}
	off += magicSize
	version := binary.LittleEndian.Uint16(payload[off:])
	off += 2
	off += 4 // page size already known
	allocCount := binary.LittleEndian.Uint32(payload[off:])
	off += 4
	availCount := binary.LittleEndian.Uint32(payload[off:])
	off += 4
	discardCount := binary.LittleEndian.Uint32(payload[off:])
	off += 4

	var slots [2]CheckpointSlot
	for i := range slots {
		slots[i] = CheckpointSlot{
			Root:       binary.LittleEndian.Uint64(payload[off:]),
			Generation: binary.LittleEndian.Uint64(payload[off+8:]),
			CRC:        binary.LittleEndian.Uint32(payload[off+16:]),
		}
		off += checkpointSlotSize
	}

	alloc := getExtents(payload[off:], int(allocCount))
	off += int(allocCount) * extentEntrySize
	avail := getExtents(payload[off:], int(availCount))
	off += int(availCount) * extentEntrySize
	discard := getExtents(payload[off:], int(discardCount))

	active := -1
	for i, s := range slots {
		if !s.valid() {
			continue
		}
		if active == -1 || s.Generation > slots[active].Generation {
			active = i
		}
	}
	if active == -1 {
		return ErrNoValidSlot
	}

	bf.pageSize = pageSize
	bf.hdr = header{
		version:  version,
		pageSize: pageSize,
		slots:    slots,
		alloc:    alloc,
		avail:    avail,
		discard:  discard,
	}
	bf.active = active
	return nil
}
