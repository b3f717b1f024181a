package blockfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/intellect4all/kvkernel/common"
)

// isAllocated reports whether id falls inside some alloc extent. Callers
// hold bf.mu.
func (bf *File) isAllocated(id uint64) bool {
	for _, e := range bf.hdr.alloc {
		if id >= e.Offset && id < e.Offset+e.Size {
			return true
		}
	}
	return false
}

// ReadBlock reads the payload (page size minus the 4-byte CRC prefix) of
// block id. When verify is true, the stored CRC32 is recomputed and
// checked; a mismatch yields common.ErrCorrupt.
func (bf *File) ReadBlock(id uint64, verify bool) ([]byte, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	page := make([]byte, bf.pageSize)
	n, err := bf.f.ReadAt(page, int64(id)*int64(bf.pageSize))
	if err != nil {
		return nil, err
	}
	if uint32(n) != bf.pageSize {
		return nil, fmt.Errorf("%w: short read on block %d", common.ErrStorage, id)
	}

	payload := page[pageCRCSize:]
	if verify {
		stored := binary.LittleEndian.Uint32(page[0:4])
		if crc32.ChecksumIEEE(payload) != stored {
			return nil, fmt.Errorf("%w: block %d checksum mismatch", common.ErrCorrupt, id)
		}
	}
	return payload, nil
}

// WriteBlock writes payload (padded/truncated to page size - 4) to block
// id, prefixed with its freshly computed CRC32. Block 0 is reserved for
// the file header and cannot be written through this path.
func (bf *File) WriteBlock(id uint64, payload []byte) error {
	if id == MetadataBlockID {
		return fmt.Errorf("%w: block 0 is reserved for the header", common.ErrStorage)
	}

	bf.mu.Lock()
	if !bf.isAllocated(id) {
		bf.mu.Unlock()
		return fmt.Errorf("%w: block %d is not allocated", common.ErrStorage, id)
	}
	pageSize := bf.pageSize
	bf.mu.Unlock()

	page := make([]byte, pageSize)
	copy(page[pageCRCSize:], payload)
	binary.LittleEndian.PutUint32(page[0:4], crc32.ChecksumIEEE(page[pageCRCSize:]))

	bf.mu.Lock()
	defer bf.mu.Unlock()
	_, err := bf.f.WriteAt(page, int64(id)*int64(pageSize))
	if err != nil {
		return err
	}
	return bf.f.Sync()
}

// SetRootBlockId records newRoot as the tree root in the inactive
// checkpoint slot (generation = stable_generation + 1, skipping a
// wrap-around to 0), syncs, then flips the active slot. The caller is
// responsible for calling ReclaimDiscarded afterward once it is safe to
// reuse pages retired under the previous root.
func (bf *File) SetRootBlockId(newRoot uint64) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	nextGen := bf.hdr.slots[bf.active].Generation + 1
	if nextGen == 0 {
		nextGen = 1
	}

	inactive := bf.inactiveSlot()
	bf.hdr.slots[inactive] = CheckpointSlot{Root: newRoot, Generation: nextGen}
	bf.hdr.slots[inactive].CRC = bf.hdr.slots[inactive].computeCRC()

	if err := bf.writeHeader(); err != nil {
		return err
	}
	if err := bf.f.Sync(); err != nil {
		return err
	}

	bf.active = inactive
	return nil
}
