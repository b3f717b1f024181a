package blockfile

import (
	"fmt"
	"sort"

	"github.com/intellect4all/kvkernel/common"
	"github.com/intellect4all/kvkernel/logx"
)

// AllocateBlock allocates a single page and returns its block id.
func (bf *File) AllocateBlock() (uint64, error) {
	offset, err := bf.AllocateExtent(1)
	return offset, err
}

// AllocateExtent allocates n contiguous pages, preferring a best-fit
// (smallest-size-that-fits) run from the avail list before extending the
// file. The remainder of a larger avail extent, if any, is split back
// into avail. The updated header is persisted to the inactive checkpoint
// slot's generation bookkeeping (the header itself is rewritten, but the
// active/durable slot is untouched until SetRootBlockId).
func (bf *File) AllocateExtent(n uint64) (uint64, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	best := -1
	for i, e := range bf.hdr.avail {
		if e.Size < n {
			continue
		}
		if best == -1 || e.Size < bf.hdr.avail[best].Size {
			best = i
		}
	}

	var offset uint64
	if best != -1 {
		e := bf.hdr.avail[best]
		offset = e.Offset
		if e.Size == n {
			bf.hdr.avail = append(bf.hdr.avail[:best], bf.hdr.avail[best+1:]...)
		} else {
			bf.hdr.avail[best] = Extent{Offset: e.Offset + n, Size: e.Size - n}
		}
	} else {
		fi, err := bf.f.Stat()
		if err != nil {
			return 0, err
		}
		currentBlocks := uint64(fi.Size()) / uint64(bf.pageSize)
		offset = currentBlocks
		newSize := (currentBlocks + n) * uint64(bf.pageSize)
		if err := bf.f.Truncate(int64(newSize)); err != nil {
			return 0, fmt.Errorf("%w: extend file: %v", common.ErrDiskFull, err)
		}
	}

	bf.hdr.alloc = append(bf.hdr.alloc, Extent{Offset: offset, Size: n})
	if err := bf.writeHeader(); err != nil {
		return 0, err
	}
	return offset, nil
}

// FreeExtent marks [offset, offset+size) as freed. The range must lie
// entirely inside one alloc extent; it is carved out of that extent and
// appended to discard, tagged with the generation that will become active
// on the next checkpoint commit (stable_generation + 1), so the pages
// cannot be reused while the current durable root might still reference
// them.
func (bf *File) FreeExtent(offset, size uint64) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	idx := -1
	for i, e := range bf.hdr.alloc {
		if offset >= e.Offset && offset+size <= e.Offset+e.Size {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrBadRange
	}

	e := bf.hdr.alloc[idx]
	bf.hdr.alloc = append(bf.hdr.alloc[:idx], bf.hdr.alloc[idx+1:]...)
	if e.Offset < offset {
		bf.hdr.alloc = append(bf.hdr.alloc, Extent{Offset: e.Offset, Size: offset - e.Offset})
	}
	if e.Offset+e.Size > offset+size {
		bf.hdr.alloc = append(bf.hdr.alloc, Extent{Offset: offset + size, Size: e.Offset + e.Size - (offset + size)})
	}

	stableGen := bf.hdr.slots[bf.active].Generation
	bf.hdr.discard = append(bf.hdr.discard, Extent{Offset: offset, Size: size, Generation: stableGen + 1})

	return bf.writeHeader()
}

// ReclaimDiscarded moves every discard entry whose generation has become
// durable (generation <= the active slot's generation) into avail,
// coalescing adjacent free ranges by offset. Called during the commit
// phase of a checkpoint, after the new root has been made durable.
func (bf *File) ReclaimDiscarded() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	stableGen := bf.hdr.slots[bf.active].Generation

	var kept []Extent
	reclaimed := 0
	for _, e := range bf.hdr.discard {
		if e.Generation <= stableGen {
			bf.hdr.avail = append(bf.hdr.avail, Extent{Offset: e.Offset, Size: e.Size})
			reclaimed++
		} else {
			kept = append(kept, e)
		}
	}
	bf.hdr.discard = kept

	bf.hdr.avail = coalesce(bf.hdr.avail)

	logx.With("blockfile").Debug().
		Int("reclaimed", reclaimed).
		Int("avail_extents", len(bf.hdr.avail)).
		Msg("reclaimed discarded extents")

	return bf.writeHeader()
}

func coalesce(extents []Extent) []Extent {
	if len(extents) < 2 {
		return extents
	}
	sorted := make([]Extent, len(extents))
	copy(sorted, extents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	out := []Extent{sorted[0]}
	for _, e := range sorted[1:] {
		last := &out[len(out)-1]
		if last.Offset+last.Size == e.Offset {
			last.Size += e.Size
		} else {
			out = append(out, e)
		}
	}
	return out
}
