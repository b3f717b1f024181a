package blockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")

	bf, err := Create(path, 4096)
	require.NoError(t, err)

	id, err := bf.AllocateBlock()
	require.NoError(t, err)
	require.NoError(t, bf.WriteBlock(id, []byte("hello")))
	require.NoError(t, bf.SetRootBlockId(id))
	require.NoError(t, bf.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, id, reopened.ActiveRoot())

	payload, err := reopened.ReadBlock(id, true)
	require.NoError(t, err)
	require.Equal(t, "hello", string(payload[:5]))
}

func TestReadBlockVerifyDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	bf, err := Create(path, 4096)
	require.NoError(t, err)
	defer bf.Close()

	id, err := bf.AllocateBlock()
	require.NoError(t, err)
	require.NoError(t, bf.WriteBlock(id, []byte("payload")))

	// Flip one payload byte and write it back through WriteBlock.
	raw, err := bf.ReadBlock(id, false)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	require.NoError(t, bf.WriteBlock(id, raw))

	// WriteBlock recomputes the CRC so it always passes; corrupt the file
	// at a lower level to simulate bit rot that WriteBlock never touches.
	f := bf.f
	offset := int64(id) * int64(bf.pageSize)
	buf := make([]byte, 8)
	_, err = f.ReadAt(buf, offset+pageCRCSize)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, offset+pageCRCSize)
	require.NoError(t, err)

	_, err = bf.ReadBlock(id, true)
	require.Error(t, err)
}

func TestAllocateFreeReclaimCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	bf, err := Create(path, 4096)
	require.NoError(t, err)
	defer bf.Close()

	a, err := bf.AllocateExtent(4)
	require.NoError(t, err)

	require.NoError(t, bf.FreeExtent(a, 4))
	require.Len(t, bf.hdr.discard, 1)

	// Before reclaim, the freed range is not yet reusable because its
	// generation is ahead of the stable (durable) generation.
	require.NoError(t, bf.ReclaimDiscarded())
	require.Len(t, bf.hdr.discard, 1)

	// A checkpoint makes that generation durable; reclaim then moves the
	// range into avail.
	require.NoError(t, bf.SetRootBlockId(0))
	require.NoError(t, bf.ReclaimDiscarded())
	require.Empty(t, bf.hdr.discard)

	b, err := bf.AllocateExtent(4)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSetRootBlockIdGenerationMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	bf, err := Create(path, 4096)
	require.NoError(t, err)
	defer bf.Close()

	id1, err := bf.AllocateBlock()
	require.NoError(t, err)
	require.NoError(t, bf.WriteBlock(id1, nil))
	require.NoError(t, bf.SetRootBlockId(id1))
	gen1 := bf.hdr.slots[bf.active].Generation

	id2, err := bf.AllocateBlock()
	require.NoError(t, err)
	require.NoError(t, bf.WriteBlock(id2, nil))
	require.NoError(t, bf.SetRootBlockId(id2))
	gen2 := bf.hdr.slots[bf.active].Generation

	require.Greater(t, gen2, gen1)
	require.Equal(t, id2, bf.ActiveRoot())
}
